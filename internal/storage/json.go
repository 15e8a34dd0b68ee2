package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// JsonBlob is a file based Persistence storing one json file per key.
type JsonBlob struct {
	dir string
}

// NewJsonBlob creates a new file storage rooted at the given directory.
func NewJsonBlob(dir string) (*JsonBlob, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("could not create storage dir: %w", err)
	}
	return &JsonBlob{dir: dir}, nil
}

func (s *JsonBlob) file(k Key) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s.json", k.Path()))
}

func (s *JsonBlob) Store(k Key, value interface{}) error {
	b, err := json.MarshalIndent(value, "", " ")
	if err != nil {
		return fmt.Errorf("could not marshal value for %v: %w", k, err)
	}
	return os.WriteFile(s.file(k), b, 0644)
}

func (s *JsonBlob) Load(k Key, value interface{}) error {
	b, err := os.ReadFile(s.file(k))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("'%v': %w", k, NotFoundErr)
		}
		return fmt.Errorf("'%v': %w", k, CouldNotLoadErr)
	}
	if err := json.Unmarshal(b, value); err != nil {
		return fmt.Errorf("could not unmarshal value for %v: %w", k, err)
	}
	return nil
}
