// Package storage persists strategy instance state across restarts.
package storage

import (
	"errors"
	"fmt"
)

var (
	NotFoundErr     = errors.New("not found")
	CouldNotLoadErr = errors.New("could not load")
)

// Key is the storage key for a stored value.
type Key struct {
	Dir   string `json:"dir"`
	Label string `json:"label"`
}

func (k Key) Path() string {
	return fmt.Sprintf("%s_%s", k.Dir, k.Label)
}

// Persistence stores and loads values by key.
type Persistence interface {
	Store(k Key, value interface{}) error
	Load(k Key, value interface{}) error
}

// VoidStorage ignores stores and never finds anything.
type VoidStorage struct {
}

func NewVoidStorage() *VoidStorage {
	return &VoidStorage{}
}

func (d *VoidStorage) Store(k Key, value interface{}) error {
	return nil
}

func (d *VoidStorage) Load(k Key, value interface{}) error {
	return fmt.Errorf("void storage '%v': %w", k, NotFoundErr)
}
