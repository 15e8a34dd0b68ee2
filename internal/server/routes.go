package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/vrachnos/steer/internal/manager"
)

// Status serves the manager status snapshot.
func Status(m *manager.Manager) Route {
	return Route{
		Action: Data,
		Path:   "status",
		Method: GET,
		Exec: func(r *http.Request) ([]byte, int, error) {
			b, err := json.Marshal(m.GetManagerStatus())
			if err != nil {
				return nil, http.StatusInternalServerError, err
			}
			return b, http.StatusOK, nil
		},
	}
}

// Strategy serves one strategy instance snapshot by id.
func Strategy(m *manager.Manager) Route {
	return Route{
		Action: Data,
		Path:   "strategy",
		Method: GET,
		Exec: func(r *http.Request) ([]byte, int, error) {
			id := r.URL.Query().Get("id")
			info, err := m.GetStrategyInfo(id)
			if err != nil {
				return []byte(err.Error()), http.StatusNotFound, nil
			}
			b, err := json.Marshal(info)
			if err != nil {
				return nil, http.StatusInternalServerError, err
			}
			return b, http.StatusOK, nil
		},
	}
}

// lifecycleRequest asks for a state change on one strategy.
type lifecycleRequest struct {
	ID     string `json:"id"`
	Action string `json:"action"`
}

// Lifecycle applies start/stop/pause/resume actions.
func Lifecycle(m *manager.Manager) Route {
	return Route{
		Action: Api,
		Path:   "strategy",
		Method: POST,
		Exec: func(r *http.Request) ([]byte, int, error) {
			var req lifecycleRequest
			if err := JsonRead(r, &req); err != nil {
				return []byte(err.Error()), http.StatusBadRequest, nil
			}
			var err error
			switch req.Action {
			case "start":
				err = m.StartStrategy(r.Context(), req.ID)
			case "stop":
				err = m.StopStrategy(r.Context(), req.ID)
			case "pause":
				err = m.PauseStrategy(req.ID)
			case "resume":
				err = m.ResumeStrategy(r.Context(), req.ID)
			default:
				return []byte(fmt.Sprintf("unknown action '%s'", req.Action)), http.StatusBadRequest, nil
			}
			if err != nil {
				return []byte(err.Error()), http.StatusConflict, nil
			}
			return []byte(fmt.Sprintf("%s %s", req.Action, req.ID)), http.StatusOK, nil
		},
	}
}
