// Package server exposes the manager over a small http surface for
// operators: status, lifecycle actions and prometheus metrics.
package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

type Action string

type Method string

const (
	Data Action = "data"
	Api  Action = "api"

	GET  Method = "GET"
	POST Method = "POST"
)

// Handler produces the response payload and status code for a request.
type Handler func(r *http.Request) ([]byte, int, error)

type Route struct {
	Action Action
	Path   string
	Method Method
	Exec   Handler
}

type Server struct {
	name   string
	port   int
	routes []Route
}

func NewServer(name string, port int) *Server {
	return &Server{
		name:   name,
		port:   port,
		routes: make([]Route, 0),
	}
}

// AddRoute adds a single handler at /{action}/{path}.
func (s *Server) AddRoute(method Method, action Action, path string, exec Handler) *Server {
	s.routes = append(s.routes, Route{
		Action: action,
		Path:   path,
		Method: method,
		Exec:   exec,
	})
	return s
}

// Add adds the given routes to the server.
func (s *Server) Add(route ...Route) *Server {
	s.routes = append(s.routes, route...)
	return s
}

func (s *Server) handle(method Method, handler Handler) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		if Method(r.Method) != method {
			w.WriteHeader(http.StatusNotImplemented)
			return
		}
		b, code, err := handler(r)
		if err != nil {
			s.error(w, err)
		} else if code != http.StatusOK {
			s.code(w, b, code)
		} else {
			s.respond(w, b)
		}
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Float64("duration", time.Since(start).Seconds()).
			Msg("handled request")
	}
}

// Run starts the server. It blocks.
func (s *Server) Run() error {
	mux := http.NewServeMux()
	for _, route := range s.routes {
		if route.Path != "" {
			mux.HandleFunc(fmt.Sprintf("/%s/%s", route.Action, route.Path), s.handle(route.Method, route.Exec))
		} else {
			mux.HandleFunc(fmt.Sprintf("/%s", route.Action), s.handle(route.Method, route.Exec))
		}
	}
	mux.Handle("/metrics", promhttp.Handler())

	log.Info().Str("server", s.name).Int("port", s.port).Msg("starting server")
	if err := http.ListenAndServe(fmt.Sprintf(":%d", s.port), mux); err != nil {
		return fmt.Errorf("could not start server: %w", err)
	}
	return nil
}

func (s *Server) code(w http.ResponseWriter, b []byte, code int) {
	w.WriteHeader(code)
	s.respond(w, b)
}

func (s *Server) respond(w http.ResponseWriter, b []byte) {
	_, err := w.Write(b)
	if err != nil {
		log.Error().Err(err).Msg("could not write response")
	}
}

func (s *Server) error(w http.ResponseWriter, err error) {
	log.Error().Err(err).Msg("error for http request")
	s.code(w, []byte(err.Error()), http.StatusInternalServerError)
}

// Live is a trivial liveness route.
func Live() Route {
	return Route{
		Action: Data,
		Path:   "live",
		Method: GET,
		Exec: func(r *http.Request) ([]byte, int, error) {
			return []byte{}, http.StatusOK, nil
		},
	}
}

// JsonRead decodes the request body into v. An empty body is not an error.
func JsonRead(r *http.Request, v interface{}) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, v); err != nil {
			return err
		}
	}
	return nil
}
