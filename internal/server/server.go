// Package server exposes the statistics engine over HTTP: a JSON API,
// a Prometheus endpoint and a WebSocket push channel. It is the only
// surface of the process; everything it serves is read from or applied
// to the meter engine, the settings store and the history reader.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/KarmaPanda/StarResonanceDamageCounter/internal/config"
	"github.com/KarmaPanda/StarResonanceDamageCounter/internal/history"
	"github.com/KarmaPanda/StarResonanceDamageCounter/internal/log"
	"github.com/KarmaPanda/StarResonanceDamageCounter/internal/meter"
)

const (
	// defaultBasePort is the first port tried when none is configured.
	defaultBasePort = 8989

	// maxPortScan bounds the linear scan for a free port.
	maxPortScan = 100

	// staticDir is served at /, when present, for a drop-in dashboard.
	staticDir = "./public"
)

// StatsFunc supplies runtime counters for /api/stats. The composition
// root wires in capture and sniffer statistics.
type StatsFunc func() map[string]any

// Options configures a Server. Engine is required; everything else is
// optional and degrades the matching endpoints when absent.
type Options struct {
	Engine      *meter.Manager
	Settings    *config.SettingsStore
	History     *history.Reader
	Stats       StatsFunc
	Logger      log.Logger
	BasePort    int
	OpenBrowser bool
}

// Server is the HTTP/WebSocket surface. Create with New, bind with
// Start, stop with Shutdown.
type Server struct {
	engine      *meter.Manager
	settings    *config.SettingsStore
	history     *history.Reader
	stats       StatsFunc
	log         log.Logger
	basePort    int
	openBrowser bool
	startedAt   time.Time

	hub     *Hub
	router  *mux.Router
	httpSrv *http.Server
}

func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.GetLogger()
	}
	base := opts.BasePort
	if base <= 0 {
		base = defaultBasePort
	}
	s := &Server{
		engine:      opts.Engine,
		settings:    opts.Settings,
		history:     opts.History,
		stats:       opts.Stats,
		log:         logger,
		basePort:    base,
		openBrowser: opts.OpenBrowser,
		startedAt:   time.Now(),
		hub:         newHub(logger),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(corsMiddleware)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/data", s.handleData).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/enemies", s.handleEnemies).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/clear", s.handleClear).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/pause", s.handlePauseGet).Methods(http.MethodGet)
	api.HandleFunc("/pause", s.handlePauseSet).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/skill/{uid}", s.handleSkill).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/history/list", s.handleHistoryList).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/history/{ts}/summary", s.handleHistorySummary).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/history/{ts}/data", s.handleHistoryData).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/history/{ts}/skill/{uid}", s.handleHistorySkill).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/history/{ts}/download", s.handleHistoryDownload).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/settings", s.handleSettingsGet).Methods(http.MethodGet)
	api.HandleFunc("/settings", s.handleSettingsSet).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet, http.MethodOptions)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.Handle("/ws", s.hub)

	// A dashboard dropped into ./public is served as-is; without one
	// the root answers with a liveness document so the browser launch
	// lands somewhere sensible.
	if fi, err := os.Stat(staticDir); err == nil && fi.IsDir() {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(staticDir)))
	} else {
		r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	}
	return r
}

// corsMiddleware allows the dashboard to be served from any origin.
// Preflight requests are answered directly.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start binds the first free TCP port at or above the configured base
// and serves in the background. It returns the URL the server is
// reachable at.
func (s *Server) Start() (string, error) {
	var ln net.Listener
	for i := 0; i < maxPortScan; i++ {
		port := s.basePort + i
		l, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err == nil {
			ln = l
			break
		}
		s.log.Warnf("port %d unavailable: %v", port, err)
	}
	if ln == nil {
		return "", fmt.Errorf("no free port in range %d-%d", s.basePort, s.basePort+maxPortScan-1)
	}

	s.httpSrv = &http.Server{Handler: s.router}
	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Errorf("http server stopped: %v", err)
		}
	}()

	port := ln.Addr().(*net.TCPAddr).Port
	url := fmt.Sprintf("http://localhost:%d", port)
	s.log.Infof("web server listening at %s", url)

	if s.openBrowser {
		if err := openBrowser(url); err != nil {
			s.log.Warnf("could not open browser: %v", err)
		}
	}
	return url, nil
}

// Shutdown disconnects WebSocket subscribers and drains the HTTP
// server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// Subscribers reports the number of connected WebSocket clients.
func (s *Server) Subscribers() int { return s.hub.Count() }

// wsEnvelope is the shape of every WebSocket push.
type wsEnvelope struct {
	Type string             `json:"type"`
	Data meter.DataSnapshot `json:"data"`
}

// BroadcastSnapshot pushes the current engine snapshot to all
// WebSocket subscribers. Nothing is sent while the engine is paused or
// when nobody is listening.
func (s *Server) BroadcastSnapshot() {
	if s.hub.Count() == 0 || s.engine.Paused() {
		return
	}
	msg, err := json.Marshal(wsEnvelope{Type: "data", Data: s.engine.Snapshot()})
	if err != nil {
		s.log.Warnf("failed to encode broadcast: %v", err)
		return
	}
	s.hub.Broadcast(msg)
}
