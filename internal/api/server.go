// Package api exposes the intake engine, the job catalog and the operator
// switches over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi"
	"github.com/rs/cors"

	"github.com/hurttlocker/intake/internal/catalog"
	"github.com/hurttlocker/intake/internal/intake"
	"github.com/hurttlocker/intake/internal/logger"
	"github.com/hurttlocker/intake/internal/record"
	"github.com/hurttlocker/intake/internal/store"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// ServerConfig holds what the HTTP server serves.
type ServerConfig struct {
	Engine  *intake.Engine
	Store   store.Store
	Catalog *catalog.Catalog
	Logger  *logger.Logger
	// AllowedOrigins for CORS; empty allows any origin.
	AllowedOrigins []string
	// Now is the clock used for "today" counts.
	Now func() time.Time
}

// Server routes HTTP requests to the engine.
type Server struct {
	engine   *intake.Engine
	store    store.Store
	catalog  *catalog.Catalog
	log      *logger.Logger
	origins  []string
	now      func() time.Time
	settings map[string]record.Kind
}

// NewServer creates a Server.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Engine == nil || cfg.Store == nil || cfg.Catalog == nil {
		return nil, errors.New("api: engine, store and catalog are required")
	}
	s := &Server{
		engine:   cfg.Engine,
		store:    cfg.Store,
		catalog:  cfg.Catalog,
		log:      cfg.Logger,
		origins:  cfg.AllowedOrigins,
		now:      cfg.Now,
		settings: map[string]record.Kind{},
	}
	if s.log == nil {
		s.log = logger.Nop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if len(s.origins) == 0 {
		s.origins = []string{"*"}
	}
	for _, kind := range []record.Kind{record.KindInterview, record.KindSurvey} {
		sch, err := cfg.Engine.Schema(kind)
		if err != nil {
			return nil, err
		}
		if sch.EnabledSetting != "" {
			s.settings[sch.EnabledSetting] = kind
		}
	}
	return s, nil
}

// Router builds the route table.
func (s *Server) Router() *chi.Mux {
	router := chi.NewRouter()

	router.Use(cors.New(cors.Options{
		AllowedOrigins:   s.origins,
		AllowCredentials: true,
		AllowedHeaders:   []string{"Authorization", "Content-Type", "Accept"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
	}).Handler)

	router.Get("/status", s.handleStatus)

	// Conversations
	router.Post("/chat", s.handleChat(record.KindInterview))
	router.Post("/survey/chat", s.handleChat(record.KindSurvey))
	router.Get("/history/{id}", s.handleHistory)

	// Interview records
	router.Get("/candidates", s.handleList(record.KindInterview))
	router.Route("/candidate/{id}", func(r chi.Router) {
		s.recordRoutes(r, record.KindInterview)
	})

	// Survey records
	router.Get("/survey/all", s.handleList(record.KindSurvey))
	router.Route("/survey/{id}", func(r chi.Router) {
		s.recordRoutes(r, record.KindSurvey)
	})

	// Job catalog
	router.Get("/jobs", s.handleJobList)
	router.Post("/jobs", s.handleJobCreate)
	router.Get("/jobs/{filename}", s.handleJobGet)
	router.Put("/jobs/{filename}", s.handleJobUpdate)
	router.Delete("/jobs/{filename}", s.handleJobDelete)

	// Operator switches
	router.Get("/settings/{key}", s.handleSettingGet)
	router.Post("/settings/{key}", s.handleSettingSet)

	return router
}

func (s *Server) recordRoutes(r chi.Router, kind record.Kind) {
	r.Get("/", s.handleRecordGet(kind))
	r.Put("/", s.handleRecordUpdate(kind))
	r.Delete("/", s.handleRecordDelete(kind))
	r.Post("/audit", s.handleAudit(kind))
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	return dec.Decode(dst)
}

// clientIP prefers the first X-Forwarded-For hop over the socket address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first := strings.TrimSpace(strings.Split(fwd, ",")[0]); first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
