// Package trigger is the webhook listener that launches allow-listed
// scripts when the workspace fires an automation.
package trigger

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/petroleumjelliffe/socialsync/internal/logging"
	"github.com/petroleumjelliffe/socialsync/internal/metrics"
)

const maxPayloadSize = 1 << 20

// Options configures the webhook listener
type Options struct {
	ScriptDir      string
	AllowedScripts []string
	// RateLimitRPM caps requests per client IP per minute; 0 disables it
	RateLimitRPM int
}

// Server routes webhook requests to the launcher
type Server struct {
	scriptDir string
	allowed   map[string]struct{}
	launcher  Launcher
	router    *chi.Mux
	log       zerolog.Logger
}

// webhookPayload is the part of the automation payload we read:
// properties.Script.rollup.array[0].name
type webhookPayload struct {
	Properties struct {
		Script struct {
			Rollup struct {
				Array []struct {
					Name string `json:"name"`
				} `json:"array"`
			} `json:"rollup"`
		} `json:"Script"`
	} `json:"properties"`
}

func (p webhookPayload) scriptName() string {
	items := p.Properties.Script.Rollup.Array
	if len(items) == 0 {
		return ""
	}
	return items[0].Name
}

// Response is the JSON body of every webhook reply
type Response struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// NewServer creates the listener and its routes
func NewServer(opts Options, launcher Launcher) *Server {
	allowed := make(map[string]struct{}, len(opts.AllowedScripts))
	for _, name := range opts.AllowedScripts {
		allowed[name] = struct{}{}
	}

	s := &Server{
		scriptDir: opts.ScriptDir,
		allowed:   allowed,
		launcher:  launcher,
		router:    chi.NewRouter(),
		log:       logging.Component("trigger"),
	}
	s.setupRoutes(opts.RateLimitRPM)
	return s
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes(rpm int) {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(hlog.NewHandler(s.log))
	s.router.Use(hlog.AccessHandler(accessLog))
	s.router.Use(s.recoverer)
	s.router.Use(securityHeaders)

	s.router.Get("/health", s.handleHealth)
	s.router.Method(http.MethodGet, "/metrics", metrics.Handler())

	s.router.Group(func(r chi.Router) {
		if rpm > 0 {
			r.Use(httprate.LimitByIP(rpm, time.Minute))
		}
		r.Post("/webhook", s.handleWebhook)
	})
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r).With().Str("request_id", middleware.GetReqID(r.Context())).Logger()

	var payload webhookPayload
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPayloadSize))
	if err := dec.Decode(&payload); err != nil {
		log.Warn().Err(err).Msg("Invalid webhook payload")
		s.respond(w, http.StatusBadRequest, "error", "Invalid JSON payload")
		return
	}

	name := payload.scriptName()
	log.Info().Str("script", name).Msg("Webhook received")
	if name == "" {
		log.Error().Msg("Script property not found in webhook payload")
		s.respond(w, http.StatusBadRequest, "error", "Script property not found in webhook payload")
		return
	}

	if _, ok := s.allowed[name]; !ok {
		log.Error().Str("script", name).Msg("Unauthorized script attempted")
		s.respond(w, http.StatusForbidden, "error", "Unauthorized script")
		return
	}

	scriptPath, err := s.resolve(name)
	if err != nil {
		log.Error().Err(err).Str("script", name).Msg("Script not found")
		s.respond(w, http.StatusBadRequest, "error", fmt.Sprintf("Script '%s' does not exist in %s", name, s.scriptDir))
		return
	}

	if err := s.launcher.Launch(scriptPath); err != nil {
		log.Error().Err(err).Str("script", name).Msg("Failed to launch script")
		s.respond(w, http.StatusInternalServerError, "error", err.Error())
		return
	}

	log.Info().Str("script", name).Str("path", scriptPath).Msg("Triggered script")
	s.respond(w, http.StatusOK, "success", fmt.Sprintf("Triggered script: %s", name))
}

// resolve maps an allow-listed name to a regular file in the script directory
func (s *Server) resolve(name string) (string, error) {
	if name != filepath.Base(name) {
		return "", fmt.Errorf("script name %q must not contain a path", name)
	}

	path := filepath.Join(s.scriptDir, name)
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if !info.Mode().IsRegular() {
		return "", errors.New("not a regular file")
	}
	return path, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respond(w http.ResponseWriter, status int, result, message string) {
	metrics.TriggerRequests.WithLabelValues(strconv.Itoa(status)).Inc()
	writeJSON(w, status, Response{Status: result, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// accessLog writes one structured line per request
func accessLog(r *http.Request, status, size int, duration time.Duration) {
	hlog.FromRequest(r).Info().
		Str("request_id", middleware.GetReqID(r.Context())).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Str("remote", r.RemoteAddr).
		Int("status", status).
		Int("bytes", size).
		Dur("duration", duration).
		Msg("Request")
}

// recoverer turns a handler panic into the JSON error reply
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			hlog.FromRequest(r).Error().
				Str("request_id", middleware.GetReqID(r.Context())).
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("Handler panicked")
			s.respond(w, http.StatusInternalServerError, "error", "Internal server error")
		}()
		next.ServeHTTP(w, r)
	})
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}
