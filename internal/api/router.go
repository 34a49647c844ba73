// Package api exposes the engine over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/affect-triage/internal/engine"
	"github.com/danielpatrickdp/affect-triage/internal/graph"
	"github.com/danielpatrickdp/affect-triage/internal/triage"
)

// Decider is the engine surface the API needs.
type Decider interface {
	ProcessTurn(ctx context.Context, turn engine.Turn) triage.Decision
	SessionState(id string) (triage.StateID, bool)
	Graph() *graph.StateGraph
}

// Config holds router dependencies.
type Config struct {
	Engine         Decider
	Logger         *zap.Logger
	MetricsHandler http.Handler // optional
	MaxBodyBytes   int64        // 0 means 64 KiB
}

// New creates a chi router with all routes configured.
func New(cfg Config) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 64 << 10
	}
	h := &handler{engine: cfg.Engine, logger: cfg.Logger.Named("api"), maxBody: cfg.MaxBodyBytes}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.health)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}
	r.Route("/v1", func(r chi.Router) {
		r.Post("/turns", h.turn)
		r.Get("/sessions/{id}", h.session)
		r.Get("/graph", h.graph)
	})
	return r
}

type handler struct {
	engine  Decider
	logger  *zap.Logger
	maxBody int64
}

// #region handlers

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":        "ok",
		"graph_version": h.engine.Graph().Version(),
	})
}

func (h *handler) turn(w http.ResponseWriter, r *http.Request) {
	var turn engine.Turn
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&turn); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		case errors.Is(err, io.EOF):
			writeError(w, http.StatusBadRequest, "request body is empty")
		default:
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		}
		return
	}
	if turn.SessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	writeJSON(w, http.StatusOK, h.engine.ProcessTurn(r.Context(), turn))
}

// SessionSummary is the state of an idle session.
type SessionSummary struct {
	SessionID string         `json:"session_id"`
	State     triage.StateID `json:"state"`
}

func (h *handler) session(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	state, ok := h.engine.SessionState(id)
	if !ok {
		writeError(w, http.StatusNotFound, "session not found or busy")
		return
	}
	writeJSON(w, http.StatusOK, SessionSummary{SessionID: id, State: state})
}

// GraphSummary describes the graph new sessions start from.
type GraphSummary struct {
	Version string        `json:"version"`
	Entry   string        `json:"entry"`
	Crisis  string        `json:"crisis"`
	Nodes   []NodeSummary `json:"nodes"`
	Edges   []EdgeSummary `json:"edges"`
}

type NodeSummary struct {
	ID       string `json:"id"`
	Kind     string `json:"kind"`
	Priority int    `json:"priority"`
}

type EdgeSummary struct {
	From          string `json:"from"`
	To            string `json:"to"`
	Guard         string `json:"guard"`
	CooldownTurns int    `json:"cooldown_turns,omitempty"`
	Clarify       bool   `json:"clarify,omitempty"`
}

// Summarize flattens g for display.
func Summarize(g *graph.StateGraph) GraphSummary {
	s := GraphSummary{Version: g.Version(), Entry: string(g.Entry()), Crisis: string(g.Crisis())}
	for _, n := range g.Nodes() {
		s.Nodes = append(s.Nodes, NodeSummary{ID: string(n.ID), Kind: string(n.Kind), Priority: n.Priority})
		for _, e := range g.Outgoing(n.ID) {
			s.Edges = append(s.Edges, EdgeSummary{
				From:          string(e.From),
				To:            string(e.To),
				Guard:         e.Guard.Name(),
				CooldownTurns: e.CooldownTurns,
				Clarify:       e.Clarify,
			})
		}
	}
	return s
}

func (h *handler) graph(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Summarize(h.engine.Graph()))
}

// #endregion handlers

// #region helpers

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// requestLogger logs one line per request. Bodies are never logged.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info("request",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("took", time.Since(start)))
		})
	}
}

// #endregion helpers
