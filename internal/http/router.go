package httpapi

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Observer records served requests.
type Observer interface {
	ObserveHTTP(method, path string, status int, d time.Duration)
}

// Router uses the standard library http.ServeMux.
type Router struct {
	mux      *http.ServeMux
	logger   *zap.Logger
	observer Observer
}

func NewRouter(observer Observer, logger *zap.Logger) *Router {
	return &Router{
		mux:      http.NewServeMux(),
		logger:   logger,
		observer: observer,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

// HandleHandler registers an http.Handler such as the metrics endpoint.
func (r *Router) HandleHandler(pattern string, h http.Handler) {
	r.mux.Handle(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	r.mux.ServeHTTP(rec, req)

	d := time.Since(start)
	_, pattern := r.mux.Handler(req)
	if pattern == "" {
		pattern = "unmatched"
	}
	if r.observer != nil {
		r.observer.ObserveHTTP(req.Method, pattern, rec.status, d)
	}
	r.logger.Debug("HTTP request",
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Int("status", rec.status),
		zap.Duration("duration", d),
	)
}

// RegisterHealthRoutes registers /health and, when metrics is non-nil, /metrics.
func (r *Router) RegisterHealthRoutes(metrics http.Handler) {
	r.Handle("/health", methods(func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, Ok(map[string]string{"status": "ok"}))
	}, http.MethodGet))
	if metrics != nil {
		r.HandleHandler("/metrics", metrics)
	}
}

// RegisterEmergencyRoutes registers the /api/v1/emergency routes.
func (r *Router) RegisterEmergencyRoutes(h *EmergencyHandler) {
	r.Handle("/api/v1/emergency", methods(h.GetState, http.MethodGet))
	r.Handle("/api/v1/emergency/trigger", methods(h.Trigger, http.MethodPost))
	r.Handle("/api/v1/emergency/cancel", methods(h.Cancel, http.MethodPost))
	r.Handle("/api/v1/emergency/resolve", methods(h.Resolve, http.MethodPost))
	r.Handle("/api/v1/emergency/contacts", func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodGet:
			h.GetContacts(w, req)
		case http.MethodPut:
			h.UpdateContacts(w, req)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
}

// RegisterGamificationRoutes registers the ledger routes.
func (r *Router) RegisterGamificationRoutes(h *GamificationHandler) {
	r.Handle("/api/v1/gamification", methods(h.GetSummary, http.MethodGet))
	r.Handle("/api/v1/sessions/start", methods(h.StartSession, http.MethodPost))
	r.Handle("/api/v1/sessions/end", methods(h.EndSession, http.MethodPost))
	r.Handle("/api/v1/points", methods(h.AddPoints, http.MethodPost))
	r.Handle("/api/v1/achievements", methods(h.AwardAchievement, http.MethodPost))
	r.Handle("/api/v1/leaderboards/positions", methods(h.GetPositions, http.MethodGet))
	r.Handle("/api/v1/user", methods(h.SetUser, http.MethodPut))
}

// RegisterHistoryRoutes registers session history and its export.
func (r *Router) RegisterHistoryRoutes(h *HistoryHandler) {
	r.Handle("/api/v1/sessions/history", methods(h.GetHistory, http.MethodGet))
	r.Handle("/api/v1/sessions/export", methods(h.Export, http.MethodGet))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
