// Package api serves identity resolution over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/lead-identity/internal/config"
	"github.com/sells-group/lead-identity/internal/dedup"
	"github.com/sells-group/lead-identity/internal/identity"
	"github.com/sells-group/lead-identity/internal/leadcard"
	"github.com/sells-group/lead-identity/internal/pipeline"
	"github.com/sells-group/lead-identity/internal/store"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Service is the pipeline surface the API exposes.
type Service interface {
	Ingest(ctx context.Context, rec identity.IdentityRecord) (*pipeline.Outcome, error)
	Resolve(ctx context.Context, rec identity.IdentityRecord) (dedup.Decision, error)
	Card(ctx context.Context, id string) (*leadcard.UnifiedLeadCard, error)
	PendingReviews(ctx context.Context, limit int) ([]store.Review, error)
	DecideReview(ctx context.Context, reviewID string, approve bool) (*pipeline.Outcome, error)
	AssignCampaign(ctx context.Context, cardID, campaignID string) (*leadcard.UnifiedLeadCard, error)
}

// Pinger reports backend health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers holds the HTTP handlers.
type Handlers struct {
	svc  Service
	ping Pinger
}

// NewRouter builds the HTTP router. Write routes share one rate limiter.
func NewRouter(svc Service, ping Pinger, cfg config.ServerConfig) http.Handler {
	h := &Handlers{svc: svc, ping: ping}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.Health)

	limit := rateLimit(cfg.RateLimit, cfg.RateBurst)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/cards/{id}", h.GetCard)
		r.Get("/reviews", h.ListReviews)

		r.Group(func(r chi.Router) {
			r.Use(limit)
			r.Post("/records", h.IngestRecord)
			r.Post("/resolve", h.ResolveRecord)
			r.Post("/reviews/{id}/approve", h.decide(true))
			r.Post("/reviews/{id}/reject", h.decide(false))
			r.Post("/cards/{id}/campaign", h.AssignCampaign)
		})
	})

	return r
}

// Health reports liveness and store connectivity.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if h.ping != nil {
		if err := h.ping.Ping(r.Context()); err != nil {
			zap.L().Warn("api: health check failed", zap.Error(err))
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// IngestRecord resolves and persists one record.
func (h *Handlers) IngestRecord(w http.ResponseWriter, r *http.Request) {
	rec, ok := decodeRecord(w, r)
	if !ok {
		return
	}
	out, err := h.svc.Ingest(r.Context(), rec)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	status := http.StatusCreated
	if out.Action == pipeline.ActionDuplicate {
		status = http.StatusOK
	}
	respondJSON(w, status, out)
}

// decisionResponse is the dry-run view of a Decision.
type decisionResponse struct {
	Kind     dedup.DecisionKind `json:"kind"`
	Decision dedup.Decision     `json:"decision"`
}

// ResolveRecord returns the decision for a record without writing it.
func (h *Handlers) ResolveRecord(w http.ResponseWriter, r *http.Request) {
	rec, ok := decodeRecord(w, r)
	if !ok {
		return
	}
	d, err := h.svc.Resolve(r.Context(), rec)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, decisionResponse{Kind: d.Kind(), Decision: d})
}

// GetCard returns a lead card.
func (h *Handlers) GetCard(w http.ResponseWriter, r *http.Request) {
	card, err := h.svc.Card(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, card)
}

// AssignCampaign assigns a card to a campaign.
func (h *Handlers) AssignCampaign(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CampaignID string `json:"campaign_id"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil || req.CampaignID == "" {
		respondError(w, http.StatusBadRequest, "campaign_id is required")
		return
	}

	card, err := h.svc.AssignCampaign(r.Context(), chi.URLParam(r, "id"), req.CampaignID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, card)
}

// ListReviews returns pending reviews, oldest first.
func (h *Handlers) ListReviews(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			respondError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}

	reviews, err := h.svc.PendingReviews(r.Context(), limit)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if reviews == nil {
		reviews = []store.Review{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"reviews": reviews})
}

func (h *Handlers) decide(approve bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := h.svc.DecideReview(r.Context(), chi.URLParam(r, "id"), approve)
		if err != nil {
			respondServiceError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, out)
	}
}

func decodeRecord(w http.ResponseWriter, r *http.Request) (identity.IdentityRecord, bool) {
	var rec identity.IdentityRecord
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&rec); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return rec, false
	}
	if !rec.SourceType.Valid() {
		respondError(w, http.StatusBadRequest, "source_type is required and must be a known source")
		return rec, false
	}
	return rec, true
}

// respondServiceError maps pipeline and store errors to HTTP statuses.
func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrReviewClosed):
		respondError(w, http.StatusConflict, "review already decided")
	case errors.Is(err, dedup.ErrMergeConflict):
		respondError(w, http.StatusConflict, "concurrent update, retry")
	case errors.Is(err, pipeline.ErrInvalidRecord):
		respondError(w, http.StatusBadRequest, "invalid record")
	case dedup.IsLookupError(err):
		zap.L().Error("api: candidate lookup failed", zap.Error(err))
		respondError(w, http.StatusServiceUnavailable, "candidate lookup unavailable")
	default:
		zap.L().Error("api: request failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Debug("api: write response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// rateLimit rejects requests beyond perSecond with 429. A non-positive rate
// disables limiting.
func rateLimit(perSecond float64, burst int) func(http.Handler) http.Handler {
	if perSecond <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if burst <= 0 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(perSecond), burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				w.Header().Set("Retry-After", "1")
				respondError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Info("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
