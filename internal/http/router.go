package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"hivemind/internal/domain/hivemind"
	"hivemind/internal/domain/user"
	"hivemind/internal/platform/apperr"
	"hivemind/internal/platform/cas"
	jwtpkg "hivemind/internal/platform/jwt"
	"hivemind/internal/worker"
)

// Pinger reports whether the content store can serve requests.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	hiveSvc  *hivemind.Service
	userSvc  *user.Service
	jwtMgr   *jwtpkg.Manager
	recalcCh chan<- worker.OpinionEvent
	store    Pinger
}

func NewRouter(
	hiveSvc *hivemind.Service,
	userSvc *user.Service,
	jwtMgr *jwtpkg.Manager,
	recalcCh chan<- worker.OpinionEvent,
	store Pinger,
) http.Handler {
	h := &Handler{
		hiveSvc:  hiveSvc,
		userSvc:  userSvc,
		jwtMgr:   jwtMgr,
		recalcCh: recalcCh,
		store:    store,
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(RequestLogger)
	r.Use(CORSMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/ready", h.handleReady)
	r.Get("/swagger/*", httpSwagger.WrapHandler)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", h.handleLogin)

		r.Get("/questions/{id}", h.handleGetQuestion)
		r.Get("/questions/{id}/state", h.handleGetState)
		r.Get("/questions/{id}/consensus", h.handleConsensus)
		r.Get("/questions/{id}/changelog", h.handleChangeLog)
		r.Get("/content/{cid}", h.handleContent)

		r.Group(func(r chi.Router) {
			r.Use(RateLimitSubmissions(rate.Every(time.Minute/30), 10))
			r.Post("/questions/{id}/options", h.handleProposeOption)
			r.Post("/questions/{id}/opinions/message", h.handleOpinionMessage)
			r.Post("/questions/{id}/opinions", h.handleSubmitOpinion)
		})

		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(jwtMgr))
			r.Use(RequireRole(user.RoleCoordinator))
			r.Post("/questions", h.handleCreateQuestion)
			r.Put("/questions/{id}/weights/{opinionator}", h.handleSetWeight)
			r.Post("/questions/{id}/results", h.handleRecalculate)
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON keeps numbers as json.Number so integers survive unchanged.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	return dec.Decode(v)
}

func parseCIDParam(r *http.Request, name string) (cid.Cid, error) {
	return cas.Parse(chi.URLParam(r, name))
}

func (h *Handler) questionID(w http.ResponseWriter, r *http.Request) (cid.Cid, bool) {
	qid, err := parseCIDParam(r, "id")
	if err != nil {
		errorResponse(w, apperr.BadRequest("invalid_input", "invalid question id", err))
		return cid.Undef, false
	}
	return qid, true
}

// notify asks the results worker to recalculate; a full queue drops the
// request and the next submission or an explicit recalculation catches up.
func (h *Handler) notify(qid cid.Cid) {
	if h.recalcCh == nil {
		return
	}
	if !worker.Notify(h.recalcCh, qid) {
		slogLogger.Warn("results queue full", "question", qid.String())
	}
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		errorResponse(w, apperr.ServiceUnavailable("store_unavailable", "content store not configured", nil))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		errorResponse(w, apperr.ServiceUnavailable("store_unavailable", "content store not ready", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
