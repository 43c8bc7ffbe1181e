package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	appanalysis "github.com/bryanwahyu/procsec/internal/application/analysis"
	domai "github.com/bryanwahyu/procsec/internal/domain/ai"
	domain "github.com/bryanwahyu/procsec/internal/domain/analysis"
	domproc "github.com/bryanwahyu/procsec/internal/domain/process"
	procreg "github.com/bryanwahyu/procsec/internal/infra/process"
	"github.com/bryanwahyu/procsec/internal/infra/stream"
	"github.com/bryanwahyu/procsec/internal/middleware"
)

type Router struct {
	analyses  *appanalysis.Service
	registry  *procreg.Registry
	gateway   domai.Gateway
	hub       *stream.Hub
	archive   domain.Archive
	providers []string
}

// Options configures optional router collaborators.
type Options struct {
	Archive   domain.Archive
	Providers []string
	APIKeys   map[string]string
	RateLimit struct {
		Capacity   int
		RefillRate int
	}
	HealthCheckers map[string]middleware.HealthChecker
}

func NewRouter(analyses *appanalysis.Service, registry *procreg.Registry, gateway domai.Gateway, hub *stream.Hub, opts Options) http.Handler {
	r := &Router{
		analyses:  analyses,
		registry:  registry,
		gateway:   gateway,
		hub:       hub,
		archive:   opts.Archive,
		providers: opts.Providers,
	}
	mux := chi.NewRouter()

	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	mux.Use(middleware.LoggingMiddleware)
	mux.Use(middleware.MetricsMiddleware)
	if opts.RateLimit.Capacity > 0 {
		mux.Use(middleware.RateLimitMiddleware(opts.RateLimit.Capacity, opts.RateLimit.RefillRate))
	}
	if len(opts.APIKeys) > 0 {
		mux.Use(middleware.APIKeyAuth(opts.APIKeys))
	}

	mux.Get("/health", middleware.HealthHandler(opts.HealthCheckers))
	mux.Get("/ready", middleware.ReadinessHandler)
	mux.Get("/live", middleware.LivenessHandler)
	mux.Get("/metrics", middleware.MetricsHandler)

	mux.Route("/v1/{tenant}", func(rt chi.Router) {
		rt.Post("/processes", r.wrap(r.handleRegisterProcess))
		rt.Get("/processes", r.wrap(r.handleListProcesses))
		rt.Get("/processes/{pid}/analyses", r.wrap(r.handleHistory))

		rt.Post("/analyses", r.wrap(r.handleSubmit))
		rt.Get("/analyses/{id}", r.wrap(r.handleGet))
		rt.Delete("/analyses/{id}", r.wrap(r.handleCancel))
		rt.Get("/analyses/{id}/stream", r.handleStream())

		rt.Get("/archive", r.wrap(r.handleArchive))
		rt.Post("/providers/{id}/connectivity", r.wrap(r.handleConnectivity))
		rt.Get("/providers", r.wrap(r.handleProviders))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			switch {
			case errors.Is(err, domain.ErrInvalidRequest),
				errors.Is(err, domproc.ErrInvalidDefinition):
				http.Error(w, err.Error(), http.StatusBadRequest)
			case errors.Is(err, domain.ErrRunNotFound),
				errors.Is(err, domproc.ErrDefinitionNotFound),
				errors.Is(err, domai.ErrProviderNotFound):
				http.Error(w, err.Error(), http.StatusNotFound)
			case errors.Is(err, domain.ErrInvalidStateTransition):
				http.Error(w, err.Error(), http.StatusConflict)
			default:
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// POST /v1/{tenant}/processes
// Body: the raw process definition document.
func (r *Router) handleRegisterProcess(w http.ResponseWriter, req *http.Request) error {
	raw, err := io.ReadAll(io.LimitReader(req.Body, 4<<20))
	if err != nil {
		return err
	}
	id, err := r.registry.Validate(req.Context(), raw)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, map[string]any{
		"processId":    id,
		"registeredAt": time.Now(),
	})
}

// GET /v1/{tenant}/processes
func (r *Router) handleListProcesses(w http.ResponseWriter, req *http.Request) error {
	return writeJSON(w, http.StatusOK, map[string]any{
		"processes": r.registry.List(),
	})
}

// POST /v1/{tenant}/analyses
// Body: {"processId": "...", "analysisType": "STANDARD",
//        "complianceStandards": ["GDPR"], "providerId": "openai"}
func (r *Router) handleSubmit(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")
	if err := middleware.ValidateTenantID(tenant); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}

	var body struct {
		ProcessID  string   `json:"processId"`
		Type       string   `json:"analysisType"`
		Standards  []string `json:"complianceStandards"`
		ProviderID string   `json:"providerId"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}
	if body.ProcessID == "" {
		return fmt.Errorf("%w: processId is required", domain.ErrInvalidRequest)
	}

	id, err := r.analyses.Submit(req.Context(), appanalysis.SubmitCommand{
		TenantID:   tenant,
		ProcessID:  body.ProcessID,
		Type:       domain.AnalysisType(body.Type),
		Standards:  body.Standards,
		ProviderID: body.ProviderID,
	})
	if err != nil {
		return err
	}

	middleware.IncrementAnalyses()
	return writeJSON(w, http.StatusAccepted, map[string]any{
		"analysisId": id,
		"status":     domain.StatusPending,
		"queuedAt":   time.Now(),
	})
}

// GET /v1/{tenant}/analyses/{id}
func (r *Router) handleGet(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	run, err := r.analyses.GetResult(req.Context(), domain.RunID(id))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, run)
}

// DELETE /v1/{tenant}/analyses/{id}
func (r *Router) handleCancel(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	if err := r.analyses.Cancel(req.Context(), domain.RunID(id)); err != nil {
		return err
	}
	return writeJSON(w, http.StatusAccepted, map[string]any{
		"analysisId": id,
		"message":    "cancellation requested",
	})
}

// GET /v1/{tenant}/processes/{pid}/analyses
func (r *Router) handleHistory(w http.ResponseWriter, req *http.Request) error {
	pid := chi.URLParam(req, "pid")
	runs, err := r.analyses.GetHistory(req.Context(), pid)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]any{
		"processId": pid,
		"analyses":  runs,
	})
}

// GET /v1/{tenant}/archive?page=&page_size=
func (r *Router) handleArchive(w http.ResponseWriter, req *http.Request) error {
	if r.archive == nil {
		return writeJSON(w, http.StatusOK, map[string]any{"analyses": []any{}})
	}
	tenant := chi.URLParam(req, "tenant")
	page, _ := strconv.Atoi(req.URL.Query().Get("page"))
	size, _ := strconv.Atoi(req.URL.Query().Get("page_size"))

	runs, err := r.archive.Paginate(req.Context(), tenant, page, middleware.ValidateLimit(size))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]any{
		"page":     page,
		"analyses": runs,
	})
}

// POST /v1/{tenant}/providers/{id}/connectivity
// Body (optional): {"model": "gpt-4o"}
func (r *Router) handleConnectivity(w http.ResponseWriter, req *http.Request) error {
	providerID := chi.URLParam(req, "id")

	var body struct {
		Model string `json:"model"`
	}
	if req.Body != nil {
		// model is optional; an empty body is fine
		_ = json.NewDecoder(req.Body).Decode(&body)
	}

	report, err := r.gateway.TestConnectivity(req.Context(), providerID, body.Model)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, report)
}

// GET /v1/{tenant}/providers
func (r *Router) handleProviders(w http.ResponseWriter, req *http.Request) error {
	return writeJSON(w, http.StatusOK, map[string]any{
		"providers": r.providers,
	})
}
