// Package api exposes the provisioning pipeline over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/TheoDgb/URLCustomDiscsAPI/admission"
	"github.com/TheoDgb/URLCustomDiscsAPI/log"
	"github.com/TheoDgb/URLCustomDiscsAPI/metrics"
	"github.com/TheoDgb/URLCustomDiscsAPI/pipeline"
	"github.com/TheoDgb/URLCustomDiscsAPI/quota"
)

// UploadHeadroom is added to the audio ceiling to bound multipart bodies.
const UploadHeadroom = 1 << 20

// Service is the pipeline as seen by the handlers.
type Service interface {
	Register(ctx context.Context, req pipeline.RegisterRequest) (pipeline.RegisterResult, error)
	CreateDisc(ctx context.Context, req pipeline.CreateDiscRequest) (pipeline.Result, error)
	CreateDiscFromUpload(ctx context.Context, req pipeline.UploadDiscRequest) (pipeline.Result, error)
	DeleteDisc(ctx context.Context, req pipeline.DeleteDiscRequest) (pipeline.Result, error)
	Limits() pipeline.Limits
}

// AdmissionStats reports the admission controller state.
type AdmissionStats interface {
	Stats() admission.Stats
}

// QuotaUsage reports ledger usage.
type QuotaUsage interface {
	Usage() (quota.Usage, error)
}

// Config wires the HTTP handler. Service and DataDir are required.
type Config struct {
	Service Service
	// DataDir holds uploaded files under uploads/ until the pipeline
	// consumes them.
	DataDir   string
	Metrics   *metrics.Collector
	Admission AdmissionStats
	Quota     QuotaUsage
	Logger    *log.Logger
}

type handler struct {
	cfg       Config
	uploadDir string
	logger    *log.Logger
}

// UploadDir returns the directory holding in-flight uploads.
func UploadDir(dataDir string) string {
	return filepath.Join(dataDir, "uploads")
}

// New returns the router serving every route.
func New(cfg Config) (http.Handler, error) {
	if cfg.Service == nil {
		return nil, errors.New("api: service is required")
	}
	if cfg.DataDir == "" {
		return nil, errors.New("api: data dir is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Nop()
	}
	h := &handler{
		cfg:       cfg,
		uploadDir: UploadDir(cfg.DataDir),
		logger:    logger.With(map[string]any{"component": "api"}),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/stats", h.stats)

	r.Post("/register-mc-server", h.register)
	r.Post("/create-custom-disc", h.createDisc)
	r.Post("/create-custom-disc-from-mp3", h.createDiscFromUpload)
	r.Post("/delete-custom-disc", h.deleteDisc)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, pipeline.OutcomeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, pipeline.OutcomeValidation, "method not allowed")
	})
	return r, nil
}
