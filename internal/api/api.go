// Package api serves the broker operations over JSON/HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/slok/taskbroker/internal/app/lifecycle"
	"github.com/slok/taskbroker/internal/app/query"
	"github.com/slok/taskbroker/internal/log"
	"github.com/slok/taskbroker/internal/metrics"
	"github.com/slok/taskbroker/internal/model"
)

// TaskService runs the task lifecycle operations.
type TaskService interface {
	CreateTask(ctx context.Context, p model.Principal, r lifecycle.CreateTaskRequest) (*model.Task, error)
	AcceptTask(ctx context.Context, p model.Principal, taskID string) (*model.Task, error)
	StartTask(ctx context.Context, p model.Principal, taskID string) (*model.Task, error)
	CompleteTask(ctx context.Context, p model.Principal, taskID string, photos []string) (*model.Task, error)
	CancelTask(ctx context.Context, p model.Principal, taskID, reason string) (*model.Task, error)
	RaiseDispute(ctx context.Context, p model.Principal, taskID, reason string) (*model.Task, error)
	RateTask(ctx context.Context, p model.Principal, taskID string, r lifecycle.RateRequest) (*model.Rating, error)
	AddTip(ctx context.Context, p model.Principal, taskID string, tip model.Money) (*model.Task, error)
	GetTask(ctx context.Context, p model.Principal, taskID string) (*model.Task, error)
}

// PaymentService runs the escrow operations.
type PaymentService interface {
	CreateHold(ctx context.Context, p model.Principal, taskID string) (*model.Payment, error)
	ConfirmHold(ctx context.Context, p model.Principal, paymentID string) (*model.Payment, error)
	Capture(ctx context.Context, p model.Principal, taskID string) (*model.Payment, error)
	Refund(ctx context.Context, p model.Principal, taskID, reason string, amount *model.Money) (*model.Payment, error)
	ListTaskPayments(ctx context.Context, p model.Principal, taskID string) ([]model.Payment, error)
	ContractorEarnings(ctx context.Context, p model.Principal, contractorID string) (*model.Earnings, error)
	HandleWebhook(ctx context.Context, e model.WebhookEvent) error
}

// DisputeService resolves disputes.
type DisputeService interface {
	Resolve(ctx context.Context, p model.Principal, taskID string, kind model.DisputeResolutionKind, notes string) (*model.DisputeResolution, error)
	Details(ctx context.Context, p model.Principal, taskID string) (*model.DisputeDetails, error)
}

// QueryService lists tasks.
type QueryService interface {
	ListTasks(ctx context.Context, p model.Principal, r query.ListTasksRequest) ([]model.Task, error)
	ListDisputes(ctx context.Context, p model.Principal) ([]model.Task, error)
}

// HandlerConfig is the configuration for the API handler.
type HandlerConfig struct {
	Tasks    TaskService
	Payments PaymentService
	Disputes DisputeService
	Queries  QueryService
	// WebhookSecret enables the gateway webhook signature check when set.
	WebhookSecret  string
	AllowedOrigins []string
	Metrics        metrics.Recorder
	Logger         log.Logger
}

func (c *HandlerConfig) defaults() error {
	if c.Tasks == nil {
		return fmt.Errorf("tasks service is required")
	}
	if c.Payments == nil {
		return fmt.Errorf("payments service is required")
	}
	if c.Disputes == nil {
		return fmt.Errorf("disputes service is required")
	}
	if c.Queries == nil {
		return fmt.Errorf("queries service is required")
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if c.Metrics == nil {
		c.Metrics = metrics.Noop
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "api.Handler"})
	return nil
}

type handler struct {
	tasks         TaskService
	payments      PaymentService
	disputes      DisputeService
	queries       QueryService
	webhookSecret []byte
	metrics       metrics.Recorder
	logger        log.Logger
}

// NewHandler returns the HTTP handler of the broker API.
func NewHandler(cfg HandlerConfig) (http.Handler, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	h := handler{
		tasks:         cfg.Tasks,
		payments:      cfg.Payments,
		disputes:      cfg.Disputes,
		queries:       cfg.Queries,
		webhookSecret: []byte(cfg.WebhookSecret),
		metrics:       cfg.Metrics,
		logger:        cfg.Logger,
	}

	router := mux.NewRouter()
	router.Use(h.measure)
	router.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)
	router.HandleFunc("/webhooks/gateway", h.webhook).Methods(http.MethodPost)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(mux.CORSMethodMiddleware(api))

	api.HandleFunc("/tasks", h.authenticated(h.listTasks)).Methods(http.MethodGet)
	api.HandleFunc("/tasks", h.authenticated(h.createTask)).Methods(http.MethodPost)
	api.HandleFunc("/tasks/{id}", h.authenticated(h.getTask)).Methods(http.MethodGet)
	api.HandleFunc("/tasks/{id}/accept", h.authenticated(h.acceptTask)).Methods(http.MethodPost)
	api.HandleFunc("/tasks/{id}/start", h.authenticated(h.startTask)).Methods(http.MethodPost)
	api.HandleFunc("/tasks/{id}/complete", h.authenticated(h.completeTask)).Methods(http.MethodPost)
	api.HandleFunc("/tasks/{id}/cancel", h.authenticated(h.cancelTask)).Methods(http.MethodPost)
	api.HandleFunc("/tasks/{id}/dispute", h.authenticated(h.raiseDispute)).Methods(http.MethodPost)
	api.HandleFunc("/tasks/{id}/rate", h.authenticated(h.rateTask)).Methods(http.MethodPost)
	api.HandleFunc("/tasks/{id}/tip", h.authenticated(h.tipTask)).Methods(http.MethodPost)

	api.HandleFunc("/tasks/{id}/payments", h.authenticated(h.listPayments)).Methods(http.MethodGet)
	api.HandleFunc("/tasks/{id}/payments", h.authenticated(h.createHold)).Methods(http.MethodPost)
	api.HandleFunc("/tasks/{id}/capture", h.authenticated(h.capture)).Methods(http.MethodPost)
	api.HandleFunc("/tasks/{id}/refund", h.authenticated(h.refund)).Methods(http.MethodPost)
	api.HandleFunc("/payments/{id}/confirm", h.authenticated(h.confirmHold)).Methods(http.MethodPost)
	api.HandleFunc("/contractors/me/earnings", h.authenticated(h.earnings)).Methods(http.MethodGet)

	api.HandleFunc("/admin/disputes", h.authenticated(h.listDisputes)).Methods(http.MethodGet)
	api.HandleFunc("/admin/disputes/{id}", h.authenticated(h.disputeDetails)).Methods(http.MethodGet)
	api.HandleFunc("/admin/disputes/{id}/resolve", h.authenticated(h.resolveDispute)).Methods(http.MethodPost)

	c := cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Accept", "Authorization", headerPrincipalID, headerPrincipalRoles, headerPrincipalStatus},
	})

	return c.Handler(router), nil
}

func (h handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// measure records the request metrics using the route template so IDs don't explode the labels.
func (h handler) measure(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unknown"
		if cr := mux.CurrentRoute(r); cr != nil {
			if tpl, err := cr.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		h.metrics.ObserveHTTPRequest(r.Context(), r.Method, route, rec.status, time.Since(start))
	})
}
