package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"herald/internal/scheduler"
	"herald/internal/types"
)

// Ingestor accepts a validated batch of realtime event payloads. The pipeline
// service satisfies it.
type Ingestor interface {
	IngestRealtime(ctx context.Context, payloads []map[string]any) ([]*types.IngestReceipt, error)
}

// DefinitionLister exposes the registered notification definitions.
type DefinitionLister interface {
	ListAll() []types.NotificationDefinition
}

// TemplateLister exposes the loaded templates.
type TemplateLister interface {
	List() []types.Template
}

// ChannelLister exposes the registered channel names.
type ChannelLister interface {
	Names() []string
}

// SchedulerIntrospector exposes scheduler state and manual triggering.
type SchedulerIntrospector interface {
	Status() []scheduler.JobStatus
	Trigger(ctx context.Context, id string) (bool, error)
}

// EventReader reads persisted events and their delivery attempts.
type EventReader interface {
	ListRecentEvents(ctx context.Context, limit int) ([]*types.Event, error)
	ListAttemptsByEvent(ctx context.Context, eventID string) ([]*types.DeliveryAttempt, error)
}

// Pinger reports connectivity of the backing store. pgxpool.Pool satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds the dependencies for creating a Server.
type Config struct {
	Ingestor    Ingestor
	Definitions DefinitionLister
	Templates   TemplateLister
	Channels    ChannelLister
	Scheduler   SchedulerIntrospector
	Events      EventReader
	DB          Pinger
	Logger      types.Logger
}

// Server owns the HTTP handlers and the router.
type Server struct {
	ingestor    Ingestor
	definitions DefinitionLister
	templates   TemplateLister
	channels    ChannelLister
	scheduler   SchedulerIntrospector
	events      EventReader
	db          Pinger
	logger      types.Logger
}

// NewServer creates a Server with the given dependencies.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = types.NopLogger{}
	}
	return &Server{
		ingestor:    cfg.Ingestor,
		definitions: cfg.Definitions,
		templates:   cfg.Templates,
		channels:    cfg.Channels,
		scheduler:   cfg.Scheduler,
		events:      cfg.Events,
		db:          cfg.DB,
		logger:      logger,
	}
}

// Routes builds the router with the base middleware chain applied.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(Recoverer(s.logger))
	r.Use(RequestID)
	r.Use(RequestLogger(s.logger))

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/events/realtime", s.handleIngestRealtime)
		r.Get("/events", s.handleListEvents)
		r.Get("/events/{id}/attempts", s.handleEventAttempts)

		r.Get("/registry", s.handleListRegistry)
		r.Get("/channels", s.handleListChannels)
		r.Get("/templates", s.handleListTemplates)

		r.Get("/scheduler/status", s.handleSchedulerStatus)
		r.Post("/scheduler/jobs/{id}/trigger", s.handleSchedulerTrigger)
	})

	return r
}

// IngestEventsRequest is the request body for POST /v1/events/realtime.
type IngestEventsRequest struct {
	Events []map[string]any `json:"events"`
}

// IngestEventsResponse reports one receipt per accepted event.
type IngestEventsResponse struct {
	Receipts []*types.IngestReceipt `json:"receipts"`
}

func (s *Server) handleIngestRealtime(w http.ResponseWriter, r *http.Request) {
	var req IngestEventsRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		Error(w, r, err)
		return
	}

	receipts, err := s.ingestor.IngestRealtime(r.Context(), req.Events)
	if err != nil {
		Error(w, r, err)
		return
	}

	JSON(w, r, http.StatusAccepted, APIResponse{Data: IngestEventsResponse{Receipts: receipts}})
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidParam,
				"limit must be an integer between 1 and 500", err))
			return
		}
		limit = n
	}

	events, err := s.events.ListRecentEvents(r.Context(), limit)
	if err != nil {
		Error(w, r, err)
		return
	}
	JSON(w, r, http.StatusOK, APIResponse{Data: events})
}

func (s *Server) handleEventAttempts(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "id")

	attempts, err := s.events.ListAttemptsByEvent(r.Context(), eventID)
	if err != nil {
		Error(w, r, err)
		return
	}
	JSON(w, r, http.StatusOK, APIResponse{Data: attempts})
}

func (s *Server) handleListRegistry(w http.ResponseWriter, r *http.Request) {
	JSON(w, r, http.StatusOK, APIResponse{Data: s.definitions.ListAll()})
}

func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	JSON(w, r, http.StatusOK, APIResponse{Data: s.channels.Names()})
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	JSON(w, r, http.StatusOK, APIResponse{Data: s.templates.List()})
}

func (s *Server) handleSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	JSON(w, r, http.StatusOK, APIResponse{Data: s.scheduler.Status()})
}

// TriggerResponse reports whether a manual run was started. Triggered is false
// when a run of the same job was already in flight.
type TriggerResponse struct {
	Triggered bool `json:"triggered"`
}

func (s *Server) handleSchedulerTrigger(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	triggered, err := s.scheduler.Trigger(r.Context(), id)
	if err != nil {
		Error(w, r, err)
		return
	}
	JSON(w, r, http.StatusAccepted, APIResponse{Data: TriggerResponse{Triggered: triggered}})
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Database: "ok"}
	status := http.StatusOK

	if err := s.db.Ping(r.Context()); err != nil {
		s.logger.Error("health check database ping failed", "error", err)
		resp.Status = "degraded"
		resp.Database = "unreachable"
		status = http.StatusServiceUnavailable
	}

	JSON(w, r, status, resp)
}
