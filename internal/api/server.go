package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dunamismax/variantflow/internal/domain"
	"github.com/dunamismax/variantflow/internal/id"
	"github.com/dunamismax/variantflow/internal/logging"
	"github.com/dunamismax/variantflow/internal/queue"
	"github.com/dunamismax/variantflow/internal/store"
	"github.com/dunamismax/variantflow/internal/trigger"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const maxBodyBytes = 1 << 20

// Intake outcomes returned to the notifying bucket.
const (
	StateQueued    = "queued"
	StateDuplicate = "duplicate"
	StateIgnored   = "ignored"
)

type Server struct {
	logger           zerolog.Logger
	queueClient      queueEnqueuer
	guard            Deduper
	reports          store.ReportStore
	eventNameFilters []string
	authToken        string
	metrics          *metrics
	tracer           trace.Tracer
	mux              *http.ServeMux
}

type queueEnqueuer interface {
	EnqueueObjectCreated(ctx context.Context, payload queue.ObjectCreatedPayload) (*asynq.TaskInfo, error)
}

type Options struct {
	// EventNameFilters limits which notifications are queued. Empty accepts
	// every object-created event.
	EventNameFilters []string
	// AuthToken, when set, must match the bearer token on intake requests.
	AuthToken string
	Reports   store.ReportStore
	Guard     Deduper
}

func NewServer(logger zerolog.Logger, queueClient queueEnqueuer, opts Options) *Server {
	s := &Server{
		logger:           logger,
		queueClient:      queueClient,
		guard:            opts.Guard,
		reports:          opts.Reports,
		eventNameFilters: opts.EventNameFilters,
		authToken:        strings.TrimSpace(opts.AuthToken),
		metrics:          newMetrics(),
		tracer:           otel.Tracer("variantflow/api"),
		mux:              http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.withTracing(s.metrics.withHTTPMetrics(s.mux))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.Handle("GET /metrics", s.metrics.metricsHandler())
	s.mux.Handle("POST /v1/events", s.withAuth(http.HandlerFunc(s.handleEvent)))
	s.mux.Handle("GET /v1/reports/{id}", s.withAuth(http.HandlerFunc(s.handleGetReport)))
	s.mux.Handle("GET /v1/reports", s.withAuth(http.HandlerFunc(s.handleListReports)))
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleEvent accepts one S3 or MinIO bucket notification and queues it for
// the worker. Notifications that will never be processed still get a 2xx so
// the bucket does not redeliver them.
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read body"})
		return
	}

	ev, err := trigger.Parse(body)
	if errors.Is(err, trigger.ErrNoRecords) {
		s.metrics.eventsTotal.WithLabelValues(StateIgnored).Inc()
		writeJSON(w, http.StatusAccepted, map[string]string{"state": StateIgnored, "reason": err.Error()})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := ev.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if !ev.IsObjectCreated() || !trigger.MatchesEventName(ev.EventName, s.eventNameFilters) {
		s.metrics.eventsTotal.WithLabelValues(StateIgnored).Inc()
		writeJSON(w, http.StatusAccepted, map[string]string{"state": StateIgnored, "reason": fmt.Sprintf("event %q is not accepted", ev.EventName)})
		return
	}

	eventID := eventIDFor(ev)
	logger := s.logger.With().
		Str("event_id", eventID).
		Str(logging.FieldBucket, ev.Bucket).
		Str(logging.FieldKey, ev.Key).
		Logger()

	fresh, err := s.claim(r.Context(), eventID)
	if err != nil {
		// Redis trouble should not drop uploads; asynq's task id still
		// catches duplicates that are queued at the same time.
		logger.Warn().Err(err).Msg("dedupe check failed")
	}
	if !fresh {
		s.metrics.eventsTotal.WithLabelValues(StateDuplicate).Inc()
		writeJSON(w, http.StatusAccepted, map[string]string{"event_id": eventID, "state": StateDuplicate})
		return
	}

	info, err := s.queueClient.EnqueueObjectCreated(r.Context(), queue.ObjectCreatedPayload{
		EventID:    eventID,
		Event:      ev,
		ReceivedAt: time.Now().UTC(),
	})
	if errors.Is(err, queue.ErrDuplicate) {
		s.metrics.eventsTotal.WithLabelValues(StateDuplicate).Inc()
		writeJSON(w, http.StatusAccepted, map[string]string{"event_id": eventID, "state": StateDuplicate})
		return
	}
	if err != nil {
		s.release(r.Context(), eventID, logger)
		logger.Error().Err(err).Msg("enqueue notification failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "failed to enqueue event"})
		return
	}

	s.metrics.eventsTotal.WithLabelValues(StateQueued).Inc()
	s.metrics.queueEnqueued.WithLabelValues(info.Queue).Inc()
	logger.Info().Str("task_id", info.ID).Str("queue", info.Queue).Msg("notification queued")

	writeJSON(w, http.StatusAccepted, map[string]any{
		"event_id":    eventID,
		"state":       StateQueued,
		"queue":       info.Queue,
		"task_id":     info.ID,
		"enqueued_at": info.NextProcessAt,
	})
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	if s.reports == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "report store is not configured"})
		return
	}

	report, ok, err := s.reports.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.logger.Error().Err(err).Msg("load report failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load report"})
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "report not found"})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	if s.reports == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "report store is not configured"})
		return
	}

	q := r.URL.Query()
	bucket, key := q.Get("bucket"), q.Get("key")
	if bucket == "" || key == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bucket and key query parameters are required"})
		return
	}
	limit, _ := strconv.Atoi(q.Get("limit"))

	reports, err := s.reports.ListByKey(r.Context(), bucket, key, limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("list reports failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list reports"})
		return
	}
	if reports == nil {
		reports = []domain.Report{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"reports": reports})
}

func (s *Server) withAuth(next http.Handler) http.Handler {
	if s.authToken == "" {
		return next
	}
	want := []byte("Bearer " + s.authToken)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := []byte(r.Header.Get("Authorization"))
		if subtle.ConstantTimeCompare(got, want) != 1 {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// eventIDFor is stable across redeliveries when the bucket provides a
// sequencer; otherwise every delivery is treated as new.
func eventIDFor(ev domain.TriggerEvent) string {
	if ev.Sequencer != "" {
		return id.FromEvent(ev.Bucket, ev.Key, ev.Sequencer)
	}
	return id.New()
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
