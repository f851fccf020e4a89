package api

import (
	"context"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName         = "person-api"
	personsSpanName    = "persons.request"
	personsEventName   = "persons.request"
	personsEventDomain = "persons"
)

// requestMetrics collects per-request timings and emits them twice: as a
// span on the active tracer and as a structured observability log record.
type requestMetrics struct {
	logger          *log.Logger
	span            trace.Span
	route           string
	start           time.Time
	fetchDuration   time.Duration
	storeDuration   time.Duration
	encodeDuration  time.Duration
	recordsReturned int
	errorStage      string
}

func newRequestMetrics(ctx context.Context, logger *log.Logger, route string) (*requestMetrics, context.Context) {
	spanCtx, span := otel.Tracer(tracerName).Start(ctx, personsSpanName)
	return &requestMetrics{
		logger: logger,
		span:   span,
		route:  route,
		start:  time.Now(),
	}, spanCtx
}

func (m *requestMetrics) ObserveFetch(d time.Duration) {
	if d > 0 {
		m.fetchDuration = d
	}
}

func (m *requestMetrics) ObserveStore(d time.Duration) {
	if d > 0 {
		m.storeDuration = d
	}
}

func (m *requestMetrics) ObserveEncode(d time.Duration) {
	if d > 0 {
		m.encodeDuration = d
	}
}

func (m *requestMetrics) SetRecordsReturned(count int) {
	if count < 0 {
		count = 0
	}
	m.recordsReturned = count
}

func (m *requestMetrics) SetErrorStage(stage string) {
	if stage != "" {
		m.errorStage = stage
	}
}

// Log finishes the span and writes the observability event. Call it exactly
// once, after the response status is known.
func (m *requestMetrics) Log(status int, err error) {
	if m == nil || m.logger == nil {
		return
	}

	severityText, severityNumber := severityForStatus(status, err)
	attrs := []attribute.KeyValue{
		attribute.String("event.name", personsEventName),
		attribute.String("event.domain", personsEventDomain),
		attribute.String("http.route", m.route),
		attribute.Int("http.status_code", status),
		attribute.Float64("persons.total_ms", durationToMillis(time.Since(m.start))),
		attribute.Int("persons.records_returned", m.recordsReturned),
		attribute.String("severity_text", severityText),
	}
	if m.fetchDuration > 0 {
		attrs = append(attrs, attribute.Float64("persons.fetch_ms", durationToMillis(m.fetchDuration)))
	}
	if m.storeDuration > 0 {
		attrs = append(attrs, attribute.Float64("persons.store_ms", durationToMillis(m.storeDuration)))
	}
	if m.encodeDuration > 0 {
		attrs = append(attrs, attribute.Float64("persons.encode_ms", durationToMillis(m.encodeDuration)))
	}
	if m.errorStage != "" {
		attrs = append(attrs, attribute.String("persons.error_stage", m.errorStage))
	}
	if err != nil {
		attrs = append(attrs, attribute.String("error.message", err.Error()))
	}

	m.span.SetAttributes(attrs...)
	m.span.AddEvent("observability.event", trace.WithAttributes(attrs...))
	if err != nil || status >= http.StatusInternalServerError {
		msg := http.StatusText(status)
		if err != nil {
			msg = err.Error()
		}
		m.span.SetStatus(codes.Error, msg)
	} else {
		m.span.SetStatus(codes.Ok, "")
	}
	m.span.End()

	fields := log.Fields{
		"event.name":      personsEventName,
		"event.domain":    personsEventDomain,
		"http.route":      m.route,
		"http.status":     status,
		"severity_text":   severityText,
		"severity_number": severityNumber,
		"total_ms":        durationToMillis(time.Since(m.start)),
	}
	if sc := m.span.SpanContext(); sc.HasTraceID() {
		fields["trace_id"] = sc.TraceID().String()
	}
	if m.errorStage != "" {
		fields["error_stage"] = m.errorStage
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	m.logger.WithFields(fields).Info("observability.event")
}

func severityForStatus(status int, err error) (string, int) {
	switch {
	case err != nil || status >= http.StatusInternalServerError:
		return "ERROR", 17
	case status >= http.StatusBadRequest:
		return "WARN", 13
	default:
		return "INFO", 9
	}
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
