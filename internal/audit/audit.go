// Package audit fans trade, API-call, and error events out to sinks. Sinks are
// fire-and-forget: a sink failure is logged and never propagated, so the
// trading path cannot be blocked by observability.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/quantfold/futbot/internal/domain"
)

// SlogSink writes events to a structured logger.
type SlogSink struct {
	logger *slog.Logger
}

// NewSlogSink returns a sink backed by logger.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	return &SlogSink{logger: logger}
}

func (s *SlogSink) Trade(ctx context.Context, ev domain.TradeEvent) {
	s.logger.LogAttrs(ctx, slog.LevelInfo, "trade",
		slog.String("action", ev.Action),
		slog.String("symbol", ev.Symbol),
		slog.String("side", string(ev.Side)),
		slog.String("type", string(ev.Type)),
		slog.String("quantity", ev.Quantity),
		slog.String("price", ev.Price),
		slog.Int64("order_id", ev.OrderID),
		slog.String("status", string(ev.Status)),
	)
}

func (s *SlogSink) APICall(ctx context.Context, ev domain.APICallEvent) {
	level := slog.LevelDebug
	if ev.Err != "" {
		level = slog.LevelWarn
	}
	s.logger.LogAttrs(ctx, level, "api call",
		slog.String("endpoint", ev.Endpoint),
		slog.String("method", ev.Method),
		slog.Int("http_code", ev.HTTPCode),
		slog.Duration("latency", ev.Latency),
		slog.String("error", ev.Err),
	)
}

func (s *SlogSink) Error(ctx context.Context, ev domain.ErrorEvent) {
	attrs := []slog.Attr{
		slog.String("kind", ev.Kind),
		slog.String("message", ev.Message),
	}
	for k, v := range ev.Context {
		attrs = append(attrs, slog.String(k, v))
	}
	s.logger.LogAttrs(ctx, slog.LevelError, "error event", attrs...)
}

// FileSink appends events to a file as JSON lines, one object per event. The
// file is the durable audit trail reviewed after trading sessions.
type FileSink struct {
	mu     sync.Mutex
	f      *os.File
	enc    *json.Encoder
	logger *slog.Logger
}

// NewFileSink opens (or creates) path for appending.
func NewFileSink(path string, logger *slog.Logger) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileSink{f: f, enc: json.NewEncoder(f), logger: logger}, nil
}

// record is the on-disk envelope. Kind discriminates the payload.
type record struct {
	Kind string    `json:"kind"`
	At   time.Time `json:"at"`
	Data any       `json:"data"`
}

func (s *FileSink) write(kind string, at time.Time, data any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(record{Kind: kind, At: at, Data: data}); err != nil {
		s.logger.Warn("audit file write failed", slog.String("error", err.Error()))
	}
}

func (s *FileSink) Trade(_ context.Context, ev domain.TradeEvent) { s.write("trade", ev.At, ev) }

func (s *FileSink) APICall(_ context.Context, ev domain.APICallEvent) { s.write("api_call", ev.At, ev) }

func (s *FileSink) Error(_ context.Context, ev domain.ErrorEvent) { s.write("error", ev.At, ev) }

// Close flushes and closes the underlying file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}

// MultiSink forwards every event to each wrapped sink in order.
type MultiSink struct {
	sinks []domain.EventSink
}

// NewMultiSink combines sinks; nil entries are skipped.
func NewMultiSink(sinks ...domain.EventSink) *MultiSink {
	m := &MultiSink{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

func (m *MultiSink) Trade(ctx context.Context, ev domain.TradeEvent) {
	for _, s := range m.sinks {
		s.Trade(ctx, ev)
	}
}

func (m *MultiSink) APICall(ctx context.Context, ev domain.APICallEvent) {
	for _, s := range m.sinks {
		s.APICall(ctx, ev)
	}
}

func (m *MultiSink) Error(ctx context.Context, ev domain.ErrorEvent) {
	for _, s := range m.sinks {
		s.Error(ctx, ev)
	}
}

var (
	_ domain.EventSink = (*SlogSink)(nil)
	_ domain.EventSink = (*FileSink)(nil)
	_ domain.EventSink = (*MultiSink)(nil)
)
