package audit

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// Sink receives finished audit records
type Sink interface {
	Write(ctx context.Context, rec *Record) error
}

// SinkFunc adapts a function to Sink
type SinkFunc func(ctx context.Context, rec *Record) error

// Write implements Sink
func (f SinkFunc) Write(ctx context.Context, rec *Record) error {
	return f(ctx, rec)
}

// LogSink writes records to a zap logger
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a sink that logs every record at info level
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger.Named("audit")}
}

// Write implements Sink
func (s *LogSink) Write(_ context.Context, rec *Record) error {
	fields := []zap.Field{
		zap.Stringer("id", rec.ID),
		zap.String("op", rec.Op),
		zap.String("resource_type", rec.ResourceType),
		zap.String("actor_id", rec.ActorID),
		zap.String("tenant_id", rec.TenantID),
		zap.String("request_id", rec.RequestID),
	}
	if rec.ResourceID != nil {
		fields = append(fields, zap.String("resource_id", *rec.ResourceID))
	}
	if rec.After != nil {
		fields = append(fields, zap.Any("after", rec.After))
	}
	s.logger.Info("audit", fields...)
	return nil
}

// MultiSink fans a record out to several sinks. Every sink is attempted.
type MultiSink []Sink

// Write implements Sink
func (m MultiSink) Write(ctx context.Context, rec *Record) error {
	var errs []error
	for _, s := range m {
		if err := s.Write(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
