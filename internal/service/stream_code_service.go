package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"streamcode/internal/models"
	"streamcode/internal/notifications"
	"streamcode/internal/observability"
	"streamcode/internal/repository"
	"streamcode/internal/validation"

	"go.opentelemetry.io/otel/attribute"
)

const (
	// DefaultCodeTTL is how long an issued code stays live.
	DefaultCodeTTL = 24 * time.Hour
	// DefaultMaxAttempts bounds code generation retries per issue call.
	DefaultMaxAttempts = 10
)

// EventPublisher receives stream-code lifecycle events. Publishing is best-effort.
type EventPublisher interface {
	Publish(ctx context.Context, ev notifications.Event) error
}

// IssueResult is the outcome of a successful Issue call.
type IssueResult struct {
	Code      string
	ExpiresAt time.Time
	// Created is false when an existing live code was returned for the same stream.
	Created bool
}

// StreamCodeService maps stream descriptors to short, time-limited, shareable codes.
// It holds no state of its own; every call goes to the repository.
type StreamCodeService struct {
	repo        repository.StreamCodeRepository
	events      EventPublisher
	gen         CodeGenerator
	ttl         time.Duration
	maxAttempts int
	now         func() time.Time
}

// NewStreamCodeService builds the registry. Non-positive ttl or maxAttempts fall
// back to DefaultCodeTTL and DefaultMaxAttempts; events may be nil.
func NewStreamCodeService(
	repo repository.StreamCodeRepository,
	events EventPublisher,
	ttl time.Duration,
	maxAttempts int,
) *StreamCodeService {
	if ttl <= 0 {
		ttl = DefaultCodeTTL
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &StreamCodeService{
		repo:        repo,
		events:      events,
		gen:         RandomCodeGenerator{},
		ttl:         ttl,
		maxAttempts: maxAttempts,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Issue returns a live code for d. If a live record already describes the same
// stream its code is returned unchanged; otherwise a new unique code is stored.
func (s *StreamCodeService) Issue(ctx context.Context, d models.StreamDescriptor) (*IssueResult, error) {
	ctx, span := observability.GetTraceLayer().TraceServiceCall(ctx, "StreamCodeService", "Issue")
	defer span.End()

	if err := validation.ValidateDescriptor(d); err != nil {
		return nil, &models.AppError{Code: "VALIDATION_ERROR", Message: "Invalid stream descriptor", Err: err}
	}
	fingerprint, err := d.Fingerprint()
	if err != nil {
		return nil, &models.AppError{Code: "VALIDATION_ERROR", Message: "Invalid stream descriptor", Err: err}
	}
	span.SetAttributes(attribute.String("stream_code.kind", string(d.Kind)))

	now := s.now()

	existing, err := s.findLiveByFingerprint(ctx, fingerprint, now)
	if err != nil {
		observability.RecordErrorInContext(ctx, err)
		return nil, err
	}
	if existing != nil {
		observability.CodesIssued.WithLabelValues("reused").Inc()
		s.publish(ctx, notifications.Event{Type: notifications.EventReused, Code: existing.Code, Kind: string(d.Kind), ExpiresAt: existing.ExpiresAt, At: now})
		return &IssueResult{Code: existing.Code, ExpiresAt: existing.ExpiresAt, Created: false}, nil
	}

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		code, err := s.gen.Generate()
		if err != nil {
			return nil, fmt.Errorf("generate code: %w", err)
		}

		taken, err := s.repo.CodeExists(ctx, code)
		if err != nil {
			err = storageError("code_exists", err)
			observability.RecordErrorInContext(ctx, err)
			return nil, err
		}
		if taken {
			observability.CodeCollisions.WithLabelValues("lookup").Inc()
			continue
		}

		record := &models.StreamCode{
			Code:       code,
			Descriptor: d,
			IsActive:   true,
			CreatedAt:  now,
			ExpiresAt:  now.Add(s.ttl),
		}
		if err := s.repo.Create(ctx, record); err != nil {
			if errors.Is(err, repository.ErrCodeConflict) {
				observability.CodeCollisions.WithLabelValues("insert").Inc()
				continue
			}
			err = storageError("create", err)
			observability.RecordErrorInContext(ctx, err)
			return nil, err
		}

		observability.CodesIssued.WithLabelValues("created").Inc()
		observability.LogServiceCall(ctx, "StreamCodeService", "Issue", map[string]any{
			"code":     code,
			"kind":     string(d.Kind),
			"attempts": attempt,
		})
		s.publish(ctx, notifications.Event{Type: notifications.EventCreated, Code: code, Kind: string(d.Kind), ExpiresAt: record.ExpiresAt, At: now})
		return &IssueResult{Code: code, ExpiresAt: record.ExpiresAt, Created: true}, nil
	}

	observability.CodeSpaceExhausted.Inc()
	err = fmt.Errorf("%w: no free code after %d attempts", ErrCodeSpaceExhausted, s.maxAttempts)
	observability.RecordErrorInContext(ctx, err)
	return nil, err
}

// findLiveByFingerprint scans live records for one describing the same stream.
// Records whose stored descriptor cannot be fingerprinted are skipped.
func (s *StreamCodeService) findLiveByFingerprint(ctx context.Context, fingerprint string, now time.Time) (*models.StreamCode, error) {
	live, err := s.repo.FindLive(ctx, now)
	if err != nil {
		return nil, storageError("find_live", err)
	}
	observability.LiveSetSize.Observe(float64(len(live)))

	for i := range live {
		fp, err := live[i].Descriptor.Fingerprint()
		if err != nil {
			observability.GlobalLogger.WarnContext(ctx, "skipping stream code with unreadable descriptor",
				slog.String("code", live[i].Code),
				slog.String("error", err.Error()),
			)
			continue
		}
		if fp == fingerprint {
			return &live[i], nil
		}
	}
	return nil, nil
}

// Resolve returns the live record for code. Missing, deactivated and expired
// codes all report ok == false with a nil error.
func (s *StreamCodeService) Resolve(ctx context.Context, code string) (record *models.StreamCode, ok bool, err error) {
	ctx, span := observability.GetTraceLayer().TraceServiceCall(ctx, "StreamCodeService", "Resolve")
	defer span.End()

	code = NormalizeCode(code)
	if !IsWellFormedCode(code) {
		observability.CodeResolutions.WithLabelValues("absent").Inc()
		return nil, false, nil
	}

	record, err = s.repo.FindByCode(ctx, code)
	if err != nil {
		err = storageError("find_by_code", err)
		observability.RecordErrorInContext(ctx, err)
		return nil, false, err
	}
	if record == nil || !record.IsLive(s.now()) {
		observability.CodeResolutions.WithLabelValues("absent").Inc()
		return nil, false, nil
	}

	observability.CodeResolutions.WithLabelValues("found").Inc()
	return record, true, nil
}

// Deactivate stops code from resolving. It reports false when no active record
// held the code.
func (s *StreamCodeService) Deactivate(ctx context.Context, code string) (bool, error) {
	ctx, span := observability.GetTraceLayer().TraceServiceCall(ctx, "StreamCodeService", "Deactivate")
	defer span.End()

	code = NormalizeCode(code)
	if !IsWellFormedCode(code) {
		return false, nil
	}

	changed, err := s.repo.Deactivate(ctx, code)
	if err != nil {
		err = storageError("deactivate", err)
		observability.RecordErrorInContext(ctx, err)
		return false, err
	}
	if changed {
		observability.LogServiceCall(ctx, "StreamCodeService", "Deactivate", map[string]any{"code": code})
		s.publish(ctx, notifications.Event{Type: notifications.EventDeactivated, Code: code, At: s.now()})
	}
	return changed, nil
}

func (s *StreamCodeService) publish(ctx context.Context, ev notifications.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		observability.GlobalLogger.WarnContext(ctx, "failed to publish stream code event",
			slog.String("type", string(ev.Type)),
			slog.String("code", ev.Code),
			slog.String("error", err.Error()),
		)
	}
}
