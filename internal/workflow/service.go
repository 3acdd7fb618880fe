package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/opaline-simulator/internal/events"
	"github.com/noah-isme/opaline-simulator/internal/ledger"
	"github.com/noah-isme/opaline-simulator/internal/lock"
	"github.com/noah-isme/opaline-simulator/internal/notify"
	"github.com/noah-isme/opaline-simulator/internal/obs"
	"github.com/noah-isme/opaline-simulator/internal/pricing"
	"github.com/noah-isme/opaline-simulator/internal/submission"
)

// Outcome classifies a finished submission run.
type Outcome string

const (
	OutcomeAccepted         Outcome = "accepted"
	OutcomeValidationFailed Outcome = "validation_failed"
	OutcomePartialFailure   Outcome = "partial_failure"
	OutcomeFailed           Outcome = "failed"
)

// Recorder appends submissions to the ledger.
type Recorder interface {
	Append(ctx context.Context, s *submission.Submission) (ledger.Result, error)
}

// Notifier delivers the confirmation email.
type Notifier interface {
	Send(ctx context.Context, s *submission.Submission) notify.Result
}

// Locker serialises work per key.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(context.Context) error) error
}

// Emitter publishes domain events.
type Emitter interface {
	Emit(ctx context.Context, topic, key string, payload any) (events.Event, error)
}

// Result is the outcome of one Process call. Err holds the diagnostic cause
// of a validation_failed or failed run and is meant for logs.
type Result struct {
	Outcome      Outcome
	Submission   *submission.Submission
	Record       ledger.Result
	Notification notify.Result
	Err          error
}

// Service runs the validate, compute, persist, notify sequence.
type Service struct {
	recorder               Recorder
	notifier               Notifier
	locker                 Locker
	events                 Emitter
	pricing                pricing.Config
	now                    func() time.Time
	notifyOnPersistFailure bool
	logger                 zerolog.Logger
}

// ServiceConfig groups Service dependencies. Locker and Events are optional.
type ServiceConfig struct {
	Recorder               Recorder
	Notifier               Notifier
	Locker                 Locker
	Events                 Emitter
	Pricing                pricing.Config
	Now                    func() time.Time
	NotifyOnPersistFailure bool
	Logger                 zerolog.Logger
}

// NewService validates the configuration and builds a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Recorder == nil {
		return nil, errors.New("workflow: recorder is required")
	}
	if cfg.Notifier == nil {
		return nil, errors.New("workflow: notifier is required")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		recorder:               cfg.Recorder,
		notifier:               cfg.Notifier,
		locker:                 cfg.Locker,
		events:                 cfg.Events,
		pricing:                cfg.Pricing,
		now:                    now,
		notifyOnPersistFailure: cfg.NotifyOnPersistFailure,
		logger:                 cfg.Logger,
	}, nil
}

// Pricing returns the unit prices the service computes with.
func (s *Service) Pricing() pricing.Config {
	return s.pricing
}

// Quote computes the amounts for the given kit volumes without side effects.
func (s *Service) Quote(kit1Person, kit2Person int) pricing.Result {
	return pricing.Compute(kit1Person, kit2Person, s.pricing)
}

// Process runs one submission to completion. Validation failures have no side
// effects; a persistence failure skips notification unless the service was
// configured to notify anyway.
func (s *Service) Process(ctx context.Context, in submission.Input) (res Result) {
	start := time.Now()
	ctx, span := otel.Tracer("workflow.Service").Start(ctx, "workflow.process")
	defer func() {
		span.SetAttributes(attribute.String("submission.outcome", string(res.Outcome)))
		if res.Err != nil && res.Outcome == OutcomeFailed {
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, string(res.Outcome))
		}
		span.End()
		s.record(res.Outcome, time.Since(start))
		s.log(ctx, res)
	}()

	sub, err := submission.New(in, s.now(), s.pricing)
	if err != nil {
		return Result{Outcome: OutcomeValidationFailed, Err: err}
	}
	span.SetAttributes(attribute.String("submission.id", sub.ID().String()))
	res.Submission = sub

	if s.locker == nil {
		s.run(ctx, sub, &res)
		return res
	}
	err = s.locker.WithLock(ctx, lock.ContactKey(sub.ContactEmail()), func(ctx context.Context) error {
		s.run(ctx, sub, &res)
		return nil
	})
	if err != nil && res.Outcome == "" {
		res.Outcome = OutcomeFailed
		res.Err = fmt.Errorf("workflow: contact lock: %w", err)
	}
	return res
}

func (s *Service) run(ctx context.Context, sub *submission.Submission, res *Result) {
	record, err := s.recorder.Append(ctx, sub)
	if err != nil {
		res.Outcome = OutcomeFailed
		res.Err = err
		if s.notifyOnPersistFailure {
			res.Notification = s.notifier.Send(ctx, sub)
		}
		return
	}
	res.Record = record
	if record.Appended {
		s.emitRecorded(ctx, sub)
	}

	res.Notification = s.notifier.Send(ctx, sub)
	if !res.Notification.Delivered {
		res.Outcome = OutcomePartialFailure
		return
	}
	res.Outcome = OutcomeAccepted
}

// recordedPayload is the body of the submission.recorded event.
type recordedPayload struct {
	SubmissionID       string        `json:"submissionId"`
	Timestamp          time.Time     `json:"timestamp"`
	ContactEmail       string        `json:"contactEmail"`
	MonthlyClientCount int           `json:"monthlyClientCount"`
	KitCount1Person    int           `json:"kitCount1Person"`
	KitCount2Person    int           `json:"kitCount2Person"`
	Revenue            pricing.Money `json:"revenue"`
	TotalCost          pricing.Money `json:"totalCost"`
	NetProfit          pricing.Money `json:"netProfit"`
}

func (s *Service) emitRecorded(ctx context.Context, sub *submission.Submission) {
	if s.events == nil {
		return
	}
	p := sub.Pricing()
	_, err := s.events.Emit(ctx, events.TopicSubmissionRecorded, sub.ID().String(), recordedPayload{
		SubmissionID:       sub.ID().String(),
		Timestamp:          sub.Timestamp().UTC(),
		ContactEmail:       sub.ContactEmail(),
		MonthlyClientCount: sub.MonthlyClientCount(),
		KitCount1Person:    sub.KitCount1Person(),
		KitCount2Person:    sub.KitCount2Person(),
		Revenue:            p.Revenue,
		TotalCost:          p.TotalCost,
		NetProfit:          p.NetProfit,
	})
	if err != nil {
		s.loggerFor(ctx).Warn().Err(err).Str("submission_id", sub.ID().String()).Msg("event_publish_failed")
	}
}

func (s *Service) record(outcome Outcome, elapsed time.Duration) {
	if obs.SubmissionOutcomesTotal != nil {
		obs.SubmissionOutcomesTotal.WithLabelValues(string(outcome)).Inc()
	}
	if obs.WorkflowDuration != nil {
		obs.WorkflowDuration.WithLabelValues(string(outcome)).Observe(obs.DurationMillis(elapsed))
	}
}

func (s *Service) log(ctx context.Context, res Result) {
	logger := s.loggerFor(ctx)
	var event *zerolog.Event
	switch res.Outcome {
	case OutcomeAccepted, OutcomeValidationFailed:
		event = logger.Info()
	default:
		event = logger.Warn()
	}
	event = event.Str("outcome", string(res.Outcome))
	if res.Submission != nil {
		event = event.Str("submission_id", res.Submission.ID().String()).
			Bool("appended", res.Record.Appended).
			Bool("delivered", res.Notification.Delivered)
	}
	if res.Record.Reason != "" {
		event = event.Str("skip_reason", res.Record.Reason)
	}
	if res.Notification.ErrorDetail != "" {
		event = event.Str("notify_detail", res.Notification.ErrorDetail)
	}
	if res.Err != nil {
		event = event.Err(res.Err)
	}
	event.Msg("submission_processed")
}

func (s *Service) loggerFor(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &s.logger
}
