// Package service runs ledger transactions. Each operation loads the
// aggregates it needs, applies exactly one state machine step, saves every
// touched aggregate inside one transaction and publishes the resulting events
// once the transaction commits.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	custody "coldchain/internal/custody/models"
	dosing "coldchain/internal/dosing/models"
	"coldchain/internal/ledger/metrics"
	"coldchain/internal/ledger/ports"
	"coldchain/internal/settlement"
	dErrors "coldchain/pkg/domain-errors"
	"coldchain/pkg/platform/events"
	"coldchain/pkg/platform/sentinel"
)

const tracerName = "coldchain/internal/ledger/service"

// Operation names, used for spans, metrics and logs.
const (
	OpRegisterParticipant = "register_participant"
	OpEnrollPatient       = "enroll_patient"
	OpUpdatePatientStatus = "update_patient_status"
	OpProduceDrug         = "produce_drug"
	OpPackDrug            = "pack_drug"
	OpDispatchToStorage   = "dispatch_to_storage"
	OpReceiveAtStorage    = "receive_at_storage"
	OpPeriodicAudit       = "periodic_audit"
	OpDispatchToHospital  = "dispatch_to_hospital"
	OpReceiveAtHospital   = "receive_at_hospital"
	OpUnpackDrug          = "unpack_drug"
	OpRecordInjection     = "record_injection"
)

// Result is what one committed transaction changed.
type Result struct {
	Operation    string
	Drugs        []*custody.DrugUnit
	Transfers    []*custody.CustodyTransfer
	Patients     []*dosing.PatientRecord
	Participants []*settlement.Participant
	Audit        *custody.AuditResult
	Settlement   *settlement.Receipt
	Events       []events.Event
}

func (r *Result) emit(e events.Event) {
	r.Events = append(r.Events, e)
}

// Service orchestrates ledger transactions.
type Service struct {
	tx      ports.Transactor
	sink    ports.EventSink
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
	clock   func() time.Time
	newID   func() string
}

type Option func(*Service)

func WithEventSink(sink ports.EventSink) Option {
	return func(s *Service) {
		s.sink = sink
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithClock sets the source of transaction timestamps when a request leaves
// them out.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithTransferIDs sets the generator for transfer ids a dispatch request leaves out.
func WithTransferIDs(next func() string) Option {
	return func(s *Service) {
		if next != nil {
			s.newID = next
		}
	}
}

// New constructs a Service over tx.
func New(tx ports.Transactor, opts ...Option) (*Service, error) {
	if tx == nil {
		return nil, errors.New("transactor is required")
	}
	s := &Service{
		tx:     tx,
		logger: slog.Default(),
		tracer: otel.Tracer(tracerName),
		clock:  time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// execute runs fn in one transaction. On commit it records metrics, publishes
// the result's events and logs the outcome.
func (s *Service) execute(ctx context.Context, op string, fn func(ctx context.Context, repo ports.Repository, res *Result) error) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "ledger."+op,
		trace.WithAttributes(attribute.String("ledger.operation", op)))
	defer span.End()
	start := time.Now()

	var res *Result
	err := s.tx.RunInTx(ctx, func(repo ports.Repository) error {
		res = &Result{Operation: op}
		return fn(ctx, repo, res)
	})
	if s.metrics != nil {
		s.metrics.ObserveTransaction(op, start, err)
	}
	if err != nil {
		err = translate(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.InfoContext(ctx, "ledger transaction rejected",
			"operation", op,
			"code", string(dErrors.CodeOf(err)),
			"error", err,
		)
		return nil, err
	}

	s.observe(res)
	s.publish(ctx, res.Events)
	s.logger.InfoContext(ctx, "ledger transaction committed", resultAttrs(res)...)
	return res, nil
}

// read runs a lookup in its own transaction.
func (s *Service) read(ctx context.Context, op string, fn func(ctx context.Context, repo ports.Repository) error) error {
	ctx, span := s.tracer.Start(ctx, "ledger."+op)
	defer span.End()
	if err := s.tx.RunInTx(ctx, func(repo ports.Repository) error { return fn(ctx, repo) }); err != nil {
		err = translate(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (s *Service) observe(res *Result) {
	if s.metrics == nil {
		return
	}
	if res.Audit != nil {
		s.metrics.RecordGateCheck(string(res.Audit.Checkpoint), res.Audit.Passed())
	}
	if res.Settlement != nil && res.Settlement.Settled {
		s.metrics.RecordSettlement(res.Settlement.Amount.InexactFloat64())
	}
	if res.Operation == OpRecordInjection {
		s.metrics.InjectionsRecorded.Inc()
	}
}

// publish hands events to the sink. The transaction has already committed, so
// a failure is logged and counted, never returned.
func (s *Service) publish(ctx context.Context, evs []events.Event) {
	if s.sink == nil {
		return
	}
	for _, e := range evs {
		if err := s.sink.Publish(ctx, e); err != nil {
			s.logger.WarnContext(ctx, "event publish failed",
				"event_id", e.ID.String(),
				"kind", string(e.Kind),
				"aggregate_id", e.AggregateID,
				"error", err,
			)
			if s.metrics != nil {
				s.metrics.EventsDropped.Inc()
			}
		}
	}
}

func resultAttrs(res *Result) []any {
	attrs := []any{"operation", res.Operation}
	for _, d := range res.Drugs {
		attrs = append(attrs, "vial_id", d.ID.String(), "location_status", string(d.Status))
	}
	for _, t := range res.Transfers {
		attrs = append(attrs, "transfer_id", t.ID.String(), "transfer_status", string(t.Status))
	}
	for _, p := range res.Patients {
		attrs = append(attrs, "patient_id", p.ID.String(), "patient_status", string(p.Status))
	}
	if res.Audit != nil {
		attrs = append(attrs, "checkpoint", string(res.Audit.Checkpoint), "outcome", string(res.Audit.Reading.Outcome))
	}
	if res.Settlement != nil && res.Settlement.Settled {
		attrs = append(attrs, "settled_amount", res.Settlement.Amount.String())
	}
	return attrs
}

// translate maps store sentinels and context errors onto domain error codes.
// Domain errors pass through unchanged.
func translate(err error) error {
	var domainErr *dErrors.Error
	switch {
	case errors.As(err, &domainErr):
		return err
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, "concurrent update, retry the operation")
	case errors.Is(err, sentinel.ErrAlreadyExists):
		return dErrors.Wrap(err, dErrors.CodeConflict, "aggregate already exists")
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, "aggregate not found")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "ledger transaction failed")
}

// loadErr reports a failed Find* in terms of the aggregate.
func loadErr(err error, kind, key string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Newf(dErrors.CodeNotFound, "%s %s not found", kind, key)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load "+kind)
}

// createErr reports a failed create in terms of the aggregate.
func createErr(err error, kind, key string) error {
	if errors.Is(err, sentinel.ErrAlreadyExists) {
		return dErrors.Newf(dErrors.CodeConflict, "%s %s already exists", kind, key)
	}
	return err
}

// asValidation reports constructor invariant failures on caller input as
// validation errors.
func asValidation(err error) error {
	if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
		return dErrors.New(dErrors.CodeValidation, err.Error())
	}
	return err
}

func (s *Service) at(t time.Time) time.Time {
	if t.IsZero() {
		return s.clock()
	}
	return t
}
