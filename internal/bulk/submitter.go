// Package bulk submits a batch of booking records to the API concurrently.
package bulk

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/wolfman30/museumbook/internal/booking"
	"github.com/wolfman30/museumbook/internal/ingest"
	"github.com/wolfman30/museumbook/internal/museumapi"
	"github.com/wolfman30/museumbook/internal/observability/metrics"
	"github.com/wolfman30/museumbook/pkg/logging"
)

var tracer = otel.Tracer("museumbook.internal.bulk")

// ErrNoRecords is returned when Submit is given an empty batch.
var ErrNoRecords = errors.New("bulk: no records to submit")

// maxRetryDelay caps the exponential backoff between attempts.
const maxRetryDelay = 30 * time.Second

// Creator creates one appointment. *museumapi.Client satisfies it.
type Creator interface {
	CreateAppointment(ctx context.Context, rec booking.Record) (*museumapi.CreateAppointmentResult, error)
}

// CompleteFunc runs once every outcome of a batch has resolved.
type CompleteFunc func(ctx context.Context, result *Result)

// Submitter fans records out over a bounded pool of workers. Requests are
// released in input order at most once per stagger interval.
type Submitter struct {
	creator     Creator
	logger      *logging.Logger
	metrics     *metrics.BulkMetrics
	concurrency int
	stagger     time.Duration
	maxAttempts int
	baseDelay   time.Duration
	onProgress  func(done, total int)
	onComplete  []CompleteFunc
}

func NewSubmitter(creator Creator, logger *logging.Logger) *Submitter {
	if logger == nil {
		logger = logging.Default()
	}
	return &Submitter{
		creator:     creator,
		logger:      logger,
		concurrency: 8,
		stagger:     25 * time.Millisecond,
		maxAttempts: 1,
		baseDelay:   200 * time.Millisecond,
	}
}

func (s *Submitter) WithConcurrency(n int) *Submitter {
	if n > 0 {
		s.concurrency = n
	}
	return s
}

// WithStagger sets the minimum gap between request releases. Zero disables
// pacing.
func (s *Submitter) WithStagger(d time.Duration) *Submitter {
	if d >= 0 {
		s.stagger = d
	}
	return s
}

// WithMaxAttempts sets attempts per record. 1 disables retries.
func (s *Submitter) WithMaxAttempts(n int) *Submitter {
	if n > 0 {
		s.maxAttempts = n
	}
	return s
}

func (s *Submitter) WithBaseDelay(d time.Duration) *Submitter {
	if d > 0 {
		s.baseDelay = d
	}
	return s
}

func (s *Submitter) WithMetrics(m *metrics.BulkMetrics) *Submitter {
	s.metrics = m
	return s
}

// OnProgress registers a callback invoked after each outcome. Calls are
// serialized and done increases by one each time.
func (s *Submitter) OnProgress(fn func(done, total int)) *Submitter {
	s.onProgress = fn
	return s
}

// OnComplete appends a hook run after the batch finishes, even when ctx was
// cancelled mid-batch.
func (s *Submitter) OnComplete(fn CompleteFunc) *Submitter {
	if fn != nil {
		s.onComplete = append(s.onComplete, fn)
	}
	return s
}

// Submit books every record and waits for all of them. A batch containing
// duplicate (idNumber, visitDate) keys is rejected with *ingest.DuplicateError
// before any request is made. Individual failures never stop the batch.
func (s *Submitter) Submit(ctx context.Context, records []booking.Record) (*Result, error) {
	return s.SubmitWithProgress(ctx, records, nil)
}

// SubmitWithProgress is Submit with an additional progress callback scoped to
// this batch, for callers that share one Submitter across requests.
func (s *Submitter) SubmitWithProgress(ctx context.Context, records []booking.Record, progress func(done, total int)) (*Result, error) {
	if len(records) == 0 {
		return nil, ErrNoRecords
	}
	if dups := ingest.DetectDuplicates(records); dups.HasDuplicates() {
		s.metrics.ObserveDuplicateBlock()
		s.logger.Warn("bulk booking blocked by duplicates", "offenders", dups.Offenders())
		return nil, dups.Err()
	}

	result := &Result{
		BatchID:  uuid.NewString(),
		Outcomes: make([]Outcome, len(records)),
		Started:  time.Now(),
	}
	ctx, span := tracer.Start(ctx, "bulk.submit", trace.WithAttributes(
		attribute.String("museumbook.batch_id", result.BatchID),
		attribute.Int("museumbook.records", len(records)),
	))
	defer span.End()

	logger := s.logger.With("batch_id", result.BatchID)
	logger.Info("bulk booking started", "records", len(records), "concurrency", s.concurrency)

	var (
		mu   sync.Mutex
		done int
	)
	record := func(o Outcome) {
		mu.Lock()
		defer mu.Unlock()
		result.Outcomes[o.Index] = o
		done++
		if s.onProgress != nil {
			s.onProgress(done, len(records))
		}
		if progress != nil {
			progress(done, len(records))
		}
	}

	workers := s.concurrency
	if workers > len(records) {
		workers = len(records)
	}
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				o := s.submitOne(ctx, i, records[i])
				s.logOutcome(logger, o)
				record(o)
			}
		}()
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if s.stagger > 0 {
		limiter = rate.NewLimiter(rate.Every(s.stagger), 1)
	}
	released := s.dispatch(ctx, limiter, jobs, len(records))
	close(jobs)
	wg.Wait()

	if released < len(records) {
		cause := ctx.Err()
		if cause == nil {
			cause = context.Canceled
		}
		for i := released; i < len(records); i++ {
			record(Outcome{Index: i, Record: records[i], Error: cause.Error(), Err: cause})
		}
		result.Cancelled = true
		logger.Warn("bulk booking cancelled", "unreleased", len(records)-released, "error", cause)
	}
	result.Finished = time.Now()

	summary := result.Summary()
	s.metrics.ObserveBatch(summary)
	span.SetAttributes(
		attribute.Int("museumbook.succeeded", result.Succeeded()),
		attribute.Int("museumbook.failed", result.Failed()),
	)
	if summary != "complete" {
		span.SetStatus(codes.Error, summary)
	}
	logger.Info("bulk booking finished",
		"result", summary,
		"succeeded", result.Succeeded(),
		"failed", result.Failed(),
		"duration_ms", result.Finished.Sub(result.Started).Milliseconds(),
	)

	hookCtx := context.WithoutCancel(ctx)
	for _, fn := range s.onComplete {
		fn(hookCtx, result)
	}
	return result, nil
}

// dispatch releases indices in order, paced by limiter, and returns how many
// were handed to a worker before ctx ended.
func (s *Submitter) dispatch(ctx context.Context, limiter *rate.Limiter, jobs chan<- int, n int) int {
	for i := 0; i < n; i++ {
		if err := limiter.Wait(ctx); err != nil {
			return i
		}
		select {
		case jobs <- i:
		case <-ctx.Done():
			return i
		}
	}
	return n
}

func (s *Submitter) submitOne(ctx context.Context, index int, rec booking.Record) Outcome {
	out := Outcome{Index: index, Record: rec}
	start := time.Now()
	defer func() {
		out.Duration = time.Since(start)
		s.metrics.ObserveOutcome(string(rec.Museum), out.Success, out.Duration.Seconds())
	}()

	if err := rec.Validate(); err != nil {
		out.Err = err
		out.Error = strings.TrimPrefix(err.Error(), booking.ErrInvalidRecord.Error()+": ")
		return out
	}

	for attempt := 1; ; attempt++ {
		out.Attempts = attempt
		res, err := s.creator.CreateAppointment(ctx, rec)
		if err == nil {
			out.Success = true
			out.Error, out.Err = "", nil
			if res != nil && res.Appointment != nil {
				out.AppointmentID = res.Appointment.ID
			}
			if res != nil && res.MuseumResponse != nil {
				out.MuseumBookingID = res.MuseumResponse.MuseumBookingID
				out.ConfirmationCode = res.MuseumResponse.ConfirmationCode
			}
			out.AppointmentID = orUnknown(out.AppointmentID)
			out.MuseumBookingID = orUnknown(out.MuseumBookingID)
			out.ConfirmationCode = orUnknown(out.ConfirmationCode)
			return out
		}

		out.Err = err
		out.Error = failureMessage(err)
		if attempt >= s.maxAttempts || !retryable(err) {
			return out
		}
		if err := sleep(ctx, s.retryDelay(attempt)); err != nil {
			return out
		}
	}
}

// retryDelay doubles baseDelay for each failed attempt, capped at
// maxRetryDelay. Doubling stops at the cap so large attempt counts cannot
// overflow.
func (s *Submitter) retryDelay(attempt int) time.Duration {
	delay := s.baseDelay
	for i := 1; i < attempt && delay < maxRetryDelay; i++ {
		delay *= 2
	}
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	return delay
}

func (s *Submitter) logOutcome(logger *logging.Logger, o Outcome) {
	if o.Success {
		logger.Info("booking created",
			"index", o.Index,
			"id_number", booking.MaskIDNumber(o.Record.IDNumber),
			"museum", o.Record.Museum,
			"visit_date", o.Record.VisitDate,
			"appointment_id", o.AppointmentID,
			"confirmation_code", o.ConfirmationCode,
			"attempts", o.Attempts,
		)
		return
	}
	logger.Warn("booking failed",
		"index", o.Index,
		"id_number", booking.MaskIDNumber(o.Record.IDNumber),
		"museum", o.Record.Museum,
		"visit_date", o.Record.VisitDate,
		"error", booking.ScrubIDNumbers(o.Error),
		"attempts", o.Attempts,
	)
}

// retryable reports whether err may clear on a later attempt: transport
// failures and 5xx/429 responses. 401 and other 4xx are final.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, museumapi.ErrUnauthorized) {
		return false
	}
	var apiErr *museumapi.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	return true
}

func failureMessage(err error) string {
	var apiErr *museumapi.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	if err != nil && err.Error() != "" {
		return err.Error()
	}
	return FallbackError
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
