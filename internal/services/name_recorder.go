package services

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/bejimenez/magus/internal/domain"
	"github.com/bejimenez/magus/internal/repositories"
)

const (
	defaultRecorderQueueSize    = 256
	defaultRecorderWorkers      = 2
	defaultRecorderWriteTimeout = 5 * time.Second

	recorderEventDropped      = "recorder.dropped"
	recorderEventNameFailed   = "recorder.name_failed"
	recorderEventLogFailed    = "recorder.request_log_failed"
	recorderEventPublishError = "recorder.publish_failed"
)

// NameRecorderDeps wires persistence sinks into the recorder.
type NameRecorderDeps struct {
	Names        repositories.GeneratedNameRepository
	RequestLogs  repositories.RequestLogRepository
	Publisher    NameEventPublisher
	QueueSize    int
	Workers      int
	WriteTimeout time.Duration
	Clock        func() time.Time
	Logger       func(ctx context.Context, event string, fields map[string]any)
}

type recorderJob struct {
	name    *domain.NameRecord
	request *domain.RequestLog
}

// AsyncNameRecorder queues records for a fixed pool of workers. Enqueueing never blocks;
// when the queue is full the record is dropped and counted.
type AsyncNameRecorder struct {
	names        repositories.GeneratedNameRepository
	requestLogs  repositories.RequestLogRepository
	publisher    NameEventPublisher
	queue        chan recorderJob
	workers      int
	writeTimeout time.Duration
	now          func() time.Time
	logger       func(context.Context, string, map[string]any)

	dropped      atomic.Int64
	dropCounter  metric.Int64Counter
	dropCounting bool
}

var _ NameRecorder = (*AsyncNameRecorder)(nil)

// NewNameRecorder builds a recorder. Run must be started for queued records to be written.
func NewNameRecorder(deps NameRecorderDeps) (*AsyncNameRecorder, error) {
	if deps.Names == nil {
		return nil, errors.New("name recorder: name repository is required")
	}
	queueSize := deps.QueueSize
	if queueSize <= 0 {
		queueSize = defaultRecorderQueueSize
	}
	workers := deps.Workers
	if workers <= 0 {
		workers = defaultRecorderWorkers
	}
	timeout := deps.WriteTimeout
	if timeout <= 0 {
		timeout = defaultRecorderWriteTimeout
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	r := &AsyncNameRecorder{
		names:        deps.Names,
		requestLogs:  deps.RequestLogs,
		publisher:    deps.Publisher,
		queue:        make(chan recorderJob, queueSize),
		workers:      workers,
		writeTimeout: timeout,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}

	counter, err := otel.GetMeterProvider().Meter("github.com/bejimenez/magus/internal/services").Int64Counter(
		"recorder.dropped",
		metric.WithDescription("Records dropped because the recorder queue was full"),
	)
	if err == nil {
		r.dropCounter = counter
		r.dropCounting = true
	}
	return r, nil
}

// Record implements NameRecorder.
func (r *AsyncNameRecorder) Record(ctx context.Context, record domain.NameRecord) {
	r.enqueue(ctx, recorderJob{name: &record}, "name")
}

// LogRequest implements NameRecorder.
func (r *AsyncNameRecorder) LogRequest(ctx context.Context, entry domain.RequestLog) {
	if r.requestLogs == nil {
		return
	}
	r.enqueue(ctx, recorderJob{request: &entry}, "request")
}

// Dropped reports how many records were discarded because the queue was full.
func (r *AsyncNameRecorder) Dropped() int64 {
	return r.dropped.Load()
}

// Pending reports the number of queued records.
func (r *AsyncNameRecorder) Pending() int {
	return len(r.queue)
}

func (r *AsyncNameRecorder) enqueue(ctx context.Context, job recorderJob, kind string) {
	select {
	case r.queue <- job:
	default:
		r.dropped.Add(1)
		if r.dropCounting {
			r.dropCounter.Add(context.WithoutCancel(ctx), 1, metric.WithAttributes(attribute.String("kind", kind)))
		}
		r.logger(ctx, recorderEventDropped, map[string]any{"kind": kind})
	}
}

// Run processes queued records until ctx is cancelled, then drains whatever is still queued.
func (r *AsyncNameRecorder) Run(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < r.workers; i++ {
		group.Go(func() error {
			for {
				select {
				case <-groupCtx.Done():
					return nil
				case job := <-r.queue:
					r.process(groupCtx, job)
				}
			}
		})
	}
	err := group.Wait()

	for {
		select {
		case job := <-r.queue:
			r.process(context.WithoutCancel(ctx), job)
		default:
			return err
		}
	}
}

func (r *AsyncNameRecorder) process(ctx context.Context, job recorderJob) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.writeTimeout)
	defer cancel()

	switch {
	case job.name != nil:
		r.recordName(ctx, *job.name)
	case job.request != nil:
		if err := r.requestLogs.Append(ctx, *job.request); err != nil {
			r.logger(ctx, recorderEventLogFailed, map[string]any{
				"requestId": job.request.RequestID,
				"error":     err.Error(),
			})
		}
	}
}

func (r *AsyncNameRecorder) recordName(ctx context.Context, record domain.NameRecord) {
	stored, err := r.names.RecordUsage(ctx, record)
	if err != nil {
		r.logger(ctx, recorderEventNameFailed, map[string]any{
			"name":    record.Name,
			"culture": record.Culture,
			"error":   err.Error(),
		})
		return
	}
	if r.publisher == nil {
		return
	}
	event := domain.NameEvent{
		Type:       domain.NameEventGenerated,
		Name:       stored.Name,
		Culture:    stored.Culture,
		Gender:     stored.Gender,
		Syllables:  stored.Syllables,
		Score:      stored.Score,
		UsageCount: stored.UsageCount,
		OccurredAt: r.now(),
	}
	if _, err := r.publisher.PublishNameEvent(ctx, event); err != nil {
		r.logger(ctx, recorderEventPublishError, map[string]any{
			"name":    stored.Name,
			"culture": stored.Culture,
			"error":   err.Error(),
		})
	}
}
