package worker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/signalops/internal/observability"
	"github.com/upb/signalops/internal/queue"
	"go.uber.org/zap"
)

func sampleJob(attempt int) queue.Job {
	return queue.Job{
		ID:        "1-0",
		MessageID: "1-0",
		TenantID:  uuid.New(),
		EventID:   uuid.New(),
		Type:      "order.failed",
		Attempt:   attempt,
	}
}

func newTestWorker(q *mockQueue, p Processor, timeout time.Duration) *Worker {
	return New(q, p, Config{Concurrency: 1, JobTimeout: timeout, ErrorBackoff: time.Millisecond}, nil, zap.NewNop())
}

func TestWorker_HandleJob(t *testing.T) {
	ctx := context.Background()

	t.Run("success acks", func(t *testing.T) {
		q := &mockQueue{maxAttempts: 5}
		p := new(mockProcessor)
		job := sampleJob(1)
		p.On("Process", mock.Anything, job).Return(nil)
		q.On("Ack", mock.Anything, job).Return(nil)

		reg := prometheus.NewRegistry()
		w := New(q, p, Config{}, observability.NewMetrics(reg), zap.NewNop())
		w.HandleJob(ctx, job)

		q.AssertExpectations(t)
		q.AssertNotCalled(t, "ScheduleRetry", mock.Anything, mock.Anything, mock.Anything)
		count, err := testutil.GatherAndCount(reg, "signalops_jobs_processed_total")
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("failure below cap schedules retry", func(t *testing.T) {
		q := &mockQueue{maxAttempts: 5}
		p := new(mockProcessor)
		job := sampleJob(2)
		p.On("Process", mock.Anything, job).Return(errors.New("provider down"))
		q.On("ScheduleRetry", mock.Anything, job, "provider down").Return(4*time.Second, nil)

		newTestWorker(q, p, time.Second).HandleJob(ctx, job)
		q.AssertExpectations(t)
		q.AssertNotCalled(t, "Ack", mock.Anything, mock.Anything)
		q.AssertNotCalled(t, "DeadLetter", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("failure on last attempt dead-letters", func(t *testing.T) {
		q := &mockQueue{maxAttempts: 5}
		p := new(mockProcessor)
		job := sampleJob(5)
		p.On("Process", mock.Anything, job).Return(errors.New("event not found"))
		q.On("DeadLetter", mock.Anything, job, "event not found").Return(nil)

		newTestWorker(q, p, time.Second).HandleJob(ctx, job)
		q.AssertExpectations(t)
		q.AssertNotCalled(t, "ScheduleRetry", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("over cap dead-letters without processing", func(t *testing.T) {
		q := &mockQueue{maxAttempts: 5}
		p := new(mockProcessor)
		job := sampleJob(6)
		job.LastError = "consumer did not acknowledge delivery"
		q.On("DeadLetter", mock.Anything, job, mock.MatchedBy(func(reason string) bool {
			return reason == "exceeded 5 attempts: consumer did not acknowledge delivery"
		})).Return(nil)

		newTestWorker(q, p, time.Second).HandleJob(ctx, job)
		q.AssertExpectations(t)
		p.AssertNotCalled(t, "Process", mock.Anything, mock.Anything)
	})

	t.Run("panic is a failed attempt", func(t *testing.T) {
		q := &mockQueue{maxAttempts: 5}
		p := new(mockProcessor)
		job := sampleJob(1)
		p.On("Process", mock.Anything, job).Run(func(mock.Arguments) { panic("nil map") }).Return(nil)
		q.On("ScheduleRetry", mock.Anything, job, "panic: nil map").Return(2*time.Second, nil)

		newTestWorker(q, p, time.Second).HandleJob(ctx, job)
		q.AssertExpectations(t)
	})

	t.Run("timeout is a failed attempt", func(t *testing.T) {
		q := &mockQueue{maxAttempts: 5}
		p := new(mockProcessor)
		job := sampleJob(1)
		p.On("Process", mock.Anything, job).Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).Return(context.DeadlineExceeded)
		q.On("ScheduleRetry", mock.Anything, job, mock.MatchedBy(func(reason string) bool {
			return reason != ""
		})).Return(2*time.Second, nil)

		newTestWorker(q, p, 10*time.Millisecond).HandleJob(ctx, job)
		q.AssertExpectations(t)
	})

	t.Run("processor ignoring its context is cut off at the timeout", func(t *testing.T) {
		q := &mockQueue{maxAttempts: 5}
		p := new(mockProcessor)
		job := sampleJob(1)
		release := make(chan struct{})
		defer close(release)
		p.On("Process", mock.Anything, job).Run(func(mock.Arguments) { <-release }).Return(nil)
		q.On("ScheduleRetry", mock.Anything, job, mock.MatchedBy(func(reason string) bool {
			return strings.HasPrefix(reason, "job timed out after 50ms")
		})).Return(2*time.Second, nil)

		start := time.Now()
		newTestWorker(q, p, 50*time.Millisecond).HandleJob(ctx, job)

		assert.Less(t, time.Since(start), time.Second)
		q.AssertExpectations(t)
		q.AssertNotCalled(t, "Ack", mock.Anything, mock.Anything)
	})

	t.Run("slow success within the timeout acks", func(t *testing.T) {
		q := &mockQueue{maxAttempts: 5}
		p := new(mockProcessor)
		job := sampleJob(1)
		p.On("Process", mock.Anything, job).Run(func(mock.Arguments) { time.Sleep(20 * time.Millisecond) }).Return(nil)
		q.On("Ack", mock.Anything, job).Return(nil)

		newTestWorker(q, p, time.Second).HandleJob(ctx, job)
		q.AssertExpectations(t)
		q.AssertNotCalled(t, "ScheduleRetry", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("cancelled parent does not cancel in-flight job", func(t *testing.T) {
		q := &mockQueue{maxAttempts: 5}
		p := new(mockProcessor)
		job := sampleJob(1)
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		p.On("Process", mock.Anything, job).Run(func(args mock.Arguments) {
			assert.NoError(t, args.Get(0).(context.Context).Err())
		}).Return(nil)
		q.On("Ack", mock.Anything, job).Return(nil)

		newTestWorker(q, p, time.Second).HandleJob(cancelled, job)
		q.AssertExpectations(t)
	})
}

// retryingQueue replays each scheduled retry as the next delivery, the way the
// delayed-set scheduler would, and records dead letters.
type retryingQueue struct {
	mu          sync.Mutex
	deliveries  []queue.Job
	deadLetters []queue.Job
	reasons     []string
}

func (q *retryingQueue) Read(context.Context) ([]queue.Job, error) { return nil, nil }
func (q *retryingQueue) Ack(context.Context, queue.Job) error       { return nil }
func (q *retryingQueue) MaxAttempts() int                           { return 5 }

func (q *retryingQueue) ScheduleRetry(_ context.Context, job queue.Job, reason string) (time.Duration, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job.Attempt++
	job.LastError = reason
	q.deliveries = append(q.deliveries, job)
	return queue.Backoff(job.Attempt - 1), nil
}

func (q *retryingQueue) DeadLetter(_ context.Context, job queue.Job, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.deadLetters = append(q.deadLetters, job)
	q.reasons = append(q.reasons, reason)
	return nil
}

func TestWorker_DeadLetterAfterExhaustion(t *testing.T) {
	q := &retryingQueue{}
	p := new(mockProcessor)
	p.On("Process", mock.Anything, mock.Anything).Return(errors.New("smtp down"))

	w := New(q, p, Config{JobTimeout: time.Second}, nil, zap.NewNop())

	job := sampleJob(1)
	w.HandleJob(context.Background(), job)
	for len(q.deliveries) > 0 {
		next := q.deliveries[0]
		q.deliveries = q.deliveries[1:]
		w.HandleJob(context.Background(), next)
	}

	p.AssertNumberOfCalls(t, "Process", 5)
	require.Len(t, q.deadLetters, 1)
	assert.Equal(t, job.ID, q.deadLetters[0].ID)
	assert.Equal(t, 5, q.deadLetters[0].Attempt)
	assert.Equal(t, "smtp down", q.reasons[0])
}

func TestWorker_RunStop(t *testing.T) {
	q := &mockQueue{maxAttempts: 5}
	p := new(mockProcessor)
	job := sampleJob(1)

	q.On("Read", mock.Anything).Return([]queue.Job{job}, nil).Once()
	q.On("Read", mock.Anything).Return([]queue.Job{}, nil).After(time.Millisecond)
	processed := make(chan struct{}, 1)
	p.On("Process", mock.Anything, job).Run(func(mock.Arguments) { processed <- struct{}{} }).Return(nil)
	q.On("Ack", mock.Anything, job).Return(nil)

	w := New(q, p, Config{Concurrency: 2}, nil, zap.NewNop())
	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()

	select {
	case <-processed:
	case <-time.After(time.Second):
		t.Fatal("job was not processed")
	}

	w.Stop()
	assert.NoError(t, <-done)
	q.AssertCalled(t, "Ack", mock.Anything, job)
}

func TestWorker_RunReadErrorBacksOff(t *testing.T) {
	q := &mockQueue{maxAttempts: 5}
	q.On("Read", mock.Anything).Return(nil, errors.New("connection refused"))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	w := New(q, new(mockProcessor), Config{ErrorBackoff: 5 * time.Millisecond}, nil, zap.NewNop())
	err := w.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, len(q.Calls), 20)
}

func TestReclaimer_ReclaimOnce(t *testing.T) {
	ctx := context.Background()
	q := &mockQueue{maxAttempts: 5}
	p := new(mockProcessor)
	claimer := new(mockClaimer)

	job := sampleJob(2)
	claimer.On("Claim", ctx, time.Minute, int64(10)).Return([]queue.Job{job}, nil)
	p.On("Process", mock.Anything, job).Return(nil)
	q.On("Ack", mock.Anything, job).Return(nil)

	w := newTestWorker(q, p, time.Second)
	r := NewReclaimer(claimer, w, ReclaimerConfig{MinIdle: time.Minute}, zap.NewNop())

	n, err := r.ReclaimOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	q.AssertExpectations(t)
}

func TestReclaimer_ClaimError(t *testing.T) {
	claimer := new(mockClaimer)
	claimer.On("Claim", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("NOGROUP"))

	r := NewReclaimer(claimer, newTestWorker(&mockQueue{maxAttempts: 5}, new(mockProcessor), time.Second), ReclaimerConfig{}, zap.NewNop())
	_, err := r.ReclaimOnce(context.Background())
	assert.Error(t, err)
}

func TestReclaimer_RunStop(t *testing.T) {
	claimer := new(mockClaimer)
	claimed := make(chan struct{}, 1)
	claimer.On("Claim", mock.Anything, mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		select {
		case claimed <- struct{}{}:
		default:
		}
	}).Return([]queue.Job{}, nil)

	r := NewReclaimer(claimer, newTestWorker(&mockQueue{maxAttempts: 5}, new(mockProcessor), time.Second), ReclaimerConfig{Interval: 5 * time.Millisecond}, zap.NewNop())
	go r.Run(context.Background())

	select {
	case <-claimed:
	case <-time.After(time.Second):
		t.Fatal("reclaimer never claimed")
	}
	r.Stop()
}
