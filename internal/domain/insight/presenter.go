package insight

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/yanqian/weather-insight/pkg/util"
)

// Phase is the presenter state.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseLoading Phase = "loading"
	PhaseReady   Phase = "ready"
	PhaseFailed  Phase = "failed"
)

// Snapshot is an immutable view of a presenter's state.
type Snapshot struct {
	Subject   string         `json:"subject"`
	Phase     Phase          `json:"phase"`
	Result    *InsightResult `json:"result,omitempty"`
	Failure   *Failure       `json:"failure,omitempty"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// Sender performs one analysis call. Implementations must not retry.
type Sender interface {
	Send(ctx context.Context, req InsightRequest, timeout time.Duration) (InsightResult, error)
}

// ResultCache memoizes results by request content hash.
type ResultCache interface {
	Get(ctx context.Context, key string) (InsightResult, bool, error)
	Set(ctx context.Context, key string, result InsightResult, ttl time.Duration) error
}

// PresenterOptions tune a presenter. Zero values mean: no timeout override, single
// attempt, no memoization.
type PresenterOptions struct {
	Timeout  time.Duration
	Retry    RetryPolicy
	Cache    ResultCache
	CacheTTL time.Duration
	Recorder Recorder
}

// subscriberBuffer is how many snapshots a slow subscriber may lag behind.
const subscriberBuffer = 8

// Presenter tracks at most one in-flight insight request for a subject.
//
//	Idle --Request--> Loading --success--> Ready
//	                  Loading --failure--> Failed
//	Ready|Failed --Request/Retry--> Loading
//	Loading --Cancel--> Idle
type Presenter struct {
	subject  string
	sender   Sender
	opts     PresenterOptions
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	state   Snapshot
	last    *InsightRequest
	flight  *flight
	subs    map[uint64]chan Snapshot
	nextSub uint64
	closed  bool
}

type flight struct {
	cancel  context.CancelFunc
	done    chan struct{}
	started time.Time
}

// NewPresenter builds an idle presenter for subject.
func NewPresenter(subject string, sender Sender, opts PresenterOptions, logger *slog.Logger) *Presenter {
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = NoRetry
	}
	recorder := opts.Recorder
	if recorder == nil {
		recorder = nopRecorder{}
	}
	p := &Presenter{
		subject:  subject,
		sender:   sender,
		opts:     opts,
		recorder: recorder,
		logger:   logger.With("component", "insight.presenter", "subject", subject),
		now:      util.NowUTC,
		sleep:    sleepContext,
		subs:     make(map[uint64]chan Snapshot),
	}
	p.state = Snapshot{Subject: subject, Phase: PhaseIdle, UpdatedAt: p.now()}
	return p
}

// State returns the current snapshot.
func (p *Presenter) State() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Request starts loading req. It fails with ErrRequestInFlight while loading.
func (p *Presenter) Request(req InsightRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPresenterClosed
	}
	if p.flight != nil {
		return ErrRequestInFlight
	}
	copied := req
	p.last = &copied
	p.startLocked(copied)
	return nil
}

// Retry re-issues the last request from a retryable failed state.
func (p *Presenter) Retry() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPresenterClosed
	}
	if p.flight != nil {
		return ErrRequestInFlight
	}
	if p.state.Phase != PhaseFailed || p.state.Failure == nil || !p.state.Failure.Retryable || p.last == nil {
		return ErrNotRetryable
	}
	p.startLocked(*p.last)
	return nil
}

// Cancel abandons the in-flight request and returns to Idle. It reports whether
// anything was cancelled; calling it again, or after completion, is a no-op.
func (p *Presenter) Cancel() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancelLocked()
}

// Wait blocks until the presenter is no longer loading or ctx is done.
func (p *Presenter) Wait(ctx context.Context) (Snapshot, error) {
	p.mu.Lock()
	f := p.flight
	snap := p.state
	p.mu.Unlock()
	if f == nil {
		return snap, nil
	}
	select {
	case <-f.done:
		return p.State(), nil
	case <-ctx.Done():
		return p.State(), ctx.Err()
	}
}

// Subscribe streams state changes, starting with the current state. Slow subscribers
// skip intermediate snapshots but always receive the latest one. The returned func
// unsubscribes and closes the channel.
func (p *Presenter) Subscribe() (<-chan Snapshot, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch := make(chan Snapshot, subscriberBuffer)
	if p.closed {
		close(ch)
		return ch, func() {}
	}
	id := p.nextSub
	p.nextSub++
	p.subs[id] = ch
	ch <- p.state
	return ch, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if sub, ok := p.subs[id]; ok {
			delete(p.subs, id)
			close(sub)
		}
	}
}

// evictable reports whether nothing depends on the presenter any more: no flight, no
// subscribers, and either Idle or last changed before staleBefore.
func (p *Presenter) evictable(staleBefore time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.flight != nil || len(p.subs) > 0 {
		return false
	}
	return p.state.Phase == PhaseIdle || p.state.UpdatedAt.Before(staleBefore)
}

// Close cancels any in-flight request and releases subscribers.
func (p *Presenter) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.cancelLocked()
	p.closed = true
	for id, ch := range p.subs {
		delete(p.subs, id)
		close(ch)
	}
}

func (p *Presenter) startLocked(req InsightRequest) {
	ctx, cancel := context.WithCancel(context.Background())
	f := &flight{cancel: cancel, done: make(chan struct{}), started: p.now()}
	p.flight = f
	p.setLocked(Snapshot{Phase: PhaseLoading})
	p.recorder.LoadingStarted()
	go p.run(ctx, f, req)
}

func (p *Presenter) cancelLocked() bool {
	f := p.flight
	if f == nil {
		return false
	}
	p.flight = nil
	f.cancel()
	close(f.done)
	p.setLocked(Snapshot{Phase: PhaseIdle})
	p.recorder.LoadingFinished("cancelled", "", p.now().Sub(f.started))
	p.logger.Info("insight request cancelled")
	return true
}

func (p *Presenter) run(ctx context.Context, f *flight, req InsightRequest) {
	result, err := p.execute(ctx, req)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.flight != f {
		p.logger.Debug("discarding result of abandoned insight request")
		return
	}
	p.flight = nil
	f.cancel()
	close(f.done)
	elapsed := p.now().Sub(f.started)

	if err != nil {
		ie := AsError(err)
		p.logger.Error("insight request failed", "kind", ie.Kind, "status", ie.Status, "error", err)
		p.setLocked(Snapshot{Phase: PhaseFailed, Failure: failureOf(ie)})
		p.recorder.LoadingFinished(string(PhaseFailed), string(ie.Kind), elapsed)
		return
	}
	if result.Citations == nil {
		result.Citations = []string{}
	}
	p.setLocked(Snapshot{Phase: PhaseReady, Result: &result})
	p.recorder.LoadingFinished(string(PhaseReady), "", elapsed)
	p.logger.Info("insight ready", "citations", len(result.Citations), "latency_ms", elapsed.Milliseconds())
}

func (p *Presenter) execute(ctx context.Context, req InsightRequest) (InsightResult, error) {
	key := ""
	if p.opts.Cache != nil && p.opts.CacheTTL > 0 {
		key = req.Key()
	}
	if key != "" {
		cached, ok, err := p.opts.Cache.Get(ctx, key)
		switch {
		case err != nil:
			p.logger.Warn("insight cache lookup failed", "error", err)
		case ok:
			p.recorder.CacheLookup(true)
			return cached, nil
		default:
			p.recorder.CacheLookup(false)
		}
	}

	for attempt := 1; ; attempt++ {
		p.recorder.Attempt(attempt)
		result, err := p.sender.Send(ctx, req, p.opts.Timeout)
		if err == nil {
			if key != "" {
				if err := p.opts.Cache.Set(ctx, key, result, p.opts.CacheTTL); err != nil {
					p.logger.Warn("insight cache save failed", "error", err)
				}
			}
			return result, nil
		}
		if ctx.Err() != nil || !p.opts.Retry.ShouldRetry(err, attempt) {
			return InsightResult{}, err
		}
		delay := p.opts.Retry.Backoff(attempt)
		p.logger.Warn("insight attempt failed, retrying", "attempt", attempt, "backoff_ms", delay.Milliseconds(), "error", err)
		if sleepErr := p.sleep(ctx, delay); sleepErr != nil {
			return InsightResult{}, err
		}
	}
}

func (p *Presenter) setLocked(s Snapshot) {
	s.Subject = p.subject
	s.UpdatedAt = p.now()
	p.state = s
	for _, ch := range p.subs {
		select {
		case ch <- s:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- s:
			default:
			}
		}
	}
}
