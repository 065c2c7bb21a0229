package insight

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	apperrors "github.com/yanqian/weather-insight/pkg/errors"
	"github.com/yanqian/weather-insight/pkg/util"
)

// Service runs the insight pipeline for many independent subjects.
type Service interface {
	Analyze(ctx context.Context, subjectID string, lookback time.Duration) (Outcome, error)
	Retry(ctx context.Context, subjectID string) (Snapshot, error)
	Cancel(ctx context.Context, subjectID string) Snapshot
	State(ctx context.Context, subjectID string) Snapshot
	Wait(ctx context.Context, subjectID string) (Snapshot, error)
	Subscribe(subjectID string) (<-chan Snapshot, func(), error)
	Close()
}

// Outcome reports what Analyze did. Skipped means there was nothing to correlate and
// no request was issued.
type Outcome struct {
	Skipped bool     `json:"skipped"`
	State   Snapshot `json:"state"`
}

type collector interface {
	Collect(ctx context.Context, subjectID string, lookback time.Duration) Aggregate
}

type service struct {
	cfg       Config
	collector collector
	sender    Sender
	cache     ResultCache
	recorder  Recorder
	logger    *slog.Logger
	now       func() time.Time

	mu         sync.Mutex
	presenters map[string]*Presenter
	lastSweep  time.Time
	closed     bool
}

// NewService wires the insight pipeline. cache and recorder may be nil.
func NewService(cfg Config, aggregator *Aggregator, sender Sender, cache ResultCache, recorder Recorder, logger *slog.Logger) Service {
	return newService(cfg, aggregator, sender, cache, recorder, logger)
}

func newService(cfg Config, c collector, sender Sender, cache ResultCache, recorder Recorder, logger *slog.Logger) *service {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &service{
		cfg:        cfg.withDefaults(),
		collector:  c,
		sender:     sender,
		cache:      cache,
		recorder:   recorder,
		logger:     logger.With("component", "insight.service"),
		now:        util.NowUTC,
		presenters: make(map[string]*Presenter),
	}
}

func (s *service) Analyze(ctx context.Context, subjectID string, lookback time.Duration) (Outcome, error) {
	subjectID, err := normalizeSubject(subjectID)
	if err != nil {
		return Outcome{}, err
	}
	existing, err := s.presenter(subjectID, false)
	if err != nil {
		return Outcome{}, err
	}
	if existing != nil && existing.State().Phase == PhaseLoading {
		return Outcome{}, apperrors.Wrap(apperrors.CodeConflict, "an insight request is already loading", ErrRequestInFlight)
	}

	agg := s.collector.Collect(ctx, subjectID, lookback)
	req, ok := Build(agg.Symptoms, agg.Weather, agg.Context)
	if !ok {
		s.recorder.Skipped()
		s.logger.Info("no symptom or weather data, skipping insight", "subject", subjectID)
		if existing == nil {
			return Outcome{Skipped: true, State: idleSnapshot(subjectID)}, nil
		}
		return Outcome{Skipped: true, State: existing.State()}, nil
	}

	s.mu.Lock()
	p, err := s.presenterLocked(subjectID, true)
	if err == nil {
		err = p.Request(req)
	}
	s.mu.Unlock()
	if err != nil {
		return Outcome{}, presenterError(err)
	}
	s.logger.Info("insight requested", "subject", subjectID, "symptoms", len(req.Symptoms), "weather", len(req.Weather), "diagnosis", req.Diagnosis != "")
	return Outcome{State: p.State()}, nil
}

func (s *service) Retry(_ context.Context, subjectID string) (Snapshot, error) {
	subjectID, err := normalizeSubject(subjectID)
	if err != nil {
		return Snapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.presenterLocked(subjectID, false)
	if err != nil {
		return Snapshot{}, err
	}
	if p == nil {
		return Snapshot{}, apperrors.Wrap(apperrors.CodeNotRetryable, "no failed insight request to retry", ErrNotRetryable)
	}
	if err := p.Retry(); err != nil {
		return Snapshot{}, presenterError(err)
	}
	return p.State(), nil
}

// Cancel returns the subject to Idle. An idle presenter nobody watches is dropped.
func (s *service) Cancel(_ context.Context, subjectID string) Snapshot {
	subjectID = strings.TrimSpace(subjectID)
	s.mu.Lock()
	defer s.mu.Unlock()
	p, _ := s.presenterLocked(subjectID, false)
	if p == nil {
		return idleSnapshot(subjectID)
	}
	p.Cancel()
	snap := p.State()
	s.evictLocked(subjectID, p)
	return snap
}

func (s *service) State(_ context.Context, subjectID string) Snapshot {
	p, _ := s.presenter(strings.TrimSpace(subjectID), false)
	if p == nil {
		return idleSnapshot(subjectID)
	}
	return p.State()
}

func (s *service) Wait(ctx context.Context, subjectID string) (Snapshot, error) {
	p, _ := s.presenter(strings.TrimSpace(subjectID), false)
	if p == nil {
		return idleSnapshot(subjectID), nil
	}
	return p.Wait(ctx)
}

// Subscribe streams the subject's state. Unsubscribing drops the presenter once
// nothing else depends on it.
func (s *service) Subscribe(subjectID string) (<-chan Snapshot, func(), error) {
	subjectID, err := normalizeSubject(subjectID)
	if err != nil {
		return nil, nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.presenterLocked(subjectID, true)
	if err != nil {
		return nil, nil, err
	}
	ch, unsubscribe := p.Subscribe()
	return ch, func() {
		unsubscribe()
		s.mu.Lock()
		defer s.mu.Unlock()
		s.evictLocked(subjectID, p)
	}, nil
}

// Close tears down every presenter. Later calls that need a presenter fail.
func (s *service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, p := range s.presenters {
		p.Close()
		delete(s.presenters, id)
	}
	s.logger.Info("insight presenters closed")
}

func (s *service) presenter(subjectID string, create bool) (*Presenter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.presenterLocked(subjectID, create)
}

func (s *service) presenterLocked(subjectID string, create bool) (*Presenter, error) {
	if s.closed {
		return nil, apperrors.Wrap(apperrors.CodeUnavailable, "insight service is shutting down", ErrPresenterClosed)
	}
	if p, ok := s.presenters[subjectID]; ok {
		return p, nil
	}
	if !create {
		return nil, nil
	}
	s.sweepLocked()
	p := NewPresenter(subjectID, s.sender, PresenterOptions{
		Timeout:  s.cfg.RequestTimeout,
		Retry:    s.cfg.Retry,
		Cache:    s.cache,
		CacheTTL: s.cfg.CacheTTL,
		Recorder: s.recorder,
	}, s.logger)
	s.presenters[subjectID] = p
	return p, nil
}

// evictLocked drops p if it is still the subject's presenter and is Idle and unwatched.
func (s *service) evictLocked(subjectID string, p *Presenter) {
	if s.presenters[subjectID] != p || !p.evictable(time.Time{}) {
		return
	}
	delete(s.presenters, subjectID)
	p.Close()
}

// sweepLocked drops settled presenters unchanged for longer than Retain. It runs at
// most once per Retain.
func (s *service) sweepLocked() {
	now := s.now()
	if now.Sub(s.lastSweep) < s.cfg.Retain {
		return
	}
	s.lastSweep = now
	staleBefore := now.Add(-s.cfg.Retain)
	for id, p := range s.presenters {
		if p.evictable(staleBefore) {
			delete(s.presenters, id)
			p.Close()
		}
	}
}

func presenterError(err error) error {
	switch {
	case errors.Is(err, ErrRequestInFlight):
		return apperrors.Wrap(apperrors.CodeConflict, "an insight request is already loading", err)
	case errors.Is(err, ErrNotRetryable):
		return apperrors.Wrap(apperrors.CodeNotRetryable, "insight request cannot be retried", err)
	case errors.Is(err, ErrPresenterClosed):
		return apperrors.Wrap(apperrors.CodeUnavailable, "insight service is shutting down", err)
	default:
		return err
	}
}

func normalizeSubject(subjectID string) (string, error) {
	trimmed := strings.TrimSpace(subjectID)
	if trimmed == "" {
		return "", apperrors.Wrap(apperrors.CodeInvalidInput, "subject cannot be empty", nil)
	}
	return trimmed, nil
}

func idleSnapshot(subjectID string) Snapshot {
	return Snapshot{Subject: strings.TrimSpace(subjectID), Phase: PhaseIdle}
}
