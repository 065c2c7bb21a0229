package insight

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	apperrors "github.com/yanqian/weather-insight/pkg/errors"
)

func TestServiceAnalyzeReachesReadyWithoutCitations(t *testing.T) {
	sender := &stubSender{respond: func(ctx context.Context, call int, req InsightRequest) (InsightResult, error) {
		return InsightResult{Message: "Watch pressure drops"}, nil
	}}
	agg := Aggregate{
		Symptoms: []SymptomObservation{{ID: "s1", Timestamp: mustParse("2025-10-19T08:00:00Z"), SymptomType: "Pain", Severity: 8}},
		Weather: []WeatherSnapshot{{
			Timestamp:    mustParse("2025-10-19T08:00:00Z"),
			TemperatureC: 18.5,
			HumidityPct:  80,
			PressureHPa:  1007,
			WindSpeedKmh: 15,
		}},
	}
	svc := newService(Config{}, &stubCollector{agg: agg}, sender, nil, nil, newTestLogger())
	defer svc.Close()

	out, err := svc.Analyze(context.Background(), "user-1", 0)
	require.NoError(t, err)
	require.False(t, out.Skipped)
	require.Equal(t, PhaseLoading, out.State.Phase)

	snap, err := svc.Wait(waitContext(t), "user-1")
	require.NoError(t, err)
	require.Equal(t, PhaseReady, snap.Phase)
	require.Equal(t, "Watch pressure drops", snap.Result.Message)
	require.NotNil(t, snap.Result.Citations)
	require.Empty(t, snap.Result.Citations)

	payload, err := json.Marshal(sender.lastRequest().Wire())
	require.NoError(t, err)
	require.NotContains(t, string(payload), "diagnosis")
}

func TestServiceSkipsWhenThereIsNothingToCorrelate(t *testing.T) {
	sender := &stubSender{respond: func(ctx context.Context, call int, req InsightRequest) (InsightResult, error) {
		return InsightResult{Message: "unexpected"}, nil
	}}
	collector := &stubCollector{agg: Aggregate{Context: UserContext{Diagnosis: "Arthritis"}}}
	svc := newService(Config{}, collector, sender, nil, nil, newTestLogger())
	defer svc.Close()

	out, err := svc.Analyze(context.Background(), "user-1", 0)
	require.NoError(t, err)
	require.True(t, out.Skipped)
	require.Equal(t, PhaseIdle, out.State.Phase)
	require.Zero(t, sender.callCount())
	require.Equal(t, PhaseIdle, svc.State(context.Background(), "user-1").Phase)
	require.Zero(t, collector.lastLookback)
}

func TestServiceRetriesRetryableFailure(t *testing.T) {
	sender := &stubSender{respond: func(ctx context.Context, call int, req InsightRequest) (InsightResult, error) {
		if call == 1 {
			return InsightResult{}, ServerError(503, "busy")
		}
		return InsightResult{Message: "ok", Citations: []string{"doi:1"}}, nil
	}}
	svc := newService(Config{}, &stubCollector{agg: sampleAggregate()}, sender, nil, nil, newTestLogger())
	defer svc.Close()

	_, err := svc.Retry(context.Background(), "user-1")
	require.True(t, apperrors.IsCode(err, apperrors.CodeNotRetryable))

	_, err = svc.Analyze(context.Background(), "user-1", time.Hour)
	require.NoError(t, err)
	snap, err := svc.Wait(waitContext(t), "user-1")
	require.NoError(t, err)
	require.Equal(t, PhaseFailed, snap.Phase)
	require.Equal(t, 503, snap.Failure.Status)

	snap, err = svc.Retry(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, PhaseLoading, snap.Phase)

	snap, err = svc.Wait(waitContext(t), "user-1")
	require.NoError(t, err)
	require.Equal(t, PhaseReady, snap.Phase)
	require.Equal(t, []string{"doi:1"}, snap.Result.Citations)
}

func TestServiceRejectsConcurrentAnalyze(t *testing.T) {
	release := make(chan struct{})
	sender := &stubSender{respond: func(ctx context.Context, call int, req InsightRequest) (InsightResult, error) {
		<-release
		return InsightResult{Message: "done"}, nil
	}}
	svc := newService(Config{}, &stubCollector{agg: sampleAggregate()}, sender, nil, nil, newTestLogger())
	defer svc.Close()

	_, err := svc.Analyze(context.Background(), "user-1", time.Hour)
	require.NoError(t, err)
	_, err = svc.Analyze(context.Background(), "user-1", time.Hour)
	require.True(t, apperrors.IsCode(err, apperrors.CodeConflict))

	// other subjects are unaffected
	_, err = svc.Analyze(context.Background(), "user-2", time.Hour)
	require.NoError(t, err)

	close(release)
	snap, err := svc.Wait(waitContext(t), "user-1")
	require.NoError(t, err)
	require.Equal(t, PhaseReady, snap.Phase)
	_, err = svc.Wait(waitContext(t), "user-2")
	require.NoError(t, err)
	require.Equal(t, 2, sender.callCount())
}

func TestServiceCancelAndValidation(t *testing.T) {
	sender := &stubSender{respond: func(ctx context.Context, call int, req InsightRequest) (InsightResult, error) {
		<-ctx.Done()
		return InsightResult{}, ctx.Err()
	}}
	svc := newService(Config{}, &stubCollector{agg: sampleAggregate()}, sender, nil, nil, newTestLogger())

	_, err := svc.Analyze(context.Background(), "  ", time.Hour)
	require.True(t, apperrors.IsCode(err, apperrors.CodeInvalidInput))

	require.Equal(t, PhaseIdle, svc.Cancel(context.Background(), "nobody").Phase)

	_, err = svc.Analyze(context.Background(), "user-1", time.Hour)
	require.NoError(t, err)
	require.Equal(t, PhaseIdle, svc.Cancel(context.Background(), "user-1").Phase)
	require.Equal(t, PhaseIdle, svc.Cancel(context.Background(), "user-1").Phase)

	svc.Close()
	_, err = svc.Analyze(context.Background(), "user-1", time.Hour)
	require.True(t, apperrors.IsCode(err, apperrors.CodeUnavailable))
}

func TestServiceSubscribeStreamsTransitions(t *testing.T) {
	sender := &stubSender{respond: func(ctx context.Context, call int, req InsightRequest) (InsightResult, error) {
		return InsightResult{Message: "streamed"}, nil
	}}
	svc := newService(Config{}, &stubCollector{agg: sampleAggregate()}, sender, nil, nil, newTestLogger())
	defer svc.Close()

	updates, unsubscribe, err := svc.Subscribe("user-1")
	require.NoError(t, err)
	defer unsubscribe()

	_, err = svc.Analyze(context.Background(), "user-1", time.Hour)
	require.NoError(t, err)

	var phases []Phase
	timeout := time.After(2 * time.Second)
	for len(phases) < 3 {
		select {
		case snap := <-updates:
			phases = append(phases, snap.Phase)
		case <-timeout:
			t.Fatalf("timed out waiting for transitions, got %v", phases)
		}
	}
	require.Equal(t, []Phase{PhaseIdle, PhaseLoading, PhaseReady}, phases)
}

func TestServiceDropsPresentersNothingDependsOn(t *testing.T) {
	sender := &stubSender{respond: func(ctx context.Context, call int, req InsightRequest) (InsightResult, error) {
		<-ctx.Done()
		return InsightResult{}, ctx.Err()
	}}
	collector := &stubCollector{}
	svc := newService(Config{}, collector, sender, nil, nil, newTestLogger())
	defer svc.Close()

	for i := 0; i < 100; i++ {
		subject := fmt.Sprintf("skipped-%d", i)
		out, err := svc.Analyze(context.Background(), subject, time.Hour)
		require.NoError(t, err)
		require.True(t, out.Skipped)
		require.Equal(t, PhaseIdle, out.State.Phase)
		require.Equal(t, subject, out.State.Subject)
	}
	require.Zero(t, presenterCount(svc))

	for i := 0; i < 100; i++ {
		updates, unsubscribe, err := svc.Subscribe(fmt.Sprintf("watcher-%d", i))
		require.NoError(t, err)
		require.Equal(t, PhaseIdle, (<-updates).Phase)
		unsubscribe()
		unsubscribe()
	}
	require.Zero(t, presenterCount(svc))

	collector.set(sampleAggregate())
	_, err := svc.Analyze(context.Background(), "user-1", time.Hour)
	require.NoError(t, err)
	require.Equal(t, 1, presenterCount(svc))
	require.Equal(t, PhaseIdle, svc.Cancel(context.Background(), "user-1").Phase)
	require.Zero(t, presenterCount(svc))
}

func TestServiceKeepsWatchedPresenterAfterCancel(t *testing.T) {
	sender := &stubSender{respond: func(ctx context.Context, call int, req InsightRequest) (InsightResult, error) {
		<-ctx.Done()
		return InsightResult{}, ctx.Err()
	}}
	svc := newService(Config{}, &stubCollector{agg: sampleAggregate()}, sender, nil, nil, newTestLogger())
	defer svc.Close()

	_, unsubscribe, err := svc.Subscribe("user-1")
	require.NoError(t, err)
	_, err = svc.Analyze(context.Background(), "user-1", time.Hour)
	require.NoError(t, err)

	svc.Cancel(context.Background(), "user-1")
	require.Equal(t, 1, presenterCount(svc))

	unsubscribe()
	require.Zero(t, presenterCount(svc))
}

func TestServiceSweepsSettledPresentersAfterRetain(t *testing.T) {
	sender := &stubSender{respond: func(ctx context.Context, call int, req InsightRequest) (InsightResult, error) {
		return InsightResult{Message: "ok"}, nil
	}}
	svc := newService(Config{Retain: time.Hour}, &stubCollector{agg: sampleAggregate()}, sender, nil, nil, newTestLogger())
	defer svc.Close()

	_, err := svc.Analyze(context.Background(), "user-1", time.Hour)
	require.NoError(t, err)
	snap, err := svc.Wait(waitContext(t), "user-1")
	require.NoError(t, err)
	require.Equal(t, PhaseReady, snap.Phase)

	// a settled result stays readable until it goes stale
	_, unsubscribe, err := svc.Subscribe("user-2")
	require.NoError(t, err)
	unsubscribe()
	require.Equal(t, PhaseReady, svc.State(context.Background(), "user-1").Phase)

	later := time.Now().UTC().Add(2 * time.Hour)
	svc.mu.Lock()
	svc.now = func() time.Time { return later }
	svc.mu.Unlock()

	_, unsubscribe, err = svc.Subscribe("user-3")
	require.NoError(t, err)
	unsubscribe()
	require.Zero(t, presenterCount(svc))
	require.Equal(t, PhaseIdle, svc.State(context.Background(), "user-1").Phase)
}

func presenterCount(svc *service) int {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return len(svc.presenters)
}

func waitContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func sampleAggregate() Aggregate {
	req := sampleRequest()
	return Aggregate{Symptoms: req.Symptoms, Weather: req.Weather}
}

type stubCollector struct {
	mu           sync.Mutex
	agg          Aggregate
	lastLookback time.Duration
}

func (c *stubCollector) set(agg Aggregate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.agg = agg
}

func (c *stubCollector) Collect(ctx context.Context, subjectID string, lookback time.Duration) Aggregate {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastLookback = lookback
	return c.agg
}
