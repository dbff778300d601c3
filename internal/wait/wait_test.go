package wait

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeElement becomes visible at visibleAt and stale once stale is set.
type fakeElement struct {
	visibleAt time.Time
	enabled   bool
	text      string
	stale     atomic.Bool
}

func (e *fakeElement) Visible() (bool, error) {
	if e.stale.Load() {
		return false, ErrStale
	}
	return !time.Now().Before(e.visibleAt), nil
}

func (e *fakeElement) Enabled() (bool, error) {
	if e.stale.Load() {
		return false, ErrStale
	}
	return e.enabled, nil
}

func (e *fakeElement) Text() (string, error) {
	if e.stale.Load() {
		return "", ErrStale
	}
	return e.text, nil
}

// fakePage serves a single element attached between attachAt and detachAt.
type fakePage struct {
	el       *fakeElement
	attachAt time.Time
	detachAt time.Time
	finds    atomic.Int32
}

func (p *fakePage) Find(_ context.Context, _ string) (*fakeElement, error) {
	p.finds.Add(1)
	now := time.Now()
	if p.el == nil || now.Before(p.attachAt) {
		return nil, ErrNotFound
	}
	if !p.detachAt.IsZero() && !now.Before(p.detachAt) {
		return nil, ErrNotFound
	}
	return p.el, nil
}

func TestPoll_ZeroInterval(t *testing.T) {
	_, err := Poll(context.Background(), PollOptions{Timeout: time.Second}, func(context.Context) (int, bool, error) {
		t.Fatal("evaluator should not be called with zero interval")
		return 0, false, nil
	})
	require.ErrorIs(t, err, ErrIntervalNotPositive)
}

func TestPoll_ZeroTimeout(t *testing.T) {
	_, err := Poll(context.Background(), PollOptions{Interval: time.Millisecond}, func(context.Context) (int, bool, error) {
		t.Fatal("evaluator should not be called with zero timeout")
		return 0, false, nil
	})
	require.ErrorIs(t, err, ErrTimeoutNotPositive)
}

func TestPoll_ImmediateSuccess(t *testing.T) {
	t.Parallel()

	v, err := Poll(context.Background(), PollOptions{
		Timeout:  time.Second,
		Interval: time.Hour,
	}, func(context.Context) (string, bool, error) {
		return "ready", true, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ready", v)
}

func TestPoll_ReturnsSoonAfterConditionHolds(t *testing.T) {
	t.Parallel()

	const (
		becomesTrue = 150 * time.Millisecond
		interval    = 40 * time.Millisecond
	)
	start := time.Now()
	readyAt := start.Add(becomesTrue)

	_, err := Poll(context.Background(), PollOptions{
		Timeout:  2 * time.Second,
		Interval: interval,
	}, func(context.Context) (struct{}, bool, error) {
		return struct{}{}, !time.Now().Before(readyAt), nil
	})
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.GreaterOrEqual(t, elapsed, becomesTrue)
	// One interval of tolerance plus scheduling slack.
	assert.Less(t, elapsed, becomesTrue+interval+100*time.Millisecond)
}

func TestPoll_TimesOut(t *testing.T) {
	t.Parallel()

	const timeout = 200 * time.Millisecond
	start := time.Now()
	_, err := Poll(context.Background(), PollOptions{
		Timeout:   timeout,
		Interval:  20 * time.Millisecond,
		Condition: "ready",
		Target:    "backend",
	}, func(context.Context) (int, bool, error) {
		return 0, false, nil
	})
	elapsed := time.Since(start)

	require.ErrorIs(t, err, ErrTimedOut)
	assert.NotErrorIs(t, err, ErrFatal)

	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "ready", te.Condition)
	assert.Equal(t, "backend", te.Target)
	assert.Contains(t, err.Error(), "ready(backend)")

	assert.GreaterOrEqual(t, elapsed, timeout)
	assert.Less(t, elapsed, timeout+200*time.Millisecond)
}

func TestPoll_ToleratedErrorIsNotYet(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	v, err := Poll(context.Background(), PollOptions{
		Timeout:  time.Second,
		Interval: 5 * time.Millisecond,
		Ignore:   []error{ErrNotFound},
	}, func(context.Context) (int, bool, error) {
		if calls.Add(1) < 3 {
			return 0, false, ErrNotFound
		}
		return 42, true, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.EqualValues(t, 3, calls.Load())
}

func TestPoll_PersistentToleratedErrorSurfacesOnTimeout(t *testing.T) {
	t.Parallel()

	_, err := Poll(context.Background(), PollOptions{
		Timeout:  50 * time.Millisecond,
		Interval: 5 * time.Millisecond,
		Ignore:   []error{ErrNotFound},
	}, func(context.Context) (int, bool, error) {
		return 0, false, ErrNotFound
	})
	require.ErrorIs(t, err, ErrTimedOut)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPoll_FatalErrorAbortsImmediately(t *testing.T) {
	t.Parallel()

	boom := errors.New("page crashed")
	start := time.Now()
	_, err := Poll(context.Background(), PollOptions{
		Timeout:  5 * time.Second,
		Interval: 10 * time.Millisecond,
		Ignore:   []error{ErrNotFound},
	}, func(context.Context) (int, bool, error) {
		return 0, false, boom
	})

	require.ErrorIs(t, err, ErrFatal)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrTimedOut)
	assert.Less(t, time.Since(start), time.Second)
}

func TestPoll_EvaluatorCutOffByDeadlineTimesOut(t *testing.T) {
	t.Parallel()

	start := time.Now()
	_, err := Poll(context.Background(), PollOptions{
		Timeout:   100 * time.Millisecond,
		Interval:  10 * time.Millisecond,
		Condition: "ready",
		Target:    "backend",
	}, func(ctx context.Context) (int, bool, error) {
		<-ctx.Done()
		return 0, false, ctx.Err()
	})

	require.ErrorIs(t, err, ErrTimedOut)
	assert.NotErrorIs(t, err, ErrFatal)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "backend", te.Target)
	assert.Less(t, time.Since(start), time.Second)
}

func TestPoll_ParentCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)

	_, err := Poll(ctx, PollOptions{
		Timeout:  5 * time.Second,
		Interval: 5 * time.Millisecond,
	}, func(context.Context) (int, bool, error) {
		return 0, false, nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrTimedOut)
}

func TestFor_VisibleAppearsBeforeTimeout(t *testing.T) {
	t.Parallel()

	start := time.Now()
	appearsAt := start.Add(200 * time.Millisecond)
	page := &fakePage{
		el:       &fakeElement{visibleAt: appearsAt, text: "Hello World!"},
		attachAt: start.Add(50 * time.Millisecond),
	}

	el, err := For[*fakeElement](context.Background(), page, Visible("#finish"), Options{
		Timeout:  5 * time.Second,
		Interval: 25 * time.Millisecond,
	})
	elapsed := time.Since(start)

	require.NoError(t, err)
	require.NotNil(t, el)
	assert.Equal(t, "Hello World!", el.text)
	assert.GreaterOrEqual(t, elapsed, 200*time.Millisecond)
	assert.Less(t, elapsed, time.Second, "wait should end near the appearance, not the timeout")
}

func TestFor_TimeoutNamesConditionAndTarget(t *testing.T) {
	t.Parallel()

	page := &fakePage{}
	_, err := For[*fakeElement](context.Background(), page, Clickable("#start button"), Options{
		Timeout:  60 * time.Millisecond,
		Interval: 10 * time.Millisecond,
	})

	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, string(KindClickable), te.Condition)
	assert.Equal(t, "#start button", te.Target)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Greater(t, page.finds.Load(), int32(1))
}

func TestFor_Conditions(t *testing.T) {
	t.Parallel()

	past := time.Now().Add(-time.Second)
	future := time.Now().Add(time.Hour)

	tests := []struct {
		name    string
		page    *fakePage
		cond    Condition
		wantErr error
	}{
		{
			name: "present ignores visibility",
			page: &fakePage{el: &fakeElement{visibleAt: future}, attachAt: past},
			cond: Present("#hidden"),
		},
		{
			name:    "visible waits for display",
			page:    &fakePage{el: &fakeElement{visibleAt: future}, attachAt: past},
			cond:    Visible("#hidden"),
			wantErr: ErrTimedOut,
		},
		{
			name: "clickable requires enabled",
			page: &fakePage{el: &fakeElement{visibleAt: past, enabled: true}, attachAt: past},
			cond: Clickable("#go"),
		},
		{
			name:    "disabled is not clickable",
			page:    &fakePage{el: &fakeElement{visibleAt: past}, attachAt: past},
			cond:    Clickable("#go"),
			wantErr: ErrTimedOut,
		},
		{
			name: "absent when nothing matches",
			page: &fakePage{},
			cond: Absent("#spinner"),
		},
		{
			name: "absent when hidden",
			page: &fakePage{el: &fakeElement{visibleAt: future}, attachAt: past},
			cond: Absent("#spinner"),
		},
		{
			name:    "visible element is not absent",
			page:    &fakePage{el: &fakeElement{visibleAt: past}, attachAt: past},
			cond:    Absent("#spinner"),
			wantErr: ErrTimedOut,
		},
		{
			name: "contains text",
			page: &fakePage{el: &fakeElement{visibleAt: past, text: "Welcome, John"}, attachAt: past},
			cond: ContainsText("#greeting", "John"),
		},
		{
			name:    "text mismatch",
			page:    &fakePage{el: &fakeElement{visibleAt: past, text: "Welcome"}, attachAt: past},
			cond:    ContainsText("#greeting", "John"),
			wantErr: ErrTimedOut,
		},
		{
			name:    "unknown kind is fatal",
			page:    &fakePage{el: &fakeElement{visibleAt: past}, attachAt: past},
			cond:    Condition{Kind: "teleported", Selector: "#x"},
			wantErr: ErrFatal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := For[*fakeElement](context.Background(), tt.page, tt.cond, Options{
				Timeout:  40 * time.Millisecond,
				Interval: 5 * time.Millisecond,
			})
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestFor_AbsentWhenElementGoesStale(t *testing.T) {
	t.Parallel()

	el := &fakeElement{visibleAt: time.Now().Add(-time.Second)}
	page := &fakePage{el: el, attachAt: time.Now().Add(-time.Second)}
	time.AfterFunc(30*time.Millisecond, func() { el.stale.Store(true) })

	_, err := For[*fakeElement](context.Background(), page, Absent("#toast"), Options{
		Timeout:  time.Second,
		Interval: 5 * time.Millisecond,
	})
	require.NoError(t, err)
}

func TestCondition_String(t *testing.T) {
	assert.Equal(t, "visible(#a)", Visible("#a").String())
	assert.Equal(t, "contains-text(#a, hi)", ContainsText("#a", "hi").String())
}
