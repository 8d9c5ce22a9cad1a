package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teknowguy/autopilot-backend/internal/domain"
	"github.com/teknowguy/autopilot-backend/internal/gate"
	"github.com/teknowguy/autopilot-backend/internal/poststore"
	"github.com/teknowguy/autopilot-backend/pkg/kv/memory"
)

var now = time.Date(2024, 1, 1, 0, 0, 5, 0, time.UTC)

type fakeDeployer struct {
	mu    sync.Mutex
	store *poststore.Store
	calls []string
	fail  map[string]error
}

func (d *fakeDeployer) Deploy(ctx context.Context, post domain.Post) (domain.Post, error) {
	d.mu.Lock()
	d.calls = append(d.calls, post.ID)
	err := d.fail[post.ID]
	d.mu.Unlock()
	if err != nil {
		return post, err
	}
	post.Status = domain.StatusLive
	post.ExternalID = "ext-" + post.ID
	_, err = d.store.ReplaceIfPresent(ctx, post)
	return post, err
}

func (d *fakeDeployer) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

func newStore(t *testing.T, posts ...domain.Post) *poststore.Store {
	t.Helper()
	store, err := poststore.Open(context.Background(), memory.New(), poststore.Options{})
	require.NoError(t, err)
	require.NoError(t, store.ReplaceAll(context.Background(), posts))
	return store
}

func post(id string, status domain.Status, at time.Time) domain.Post {
	return domain.Post{ID: id, Title: id, Status: status, ScheduledDate: at}
}

func TestTickDeploysExactlyTheDuePosts(t *testing.T) {
	store := newStore(t,
		post("past", domain.StatusScheduled, now.Add(-time.Hour)),
		post("exact", domain.StatusScheduled, now),
		post("future", domain.StatusScheduled, now.Add(time.Second)),
		post("draft", domain.StatusDraft, now.Add(-time.Hour)),
		post("live", domain.StatusLive, now.Add(-time.Hour)),
		post("undated", domain.StatusScheduled, time.Time{}),
	)
	deployer := &fakeDeployer{store: store}
	p := New(store, deployer, Config{Clock: FixedClock(now)}, nil)

	report := p.Tick(context.Background())
	assert.Equal(t, []string{"past", "exact"}, report.Due)
	assert.Equal(t, []string{"past", "exact"}, report.Deployed)
	assert.Equal(t, []string{"past", "exact"}, deployer.Calls())

	second := p.Tick(context.Background())
	assert.Empty(t, second.Due)
	assert.Len(t, deployer.Calls(), 2)
}

func TestTickScenarioCreateAtDueTime(t *testing.T) {
	store := newStore(t, post("x1", domain.StatusScheduled, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	deployer := &fakeDeployer{store: store}
	p := New(store, deployer, Config{Clock: FixedClock(now)}, nil)

	p.Tick(context.Background())

	stored, _ := store.Find("x1")
	assert.Equal(t, domain.StatusLive, stored.Status)
	assert.Equal(t, "ext-x1", stored.ExternalID)
	assert.Equal(t, []string{"x1"}, deployer.Calls())
}

func TestTickContinuesAfterFailure(t *testing.T) {
	store := newStore(t,
		post("a", domain.StatusScheduled, now.Add(-time.Minute)),
		post("b", domain.StatusScheduled, now.Add(-time.Minute)),
	)
	deployer := &fakeDeployer{store: store, fail: map[string]error{"a": errors.New("Site API Error: 500")}}
	p := New(store, deployer, Config{Clock: FixedClock(now)}, nil)

	report := p.Tick(context.Background())
	assert.Equal(t, []string{"a"}, report.Failed)
	assert.Equal(t, []string{"b"}, report.Deployed)

	stored, _ := store.Find("a")
	assert.Equal(t, domain.StatusScheduled, stored.Status)

	// Still due, so the next tick retries it.
	report = p.Tick(context.Background())
	assert.Equal(t, []string{"a"}, report.Due)
}

func TestTickRetriesBusySkipsOnNextTick(t *testing.T) {
	store := newStore(t, post("x1", domain.StatusScheduled, now.Add(-time.Minute)))
	busy := fmt.Errorf("%w: sync in progress", gate.ErrBusy)
	deployer := &fakeDeployer{store: store, fail: map[string]error{"x1": busy}}
	p := New(store, deployer, Config{Clock: FixedClock(now)}, nil)

	report := p.Tick(context.Background())
	assert.Equal(t, []string{"x1"}, report.Skipped)
	assert.Empty(t, report.Failed)

	deployer.mu.Lock()
	deployer.fail = nil
	deployer.mu.Unlock()

	report = p.Tick(context.Background())
	assert.Equal(t, []string{"x1"}, report.Deployed)
}

type panickyDeployer struct{}

func (panickyDeployer) Deploy(context.Context, domain.Post) (domain.Post, error) {
	panic("boom")
}

func TestTickRecoversDeployPanic(t *testing.T) {
	store := newStore(t, post("x1", domain.StatusScheduled, now.Add(-time.Minute)))
	p := New(store, panickyDeployer{}, Config{Clock: FixedClock(now)}, nil)

	report := p.Tick(context.Background())
	assert.Equal(t, []string{"x1"}, report.Failed)
}

func TestTickSeesStoreChanges(t *testing.T) {
	store := newStore(t, post("x1", domain.StatusDraft, now.Add(-time.Minute)))
	deployer := &fakeDeployer{store: store}
	p := New(store, deployer, Config{Clock: FixedClock(now)}, nil)

	assert.Empty(t, p.Tick(context.Background()).Due)

	require.NoError(t, store.Upsert(context.Background(), post("x1", domain.StatusScheduled, now.Add(-time.Minute))))
	assert.Equal(t, []string{"x1"}, p.Tick(context.Background()).Deployed)
}

func TestStartRunsTicksUntilCancelled(t *testing.T) {
	store := newStore(t, post("x1", domain.StatusScheduled, now.Add(-time.Minute)))
	deployer := &fakeDeployer{store: store}
	p := New(store, deployer, Config{Interval: time.Second, Clock: FixedClock(now)}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Start(ctx) }()

	require.Eventually(t, func() bool {
		return len(deployer.Calls()) == 1
	}, 5*time.Second, 50*time.Millisecond)
	assert.True(t, p.Status().Running)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("poller did not stop")
	}
	assert.False(t, p.Status().Running)
	assert.NotNil(t, p.Status().LastTick)
}

func TestDefaults(t *testing.T) {
	p := New(newStore(t), &fakeDeployer{}, Config{}, nil)
	assert.Equal(t, DefaultInterval, p.Status().Interval)
	assert.IsType(t, SystemClock{}, p.clock)
}
