package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/impactlens/internal/analysis"
	"github.com/p-blackswan/impactlens/internal/syncer"
	"github.com/p-blackswan/impactlens/internal/ticket"
)

type fakeSyncer struct {
	remote  map[string]ticket.Ticket
	status  syncer.Status
	query   string
	max     int
	stored  []string
	search  []ticket.Ticket
	comment string
}

func (f *fakeSyncer) Sync(_ context.Context, q string, n int) syncer.Result {
	f.query, f.max = q, n
	st := f.status
	if st == "" {
		st = syncer.StatusCompleted
	}
	r := syncer.Result{Query: q, Status: st}
	if st == syncer.StatusFailed {
		r.ErrorMessage = "search failed"
	}
	return r
}

func (f *fakeSyncer) FetchTicket(_ context.Context, key string) (*ticket.Ticket, error) {
	t, ok := f.remote[key]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (f *fakeSyncer) RefreshTicket(ctx context.Context, key string) (*ticket.Ticket, error) {
	t, err := f.FetchTicket(ctx, key)
	if t != nil {
		f.stored = append(f.stored, key)
	}
	return t, err
}

func (f *fakeSyncer) SearchTickets(_ context.Context, _ string) ([]ticket.Ticket, error) {
	return f.search, nil
}

func (f *fakeSyncer) TicketComments(_ context.Context, _ string) (string, error) {
	return f.comment, nil
}

type fakeStore struct {
	tickets map[string]ticket.Ticket
	runs    []syncer.Result
	purged  time.Time
	kept    int
}

func (f *fakeStore) FindByKey(_ context.Context, key string) (*ticket.Ticket, error) {
	t, ok := f.tickets[key]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (f *fakeStore) ListSyncRuns(_ context.Context, _ int) ([]syncer.Result, error) {
	return f.runs, nil
}

func (f *fakeStore) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	f.purged = now
	return 2, nil
}

func (f *fakeStore) PruneSyncRuns(_ context.Context, keep int) error {
	f.kept = keep
	return nil
}

type fakeAnalyzer struct{}

func (fakeAnalyzer) Analyze(_ context.Context, t ticket.Ticket) analysis.Result {
	return analysis.Result{TicketKey: t.Key, Status: analysis.StatusCompleted}
}

type harness struct {
	syncer *fakeSyncer
	store  *fakeStore
	closed bool
}

func newHarness() *harness {
	return &harness{
		syncer: &fakeSyncer{remote: map[string]ticket.Ticket{"X-1": {Key: "X-1", Summary: "remote", Status: "Open"}}},
		store:  &fakeStore{tickets: map[string]ticket.Ticket{"S-1": {Key: "S-1"}}},
	}
}

func (h *harness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	load := func(ctx context.Context) (*Deps, func() error, error) {
		return &Deps{
			Syncer:            h.syncer,
			Store:             h.store,
			Analyzer:          fakeAnalyzer{},
			DefaultJQL:        "ORDER BY updated DESC",
			DefaultMaxResults: 100,
			KeepRuns:          50,
			Now:               func() time.Time { return time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC) },
		}, func() error { h.closed = true; return nil }, nil
	}
	root := NewRootCmd(load)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestSync_Defaults(t *testing.T) {
	h := newHarness()
	out, err := h.run(t, "sync")
	require.NoError(t, err)
	assert.Equal(t, "ORDER BY updated DESC", h.syncer.query)
	assert.Equal(t, 100, h.syncer.max)
	assert.Contains(t, out, `"status": "COMPLETED"`)
	assert.True(t, h.closed)
}

func TestSync_Flags(t *testing.T) {
	h := newHarness()
	_, err := h.run(t, "sync", "--jql", "project = X", "--max-results", "10")
	require.NoError(t, err)
	assert.Equal(t, "project = X", h.syncer.query)
	assert.Equal(t, 10, h.syncer.max)

	_, err = h.run(t, "sync", "--recent-days", "7")
	require.NoError(t, err)
	assert.Equal(t, "updated >= -7d ORDER BY updated DESC", h.syncer.query)
}

func TestSync_FailedRunIsError(t *testing.T) {
	h := newHarness()
	h.syncer.status = syncer.StatusFailed
	out, err := h.run(t, "sync")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSyncFailed))
	assert.Contains(t, out, `"status": "FAILED"`)
}

func TestTicket_GetAndRefresh(t *testing.T) {
	h := newHarness()
	out, err := h.run(t, "ticket", "get", "X-1")
	require.NoError(t, err)
	assert.Contains(t, out, `"ticketKey": "X-1"`)
	assert.Empty(t, h.syncer.stored)

	_, err = h.run(t, "ticket", "refresh", "X-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"X-1"}, h.syncer.stored)

	_, err = h.run(t, "ticket", "get", "NOPE-1")
	assert.ErrorContains(t, err, "not found")
}

func TestSearch(t *testing.T) {
	h := newHarness()
	out, err := h.run(t, "search", "login", "timeout")
	require.NoError(t, err)
	assert.Contains(t, out, "No tickets found.")

	h.syncer.search = []ticket.Ticket{{Key: "L-1", Status: "Open", Summary: "Login times out"}}
	out, err = h.run(t, "search", "login")
	require.NoError(t, err)
	assert.Contains(t, out, "L-1")
	assert.Contains(t, out, "Login times out")
}

func TestComments(t *testing.T) {
	h := newHarness()
	h.syncer.comment = "one\ntwo\n"
	out, err := h.run(t, "comments", "X-1")
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\n", out)
}

func TestAnalyze(t *testing.T) {
	h := newHarness()
	out, err := h.run(t, "analyze", "S-1")
	require.NoError(t, err)
	assert.Contains(t, out, `"ticketKey": "S-1"`)
	assert.Empty(t, h.syncer.stored)

	_, err = h.run(t, "analyze", "X-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"X-1"}, h.syncer.stored)

	_, err = h.run(t, "analyze", "NOPE-1")
	assert.ErrorContains(t, err, "not found")
}

func TestRuns(t *testing.T) {
	h := newHarness()
	out, err := h.run(t, "runs")
	require.NoError(t, err)
	assert.Contains(t, out, "No sync runs recorded.")

	h.store.runs = []syncer.Result{{
		Status: syncer.StatusCompleted, Query: "project = X", TotalFetched: 3, NewAdded: 2, ExistingUpdated: 1,
		StartTime: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
	}}
	out, err = h.run(t, "runs")
	require.NoError(t, err)
	assert.Contains(t, out, "2024-05-01 09:00:00")
	assert.Contains(t, out, "fetched=3 new=2 updated=1 failed=0")
}

func TestPurge(t *testing.T) {
	h := newHarness()
	out, err := h.run(t, "purge")
	require.NoError(t, err)
	assert.Contains(t, out, "Purged 2 expired ticket(s).")
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), h.store.purged)
	assert.Equal(t, 50, h.store.kept)
}

func TestVersion_SkipsLoader(t *testing.T) {
	root := NewRootCmd(func(context.Context) (*Deps, func() error, error) {
		return nil, nil, errors.New("should not load")
	})
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "impactctl dev")
}

func TestLoaderError(t *testing.T) {
	root := NewRootCmd(func(context.Context) (*Deps, func() error, error) {
		return nil, nil, errors.New("config broken")
	})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"runs"})
	err := root.Execute()
	assert.ErrorContains(t, err, "config broken")
}
