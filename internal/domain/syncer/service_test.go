package syncer_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/volunteerhq/galaxysync/internal/domain/resource"
	"github.com/volunteerhq/galaxysync/internal/domain/syncer"
	"github.com/volunteerhq/galaxysync/internal/sqlite"
	"github.com/volunteerhq/galaxysync/internal/sqlite/sqlitetest"
)

// fakeSource serves canned pages per resource and records the since
// value each fetch was started with.
type fakeSource struct {
	pages     map[string][][]json.RawMessage
	failAfter map[string]int
	failWith  map[string]error
	since     map[string]*time.Time
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		pages:     map[string][][]json.RawMessage{},
		failAfter: map[string]int{},
		failWith:  map[string]error{},
		since:     map[string]*time.Time{},
	}
}

func (f *fakeSource) seed(name string, pages ...[]json.RawMessage) {
	f.pages[name] = pages
}

func (f *fakeSource) failResource(name string, afterPages int, err error) {
	f.failAfter[name] = afterPages
	f.failWith[name] = err
}

func (f *fakeSource) Pages(res resource.Resource, since *time.Time) syncer.PageIterator {
	f.since[res.Name] = since
	iter := &fakeIter{pages: f.pages[res.Name]}
	if err, ok := f.failWith[res.Name]; ok {
		iter.failAfter = f.failAfter[res.Name]
		iter.failWith = err
	} else {
		iter.failAfter = -1
	}
	return iter
}

type fakeIter struct {
	pages     [][]json.RawMessage
	pos       int
	failAfter int
	failWith  error
	err       error
}

func (it *fakeIter) Next(ctx context.Context) bool {
	if it.err != nil {
		return false
	}
	if it.failAfter >= 0 && it.pos == it.failAfter {
		it.err = it.failWith
		return false
	}
	if it.pos >= len(it.pages) {
		return false
	}
	it.pos++
	return true
}

func (it *fakeIter) Page() []json.RawMessage { return it.pages[it.pos-1] }
func (it *fakeIter) Err() error              { return it.err }
func (it *fakeIter) Pages() int              { return it.pos }

type terminalErr struct{ msg string }

func (e *terminalErr) Error() string  { return e.msg }
func (e *terminalErr) Terminal() bool { return true }

func page(ids ...int) []json.RawMessage {
	var records []json.RawMessage
	for _, id := range ids {
		records = append(records, json.RawMessage(fmt.Sprintf(`{"id": %d}`, id)))
	}
	return records
}

func newTestService(t *testing.T, source syncer.PageSource) (*syncer.Service, *sqlite.DocumentRepository, *sqlite.CheckpointRepository) {
	t.Helper()
	db := sqlitetest.New(t)
	docs := sqlite.NewDocumentRepository(db)
	checkpoints := sqlite.NewCheckpointRepository(db)
	writer := syncer.NewWriter(docs, testLogger())
	service := syncer.NewService(source, writer, checkpoints, testLogger(), 2)
	return service, docs, checkpoints
}

func outcomeFor(t *testing.T, report *syncer.CycleReport, name string) syncer.ResourceOutcome {
	t.Helper()
	for _, res := range report.Resources {
		if res.Resource == name {
			return res
		}
	}
	t.Fatalf("no outcome for resource %s", name)
	return syncer.ResourceOutcome{}
}

func TestRunCycleSyncsAllResources(t *testing.T) {
	source := newFakeSource()
	source.seed("users", page(1, 2))
	source.seed("needs", page(10))
	service, docs, checkpoints := newTestService(t, source)
	ctx := context.Background()

	report, err := service.RunCycle(ctx)
	require.NoError(t, err)
	require.Len(t, report.Resources, 6)
	require.NotEmpty(t, report.ID)

	users := outcomeFor(t, report, "users")
	require.Equal(t, syncer.StatusSucceeded, users.Status)
	require.Equal(t, 2, users.Written)

	count, err := docs.Count(ctx, "users")
	require.NoError(t, err)
	require.Equal(t, int64(2), count)

	// Empty resources still succeed and checkpoint.
	events := outcomeFor(t, report, "events")
	require.Equal(t, syncer.StatusSucceeded, events.Status)

	cp, err := checkpoints.Get(ctx, "events")
	require.NoError(t, err)
	require.NotNil(t, cp.LastSuccess)
}

func TestRunCycleUsesLastSuccessAsSince(t *testing.T) {
	source := newFakeSource()
	source.seed("users", page(1))
	service, _, checkpoints := newTestService(t, source)
	ctx := context.Background()

	earlier := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, checkpoints.MarkSuccess(ctx, "users", earlier))

	_, err := service.RunCycle(ctx, "users")
	require.NoError(t, err)
	require.NotNil(t, source.since["users"])
	require.True(t, source.since["users"].Equal(earlier))
}

func TestRunCycleFirstSyncIsFull(t *testing.T) {
	source := newFakeSource()
	source.seed("users", page(1))
	service, _, _ := newTestService(t, source)

	_, err := service.RunCycle(context.Background(), "users")
	require.NoError(t, err)
	require.Nil(t, source.since["users"], "no checkpoint means a full fetch")
}

func TestRunCycleEventsAlwaysFullFetch(t *testing.T) {
	source := newFakeSource()
	source.seed("events", page(1))
	service, _, checkpoints := newTestService(t, source)
	ctx := context.Background()

	require.NoError(t, checkpoints.MarkSuccess(ctx, "events", time.Now().UTC()))
	_, err := service.RunCycle(ctx, "events")
	require.NoError(t, err)
	require.Nil(t, source.since["events"], "events carry no incremental filter")
}

func TestRunCyclePartialWhenFetchFailsMidway(t *testing.T) {
	source := newFakeSource()
	source.seed("users", page(1), page(2))
	source.failResource("users", 1, errors.New("connection reset"))
	service, docs, checkpoints := newTestService(t, source)
	ctx := context.Background()

	report, err := service.RunCycle(ctx, "users")
	require.NoError(t, err)

	users := outcomeFor(t, report, "users")
	require.Equal(t, syncer.StatusPartial, users.Status)
	require.Equal(t, 1, users.Written)
	require.True(t, users.Retryable)

	// Written records stay written.
	count, err := docs.Count(ctx, "users")
	require.NoError(t, err)
	require.Equal(t, int64(1), count)

	// last_sync advances, last_success does not.
	cp, err := checkpoints.Get(ctx, "users")
	require.NoError(t, err)
	require.NotNil(t, cp.LastSync)
	require.Nil(t, cp.LastSuccess)
}

func TestRunCyclePartialWhenSomeRecordsRejectWrites(t *testing.T) {
	source := newFakeSource()
	source.seed("users", []json.RawMessage{
		json.RawMessage(`{"user_email": "no-id@example.org"}`),
		json.RawMessage(`{"id": 9}`),
	})
	service, docs, checkpoints := newTestService(t, source)
	ctx := context.Background()

	report, err := service.RunCycle(ctx, "users")
	require.NoError(t, err)

	users := outcomeFor(t, report, "users")
	require.Equal(t, syncer.StatusPartial, users.Status,
		"a complete fetch with write failures is not a success")
	require.Equal(t, 1, users.Written)
	require.Equal(t, 1, users.Failed)
	require.True(t, users.Retryable)

	count, err := docs.Count(ctx, "users")
	require.NoError(t, err)
	require.Equal(t, int64(1), count)

	// last_sync advances, last_success does not, so the next cycle
	// re-fetches the same window.
	cp, err := checkpoints.Get(ctx, "users")
	require.NoError(t, err)
	require.NotNil(t, cp.LastSync)
	require.Nil(t, cp.LastSuccess)
}

func TestRunCycleFailedWhenNothingWritten(t *testing.T) {
	source := newFakeSource()
	source.failResource("users", 0, errors.New("connection refused"))
	service, _, checkpoints := newTestService(t, source)
	ctx := context.Background()

	report, err := service.RunCycle(ctx, "users")
	require.NoError(t, err)

	users := outcomeFor(t, report, "users")
	require.Equal(t, syncer.StatusFailed, users.Status)
	require.True(t, users.Retryable)

	cp, err := checkpoints.Get(ctx, "users")
	require.NoError(t, err)
	require.NotNil(t, cp.LastSync)
	require.Nil(t, cp.LastSuccess)
}

func TestRunCycleMarksTerminalErrorsNotRetryable(t *testing.T) {
	source := newFakeSource()
	source.failResource("users", 0, &terminalErr{msg: "invalid credentials"})
	service, _, _ := newTestService(t, source)

	report, err := service.RunCycle(context.Background(), "users")
	require.NoError(t, err)

	users := outcomeFor(t, report, "users")
	require.Equal(t, syncer.StatusFailed, users.Status)
	require.False(t, users.Retryable)
}

func TestRunCycleResourcesFailIndependently(t *testing.T) {
	source := newFakeSource()
	source.failResource("users", 0, errors.New("down"))
	source.seed("needs", page(10, 11))
	service, _, _ := newTestService(t, source)

	report, err := service.RunCycle(context.Background(), "users", "needs")
	require.NoError(t, err)

	require.Equal(t, syncer.StatusFailed, outcomeFor(t, report, "users").Status)

	needs := outcomeFor(t, report, "needs")
	require.Equal(t, syncer.StatusSucceeded, needs.Status)
	require.Equal(t, 2, needs.Written)
}

func TestRunCycleSuccessAdvancesCheckpointToCycleStart(t *testing.T) {
	source := newFakeSource()
	source.seed("users", page(1))
	service, _, checkpoints := newTestService(t, source)
	ctx := context.Background()

	before := time.Now().UTC().Add(-time.Second)
	_, err := service.RunCycle(ctx, "users")
	require.NoError(t, err)
	after := time.Now().UTC().Add(time.Second)

	cp, err := checkpoints.Get(ctx, "users")
	require.NoError(t, err)
	require.NotNil(t, cp.LastSuccess)
	require.True(t, cp.LastSuccess.After(before))
	require.True(t, cp.LastSuccess.Before(after))
	require.False(t, cp.LastSuccess.After(*cp.LastSync))
}

func TestRunCycleUnknownResource(t *testing.T) {
	service, _, _ := newTestService(t, newFakeSource())

	_, err := service.RunCycle(context.Background(), "widgets")
	require.ErrorIs(t, err, syncer.ErrUnknownResource)
}

func TestRunCycleCancelledBeforeStart(t *testing.T) {
	source := newFakeSource()
	source.seed("users", page(1))
	service, _, _ := newTestService(t, source)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := service.RunCycle(ctx)
	require.NoError(t, err)
	require.True(t, report.Cancelled)
	for _, res := range report.Resources {
		require.Equal(t, syncer.StatusPending, res.Status)
	}
}

func TestCycleReportTotals(t *testing.T) {
	report := &syncer.CycleReport{Resources: []syncer.ResourceOutcome{
		{Status: syncer.StatusSucceeded, Written: 3},
		{Status: syncer.StatusSucceeded, Written: 2},
	}}
	require.Equal(t, 5, report.TotalWritten())
	require.True(t, report.Succeeded())

	report.Resources[0].Status = syncer.StatusPartial
	report.Resources[0].Failed = 1
	require.Equal(t, 1, report.TotalFailed())
	require.False(t, report.Succeeded())
}
