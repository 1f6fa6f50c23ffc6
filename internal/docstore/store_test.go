package docstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const owner = "u1"

// stepClock returns base, base+1s, base+2s, ...
func stepClock(base time.Time) func() time.Time {
	var mu sync.Mutex
	n := 0
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := base.Add(time.Duration(n) * time.Second)
		n++
		return t
	}
}

func seqIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("doc%02d", n)
	}
}

func newTestStore() *Store {
	return New(NewMemoryBackend(),
		WithClock(stepClock(time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC))),
		WithIDGenerator(seqIDs()),
	)
}

var jobs = UserCollection(owner, "jobApplications")

// collect records snapshots delivered to a subscription.
type collect struct {
	mu    sync.Mutex
	snaps []Snapshot
	errs  []error
	ch    chan struct{}
}

func newCollect() *collect {
	return &collect{ch: make(chan struct{}, 100)}
}

func (c *collect) fn(s Snapshot, err error) {
	c.mu.Lock()
	if err != nil {
		c.errs = append(c.errs, err)
	} else {
		c.snaps = append(c.snaps, s)
	}
	c.mu.Unlock()
	c.ch <- struct{}{}
}

func (c *collect) wait(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-c.ch:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %d of %d", i+1, n)
		}
	}
}

func (c *collect) snapshots() []Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Snapshot(nil), c.snaps...)
}

func ids(s Snapshot) []string {
	out := make([]string, len(s.Docs))
	for i, d := range s.Docs {
		out[i] = d.ID
	}
	return out
}

func TestCreateAssignsIDAndServerTimestamp(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	doc, err := s.Create(ctx, owner, jobs, map[string]any{
		"company":     "Acme",
		"lastUpdated": ServerTimestamp,
	})
	require.NoError(t, err)
	assert.Equal(t, "doc01", doc.ID)
	assert.Equal(t, jobs+"/doc01", doc.Path)
	assert.Equal(t, "2025-01-10T09:00:00.000000000Z", doc.Data["lastUpdated"])

	got, err := s.Get(ctx, owner, doc.Path)
	require.NoError(t, err)
	assert.Equal(t, "Acme", got.Data["company"])
}

func TestCommitTimesStrictlyIncrease(t *testing.T) {
	frozen := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	s := New(NewMemoryBackend(), WithClock(func() time.Time { return frozen }))
	ctx := context.Background()

	doc, err := s.Create(ctx, owner, jobs, map[string]any{"lastUpdated": ServerTimestamp})
	require.NoError(t, err)
	prev := doc.Data["lastUpdated"].(string)
	for i := 0; i < 5; i++ {
		doc, err = s.Update(ctx, owner, doc.Path, map[string]any{"lastUpdated": ServerTimestamp})
		require.NoError(t, err)
		cur := doc.Data["lastUpdated"].(string)
		assert.Greater(t, cur, prev)
		prev = cur
	}
}

func TestUpdateMergesFields(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	doc, err := s.Create(ctx, owner, jobs, map[string]any{"company": "Acme", "role": "Engineer"})
	require.NoError(t, err)

	updated, err := s.Update(ctx, owner, doc.Path, map[string]any{"role": "Staff Engineer", "notes": "call back"})
	require.NoError(t, err)
	assert.Equal(t, "Acme", updated.Data["company"])
	assert.Equal(t, "Staff Engineer", updated.Data["role"])
	assert.Equal(t, "call back", updated.Data["notes"])
	assert.True(t, updated.UpdateTime.After(doc.UpdateTime))
}

func TestUpdateMissingDocumentIsNotFound(t *testing.T) {
	s := newTestStore()
	_, err := s.Update(context.Background(), owner, jobs+"/missing", map[string]any{"role": "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteTwiceReportsNotFound(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	doc, err := s.Create(ctx, owner, jobs, map[string]any{"company": "Acme"})
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, owner, doc.Path))
	err = s.Delete(ctx, owner, doc.Path)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, CodeNotFound, CodeOf(err))
}

func TestOwnerScoping(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	doc, err := s.Create(ctx, owner, jobs, map[string]any{"company": "Acme"})
	require.NoError(t, err)

	tests := []struct {
		name string
		run  func() error
	}{
		{"get as other user", func() error { _, err := s.Get(ctx, "u2", doc.Path); return err }},
		{"get unauthenticated", func() error { _, err := s.Get(ctx, "", doc.Path); return err }},
		{"create in foreign namespace", func() error {
			_, err := s.Create(ctx, "u2", jobs, map[string]any{"company": "x"})
			return err
		}},
		{"update as other user", func() error {
			_, err := s.Update(ctx, "u2", doc.Path, map[string]any{"company": "x"})
			return err
		}},
		{"delete as other user", func() error { return s.Delete(ctx, "u2", doc.Path) }},
		{"query as other user", func() error { _, err := s.Query(ctx, "u2", NewQuery(jobs)); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.run(), ErrPermissionDenied)
		})
	}
}

func TestMalformedPaths(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	_, err := s.Get(ctx, owner, "users/u1/jobApplications")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = s.Create(ctx, owner, "users/u1", map[string]any{})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = s.Query(ctx, owner, NewQuery("users//jobApplications"))
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestQueryFiltersAndOrders(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	for _, d := range []map[string]any{
		{"company": "A", "status": "Applied", "dateApplied": "2025-01-03"},
		{"company": "B", "status": "Offer", "dateApplied": "2025-01-01"},
		{"company": "C", "status": "Applied", "dateApplied": "2025-01-02"},
	} {
		_, err := s.Create(ctx, owner, jobs, d)
		require.NoError(t, err)
	}

	snap, err := s.Query(ctx, owner, NewQuery(jobs).OrderBy("dateApplied", Asc))
	require.NoError(t, err)
	assert.Equal(t, []string{"doc02", "doc03", "doc01"}, ids(snap))

	snap, err = s.Query(ctx, owner, NewQuery(jobs).Where("status", "Applied").OrderBy("dateApplied", Desc))
	require.NoError(t, err)
	assert.Equal(t, []string{"doc01", "doc03"}, ids(snap))

	snap, err = s.Query(ctx, owner, NewQuery(jobs).OrderBy("dateApplied", Asc).WithLimit(1))
	require.NoError(t, err)
	assert.Equal(t, []string{"doc02"}, ids(snap))
}

func TestQueryResultIsACopy(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	doc, err := s.Create(ctx, owner, jobs, map[string]any{"company": "Acme"})
	require.NoError(t, err)

	snap, err := s.Query(ctx, owner, NewQuery(jobs))
	require.NoError(t, err)
	snap.Docs[0].Data["company"] = "mutated"

	got, err := s.Get(ctx, owner, doc.Path)
	require.NoError(t, err)
	assert.Equal(t, "Acme", got.Data["company"])
}

func TestQueryKey(t *testing.T) {
	a := NewQuery(jobs).Where("status", "Applied").OrderBy("lastUpdated", Desc)
	b := NewQuery(jobs).Where("status", "Applied").OrderBy("lastUpdated", Desc)
	c := NewQuery(jobs).Where("status", "Offer").OrderBy("lastUpdated", Desc)

	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), c.Key())
	assert.NotEqual(t, a.Key(), a.OrderBy("company", Asc).Key())
}

func TestWatchDeliversInitialAndOneSnapshotPerChange(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	c := newCollect()

	sub, err := s.Watch(owner, NewQuery(jobs).OrderBy("lastUpdated", Desc), c.fn)
	require.NoError(t, err)
	defer sub.Stop()
	c.wait(t, 1)

	const n = 5
	var last Document
	for i := 0; i < n; i++ {
		last, err = s.Create(ctx, owner, jobs, map[string]any{"n": i, "lastUpdated": ServerTimestamp})
		require.NoError(t, err)
	}
	c.wait(t, n)

	snaps := c.snapshots()
	require.Len(t, snaps, n+1)
	assert.Empty(t, snaps[0].Docs)
	for i := 1; i <= n; i++ {
		require.Len(t, snaps[i].Docs, i)
		assert.Equal(t, fmt.Sprintf("doc%02d", i), snaps[i].Docs[0].ID, "newest first")
	}
	assert.Equal(t, last.ID, snaps[n].Docs[0].ID)
}

func TestWatchSkipsCommitsThatDoNotChangeTheResult(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	c := newCollect()

	sub, err := s.Watch(owner, NewQuery(jobs).Where("status", "Offer"), c.fn)
	require.NoError(t, err)
	defer sub.Stop()
	c.wait(t, 1)

	_, err = s.Create(ctx, owner, jobs, map[string]any{"status": "Applied"})
	require.NoError(t, err)
	_, err = s.Create(ctx, owner, jobs, map[string]any{"status": "Offer"})
	require.NoError(t, err)
	c.wait(t, 1)

	snaps := c.snapshots()
	require.Len(t, snaps, 2)
	assert.Equal(t, []string{"doc02"}, ids(snaps[1]))
}

// coarseBackend stores times at microsecond precision, like Postgres.
type coarseBackend struct {
	*MemoryBackend
}

func (c *coarseBackend) coarse(doc Document) Document {
	doc.CreateTime = doc.CreateTime.Truncate(time.Microsecond)
	doc.UpdateTime = doc.UpdateTime.Truncate(time.Microsecond)
	return doc
}

func (c *coarseBackend) Insert(ctx context.Context, doc Document) error {
	return c.MemoryBackend.Insert(ctx, c.coarse(doc))
}

func (c *coarseBackend) Replace(ctx context.Context, doc Document) error {
	return c.MemoryBackend.Replace(ctx, c.coarse(doc))
}

func TestWatchSeesUpdatesWithinBackendTimePrecision(t *testing.T) {
	frozen := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	s := New(&coarseBackend{MemoryBackend: NewMemoryBackend()},
		WithClock(func() time.Time { return frozen }),
		WithIDGenerator(seqIDs()),
	)
	ctx := context.Background()
	c := newCollect()

	sub, err := s.Watch(owner, NewQuery(jobs), c.fn)
	require.NoError(t, err)
	defer sub.Stop()
	c.wait(t, 1)

	doc, err := s.Create(ctx, owner, jobs, map[string]any{"status": "Applied"})
	require.NoError(t, err)
	c.wait(t, 1)
	_, err = s.Update(ctx, owner, doc.Path, map[string]any{"status": "Offer"})
	require.NoError(t, err)
	c.wait(t, 1)

	snaps := c.snapshots()
	require.Len(t, snaps, 3)
	assert.Equal(t, "Applied", snaps[1].Docs[0].Data["status"])
	assert.Equal(t, "Offer", snaps[2].Docs[0].Data["status"])
}

func TestWatchDeniedReportsError(t *testing.T) {
	s := newTestStore()
	c := newCollect()

	sub, err := s.Watch("u2", NewQuery(jobs), c.fn)
	require.NoError(t, err)
	defer sub.Stop()
	c.wait(t, 1)

	c.mu.Lock()
	defer c.mu.Unlock()
	require.Len(t, c.errs, 1)
	assert.True(t, errors.Is(c.errs[0], ErrPermissionDenied))
	assert.Empty(t, c.snaps)
}

func TestWatchRejectsMalformedQuery(t *testing.T) {
	s := newTestStore()
	_, err := s.Watch(owner, NewQuery("users/u1"), func(Snapshot, error) {})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestStopHaltsDelivery(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	var mu sync.Mutex
	count := 0
	sub, err := s.Watch(owner, NewQuery(jobs), func(Snapshot, error) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	require.NoError(t, err)

	_, err = s.Create(ctx, owner, jobs, map[string]any{"company": "A"})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 2
	}, 2*time.Second, 5*time.Millisecond)

	sub.Stop()
	sub.Stop()

	for i := 0; i < 3; i++ {
		_, err = s.Create(ctx, owner, jobs, map[string]any{"company": "B"})
		require.NoError(t, err)
	}
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, count)
}

func TestOtherCollectionsDoNotNotify(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	c := newCollect()

	sub, err := s.Watch(owner, NewQuery(jobs), c.fn)
	require.NoError(t, err)
	defer sub.Stop()
	c.wait(t, 1)

	_, err = s.Create(ctx, owner, UserCollection(owner, "reminders"), map[string]any{"title": "x"})
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)

	assert.Len(t, c.snapshots(), 1)
}

type failingBackend struct {
	*MemoryBackend
	failRemove string
}

func (f *failingBackend) Remove(ctx context.Context, path string) error {
	if path == f.failRemove {
		return errors.New("connection reset")
	}
	return f.MemoryBackend.Remove(ctx, path)
}

func TestBackendFailuresAreUnavailable(t *testing.T) {
	backend := &failingBackend{MemoryBackend: NewMemoryBackend(), failRemove: jobs + "/doc01"}
	s := New(backend, WithIDGenerator(seqIDs()))
	ctx := context.Background()

	doc, err := s.Create(ctx, owner, jobs, map[string]any{"company": "A"})
	require.NoError(t, err)

	err = s.Delete(ctx, owner, doc.Path)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "connection reset")
}
