// Package mutation runs writes in the background so callers never wait on
// the store. Results reach the UI through store subscriptions; failures
// reach it through the toast bus.
package mutation

import (
	"context"
	"crypto/rand"
	"errors"
	"log"
	"maps"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/semaphore"

	"github.com/justsurfingit/jobpilot/internal/docstore"
	"github.com/justsurfingit/jobpilot/internal/toast"
)

// ErrClosed fails mutations issued after Close.
var ErrClosed = errors.New("mutation: dispatcher closed")

// Store is the write side of *docstore.Store.
type Store interface {
	NewID() string
	Set(ctx context.Context, principal, path string, data map[string]any) (docstore.Document, error)
	Update(ctx context.Context, principal, path string, fields map[string]any) (docstore.Document, error)
	Delete(ctx context.Context, principal, path string) error
}

// Reporter receives failure notices. *toast.Bus implements it.
type Reporter interface {
	Publish(t toast.Toast)
}

type Options struct {
	// Concurrency bounds writes running at once across all documents.
	Concurrency int64
	// Timeout bounds a single write.
	Timeout time.Duration
}

const (
	defaultConcurrency = 8
	defaultTimeout     = 15 * time.Second
)

// Failure notice shown for every kind of write failure.
const (
	failureTitle       = "Error"
	failureDescription = "Could not save your changes. Please try again."
)

type task struct {
	m   *Mutation
	run func(ctx context.Context) error
}

// lane holds the queued writes of one document path.
type lane struct {
	queue []task
}

// Dispatcher executes mutations. Writes to the same document run in the
// order they were issued; writes to different documents run concurrently.
type Dispatcher struct {
	store    Store
	reporter Reporter
	sem      *semaphore.Weighted
	timeout  time.Duration

	idMu    sync.Mutex
	entropy *ulid.MonotonicEntropy

	mu     sync.Mutex
	closed bool
	lanes  map[string]*lane
	wg     sync.WaitGroup
}

func NewDispatcher(store Store, reporter Reporter, opts Options) *Dispatcher {
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	return &Dispatcher{
		store:    store,
		reporter: reporter,
		sem:      semaphore.NewWeighted(opts.Concurrency),
		timeout:  opts.Timeout,
		entropy:  ulid.Monotonic(rand.Reader, 0),
		lanes:    make(map[string]*lane),
	}
}

// Create writes payload as a new document of collection. The document id
// is chosen before Create returns and is the last element of m.Path.
func (d *Dispatcher) Create(owner, collection string, payload map[string]any) *Mutation {
	path := docstore.DocPath(collection, d.store.NewID())
	data := maps.Clone(payload)
	return d.dispatch(KindCreate, owner, path, func(ctx context.Context) error {
		_, err := d.store.Set(ctx, owner, path, data)
		return err
	})
}

// Update merges fields into the document at path.
func (d *Dispatcher) Update(owner, path string, fields map[string]any) *Mutation {
	data := maps.Clone(fields)
	return d.dispatch(KindUpdate, owner, path, func(ctx context.Context) error {
		_, err := d.store.Update(ctx, owner, path, data)
		return err
	})
}

// Delete removes the document at path.
func (d *Dispatcher) Delete(owner, path string) *Mutation {
	return d.dispatch(KindDelete, owner, path, func(ctx context.Context) error {
		return d.store.Delete(ctx, owner, path)
	})
}

// Close stops accepting mutations and waits for queued ones to finish or
// for ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) newID() string {
	d.idMu.Lock()
	defer d.idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), d.entropy).String()
}

func (d *Dispatcher) dispatch(kind Kind, owner, path string, run func(ctx context.Context) error) *Mutation {
	m := newMutation(d.newID(), kind, owner, path)
	t := task{m: m, run: run}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.fail(m, ErrClosed)
		return m
	}
	if l, ok := d.lanes[path]; ok {
		l.queue = append(l.queue, t)
		d.mu.Unlock()
		return m
	}
	l := &lane{queue: []task{t}}
	d.lanes[path] = l
	d.wg.Add(1)
	d.mu.Unlock()

	go d.drain(path, l)
	return m
}

func (d *Dispatcher) drain(path string, l *lane) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		if len(l.queue) == 0 {
			delete(d.lanes, path)
			d.mu.Unlock()
			return
		}
		t := l.queue[0]
		l.queue[0] = task{}
		l.queue = l.queue[1:]
		d.mu.Unlock()

		d.execute(t)
	}
}

func (d *Dispatcher) execute(t task) {
	// Acquire with a background context cannot fail.
	_ = d.sem.Acquire(context.Background(), 1)
	defer d.sem.Release(1)

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := t.run(ctx); err != nil {
		d.fail(t.m, err)
		return
	}
	t.m.finish(nil)
}

// fail reports err and then marks m failed, so the notice is out before
// anyone waiting on m wakes up.
func (d *Dispatcher) fail(m *Mutation, err error) {
	code := docstore.CodeOf(err)
	log.Printf("❌ [mutation %s] %s %s failed (%s): %v", m.ID, m.Kind, m.Path, code, err)
	if d.reporter != nil {
		d.reporter.Publish(toast.Toast{
			Owner:       m.Owner,
			Variant:     toast.VariantDestructive,
			Title:       failureTitle,
			Description: failureDescription,
			Code:        string(code),
			MutationID:  m.ID,
		})
	}
	m.finish(err)
}
