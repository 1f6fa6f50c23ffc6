// Package livequery keeps a local, read-only copy of a query result that
// follows the store as it changes.
package livequery

import (
	"fmt"
	"sync"

	"github.com/justsurfingit/jobpilot/internal/docstore"
)

// Source opens store subscriptions. *docstore.Store implements it.
type Source interface {
	Watch(principal string, q docstore.Query, fn docstore.SnapshotFunc) (*docstore.Subscription, error)
}

// Descriptor says what a binding should follow. A nil *Descriptor means
// there is nothing to follow yet, e.g. before sign-in.
type Descriptor struct {
	Principal string
	Query     docstore.Query
}

func (d *Descriptor) key() string {
	if d == nil {
		return ""
	}
	return d.Principal + "\x00" + d.Query.Key()
}

// State is what a consumer renders.
type State[T any] struct {
	Data      []T
	IsLoading bool
	Err       error
}

// DecodeFunc turns a stored document into a consumer value.
type DecodeFunc[T any] func(docstore.Document) (T, error)

// Binding holds at most one live subscription and the latest decoded
// result. All methods are safe for concurrent use.
type Binding[T any] struct {
	src      Source
	decode   DecodeFunc[T]
	onChange func(State[T])

	mu     sync.Mutex
	key    string
	sub    *docstore.Subscription
	gen    uint64
	state  State[T]
	closed bool

	// counts SetDescriptor calls between Watch and keeping or stopping
	// its subscription; Close waits for them
	opening sync.WaitGroup
}

// New returns an idle binding. onChange, if not nil, is called after
// every state change, from the goroutine that caused it. It must not call
// SetDescriptor or Close.
func New[T any](src Source, decode DecodeFunc[T], onChange func(State[T])) *Binding[T] {
	return &Binding[T]{src: src, decode: decode, onChange: onChange}
}

// State returns the current state. Data is never modified after it is
// published, so the caller may keep it.
func (b *Binding[T]) State() State[T] {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// SetDescriptor points the binding at d. If d names the same principal
// and query as before nothing happens; otherwise the old subscription is
// released before the new one is opened.
func (b *Binding[T]) SetDescriptor(d *Descriptor) {
	key := d.key()

	b.mu.Lock()
	if b.closed || (key == b.key && (d == nil || b.sub != nil || b.state.Err != nil || b.state.IsLoading)) {
		b.mu.Unlock()
		return
	}
	old := b.sub
	b.sub = nil
	b.key = key
	b.gen++
	gen := b.gen
	if d == nil {
		b.state = State[T]{}
	} else {
		b.state = State[T]{IsLoading: true}
	}
	st := b.state
	if d != nil {
		b.opening.Add(1)
		defer b.opening.Done()
	}
	b.mu.Unlock()

	if old != nil {
		old.Stop()
	}
	b.notify(st)
	if d == nil {
		return
	}

	sub, err := b.src.Watch(d.Principal, d.Query, func(snap docstore.Snapshot, err error) {
		b.deliver(gen, snap, err)
	})

	b.mu.Lock()
	if b.gen != gen {
		// Superseded or closed while subscribing.
		b.mu.Unlock()
		if sub != nil {
			sub.Stop()
		}
		return
	}
	if err != nil {
		b.state = State[T]{Err: err}
		st = b.state
		b.mu.Unlock()
		b.notify(st)
		return
	}
	b.sub = sub
	b.mu.Unlock()
}

// Close releases the subscription. When Close returns no callback for
// this binding is running or will run.
func (b *Binding[T]) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.gen++
	sub := b.sub
	b.sub = nil
	b.mu.Unlock()

	if sub != nil {
		sub.Stop()
	}
	b.opening.Wait()
}

func (b *Binding[T]) deliver(gen uint64, snap docstore.Snapshot, err error) {
	var next State[T]
	if err != nil {
		next = State[T]{Err: err}
	} else {
		data := make([]T, 0, len(snap.Docs))
		for _, doc := range snap.Docs {
			v, derr := b.decode(doc)
			if derr != nil {
				next = State[T]{Err: fmt.Errorf("decode %s: %w", doc.Path, derr)}
				break
			}
			data = append(data, v)
		}
		if next.Err == nil {
			next = State[T]{Data: data}
		}
	}

	b.mu.Lock()
	if gen != b.gen {
		b.mu.Unlock()
		return
	}
	b.state = next
	b.mu.Unlock()
	b.notify(next)
}

func (b *Binding[T]) notify(st State[T]) {
	if b.onChange != nil {
		b.onChange(st)
	}
}
