// Package toast carries short user-facing notices, mostly failures of
// background writes, to whichever UI surface the owner has open.
package toast

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Variant string

const (
	VariantDefault     Variant = "default"
	VariantDestructive Variant = "destructive"
)

type Toast struct {
	ID          string    `json:"id"`
	Owner       string    `json:"-"`
	Variant     Variant   `json:"variant"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Code        string    `json:"code,omitempty"`
	MutationID  string    `json:"mutationId,omitempty"`
	Time        time.Time `json:"time"`
}

type subscriber struct {
	id    uint64
	owner string
	fn    func(Toast)
}

// Bus fans toasts out to subscribers of the same owner. Callbacks run
// synchronously on the publisher's goroutine and must not block.
type Bus struct {
	mu     sync.Mutex
	nextID uint64
	// replaced, never modified in place
	subs []subscriber
	now  func() time.Time
}

func NewBus() *Bus {
	return &Bus{now: time.Now}
}

// Subscribe registers fn for toasts addressed to owner. The returned
// function removes it and may be called more than once.
func (b *Bus) Subscribe(owner string, fn func(Toast)) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	next := slices.Clone(b.subs)
	next = append(next, subscriber{id: id, owner: owner, fn: fn})
	b.subs = next
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		i := slices.IndexFunc(b.subs, func(s subscriber) bool { return s.id == id })
		if i < 0 {
			return
		}
		next := slices.Clone(b.subs)
		b.subs = slices.Delete(next, i, i+1)
	}
}

// Publish fills in ID and Time when missing and delivers t.
func (b *Bus) Publish(t Toast) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Time.IsZero() {
		t.Time = b.now()
	}
	if t.Variant == "" {
		t.Variant = VariantDefault
	}

	b.mu.Lock()
	subs := b.subs
	b.mu.Unlock()

	for _, s := range subs {
		if s.owner == t.Owner {
			s.fn(t)
		}
	}
}
