package docstore

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"sync"
	"time"
)

// SnapshotFunc receives either a snapshot or an error, never both.
type SnapshotFunc func(Snapshot, error)

type event struct {
	snap Snapshot
	err  error
}

// Subscription is a live query registered with Watch.
type Subscription struct {
	id    uint64
	store *Store
	query compiled
	fn    SnapshotFunc

	// guarded by store.mu
	delivered  bool
	lastDigest string

	mu    sync.Mutex
	queue []event

	wake     chan struct{}
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func newSubscription(s *Store, c compiled, fn SnapshotFunc) *Subscription {
	return &Subscription{
		store: s,
		query: c,
		fn:    fn,
		wake:  make(chan struct{}, 1),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// Query returns the subscribed query.
func (sub *Subscription) Query() Query {
	return sub.query.Query
}

// Stop releases the subscription. It is safe to call more than once; once
// it returns, fn is not running and will not run again.
func (sub *Subscription) Stop() {
	sub.stopOnce.Do(func() {
		if sub.id != 0 {
			sub.store.unregister(sub)
		}
		close(sub.stop)
	})
	<-sub.done
}

// offer evaluates the query over the collection's documents and queues a
// snapshot if the result differs from the last one queued. Caller holds
// store.mu.
func (sub *Subscription) offer(docs []Document, readTime time.Time, err error) {
	if err != nil {
		sub.enqueue(event{err: err})
		return
	}
	result := sub.query.apply(docs)
	d := digest(result)
	if sub.delivered && d == sub.lastDigest {
		return
	}
	sub.delivered = true
	sub.lastDigest = d
	sub.enqueue(event{snap: Snapshot{Docs: result, ReadTime: readTime}})
}

func (sub *Subscription) enqueue(ev event) {
	sub.mu.Lock()
	sub.queue = append(sub.queue, ev)
	sub.mu.Unlock()
	select {
	case sub.wake <- struct{}{}:
	default:
	}
}

func (sub *Subscription) next() (event, bool) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if len(sub.queue) == 0 {
		return event{}, false
	}
	ev := sub.queue[0]
	sub.queue[0] = event{}
	sub.queue = sub.queue[1:]
	return ev, true
}

func (sub *Subscription) run() {
	defer close(sub.done)
	for {
		select {
		case <-sub.stop:
			return
		case <-sub.wake:
		}
		for {
			ev, ok := sub.next()
			if !ok {
				break
			}
			select {
			case <-sub.stop:
				return
			default:
			}
			sub.fn(ev.snap, ev.err)
		}
	}
}

// digest identifies a query result by document ids and contents. Update
// times alone are not enough: backends may store them at a coarser
// precision than the commit clock.
func digest(docs []Document) string {
	h := sha256.New()
	for _, d := range docs {
		h.Write([]byte(d.ID))
		h.Write([]byte{0})
		raw, err := json.Marshal(d.Data)
		if err != nil {
			raw = []byte(strconv.FormatInt(d.UpdateTime.UnixNano(), 10))
		}
		h.Write(raw)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
