package docstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store is the document database every reader and writer goes through.
// Paths are scoped per user (users/{userId}/...) and every call names the
// acting principal; calls outside the principal's namespace are denied.
//
// Writes are serialized. After each commit the store recomputes the
// result of every subscription on the written collection and queues a
// snapshot for those whose result changed.
type Store struct {
	backend Backend
	now     func() time.Time
	newID   func() string

	mu       sync.Mutex
	last     time.Time
	nextSub  uint64
	watchers map[string]map[uint64]*Subscription
}

type Option func(*Store)

// WithClock overrides the source of commit times.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides document id generation.
func WithIDGenerator(newID func() string) Option {
	return func(s *Store) { s.newID = newID }
}

func New(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend:  backend,
		now:      time.Now,
		newID:    uuid.NewString,
		watchers: make(map[string]map[uint64]*Subscription),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewID returns a fresh document id.
func (s *Store) NewID() string {
	return s.newID()
}

// commitTime returns a timestamp strictly after every earlier one.
// Caller holds s.mu.
func (s *Store) commitTime() time.Time {
	now := s.now().UTC()
	if !now.After(s.last) {
		now = s.last.Add(time.Nanosecond)
	}
	s.last = now
	return now
}

func (s *Store) Get(ctx context.Context, principal, path string) (Document, error) {
	if _, _, err := splitDocPath(path); err != nil {
		return Document{}, err
	}
	if err := authorize(principal, path); err != nil {
		return Document{}, err
	}
	doc, err := s.backend.Get(ctx, path)
	if err != nil {
		return Document{}, wrapBackend(path, err)
	}
	return doc, nil
}

// Query runs q once.
func (s *Store) Query(ctx context.Context, principal string, q Query) (Snapshot, error) {
	c, err := q.compile()
	if err != nil {
		return Snapshot{}, err
	}
	if err := authorize(principal, q.Collection); err != nil {
		return Snapshot{}, err
	}
	docs, err := s.backend.List(ctx, q.Collection)
	if err != nil {
		return Snapshot{}, wrapBackend(q.Collection, err)
	}
	return Snapshot{Docs: c.apply(docs), ReadTime: s.now().UTC()}, nil
}

// Create stores data as a new document with a generated id.
func (s *Store) Create(ctx context.Context, principal, collection string, data map[string]any) (Document, error) {
	if err := checkCollectionPath(collection); err != nil {
		return Document{}, err
	}
	return s.Set(ctx, principal, DocPath(collection, s.NewID()), data)
}

// Set creates the document at path. It fails with CodeAlreadyExists if
// the document is present.
func (s *Store) Set(ctx context.Context, principal, path string, data map[string]any) (Document, error) {
	collection, id, err := splitDocPath(path)
	if err != nil {
		return Document{}, err
	}
	if err := authorize(principal, path); err != nil {
		return Document{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.commitTime()
	fields, err := normalize(data, ts)
	if err != nil {
		return Document{}, &Error{Code: CodeInvalidArgument, Path: path, Message: "invalid data", Cause: err}
	}
	doc := Document{Path: path, ID: id, Data: fields, CreateTime: ts, UpdateTime: ts}
	if err := s.backend.Insert(ctx, doc); err != nil {
		return Document{}, wrapBackend(path, err)
	}
	s.publish(ctx, collection)
	return doc.clone(), nil
}

// Update merges fields into the existing document at path.
func (s *Store) Update(ctx context.Context, principal, path string, fields map[string]any) (Document, error) {
	collection, _, err := splitDocPath(path)
	if err != nil {
		return Document{}, err
	}
	if err := authorize(principal, path); err != nil {
		return Document{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.backend.Get(ctx, path)
	if err != nil {
		return Document{}, wrapBackend(path, err)
	}
	ts := s.commitTime()
	patch, err := normalize(fields, ts)
	if err != nil {
		return Document{}, &Error{Code: CodeInvalidArgument, Path: path, Message: "invalid data", Cause: err}
	}
	if doc.Data == nil {
		doc.Data = make(map[string]any, len(patch))
	}
	for k, v := range patch {
		doc.Data[k] = v
	}
	doc.UpdateTime = ts
	if err := s.backend.Replace(ctx, doc); err != nil {
		return Document{}, wrapBackend(path, err)
	}
	s.publish(ctx, collection)
	return doc.clone(), nil
}

// Delete removes the document at path. Deleting a missing document fails
// with CodeNotFound.
func (s *Store) Delete(ctx context.Context, principal, path string) error {
	collection, _, err := splitDocPath(path)
	if err != nil {
		return err
	}
	if err := authorize(principal, path); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.commitTime()
	if err := s.backend.Remove(ctx, path); err != nil {
		return wrapBackend(path, err)
	}
	s.publish(ctx, collection)
	return nil
}

// Watch subscribes fn to q. fn first receives the current result, then a
// new snapshot after every commit that changes it. A malformed query is
// rejected here; a denied one is reported through fn.
//
// fn runs on the subscription's own goroutine, one call at a time, in
// commit order. It must not call Stop on its own subscription.
func (s *Store) Watch(principal string, q Query, fn SnapshotFunc) (*Subscription, error) {
	c, err := q.compile()
	if err != nil {
		return nil, err
	}
	sub := newSubscription(s, c, fn)
	go sub.run()

	if err := authorize(principal, q.Collection); err != nil {
		sub.enqueue(event{err: err})
		return sub, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSub++
	sub.id = s.nextSub
	if s.watchers[q.Collection] == nil {
		s.watchers[q.Collection] = make(map[uint64]*Subscription)
	}
	s.watchers[q.Collection][sub.id] = sub
	docs, err := s.backend.List(context.Background(), q.Collection)
	sub.offer(docs, s.now().UTC(), wrapBackend(q.Collection, err))
	return sub, nil
}

// Close stops every live subscription.
func (s *Store) Close() {
	s.mu.Lock()
	var subs []*Subscription
	for _, byID := range s.watchers {
		for _, sub := range byID {
			subs = append(subs, sub)
		}
	}
	s.mu.Unlock()
	for _, sub := range subs {
		sub.Stop()
	}
}

func (s *Store) unregister(sub *Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	collection := sub.query.Collection
	delete(s.watchers[collection], sub.id)
	if len(s.watchers[collection]) == 0 {
		delete(s.watchers, collection)
	}
}

// publish fans the new state of collection out to its subscribers.
// Caller holds s.mu.
func (s *Store) publish(ctx context.Context, collection string) {
	subs := s.watchers[collection]
	if len(subs) == 0 {
		return
	}
	docs, err := s.backend.List(context.WithoutCancel(ctx), collection)
	err = wrapBackend(collection, err)
	readTime := s.now().UTC()
	for _, sub := range subs {
		sub.offer(docs, readTime, err)
	}
}
