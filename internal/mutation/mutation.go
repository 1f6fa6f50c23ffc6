package mutation

import (
	"context"
	"sync"
)

type Kind string

const (
	KindCreate Kind = "create"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
)

// State of one mutation. Pending moves to exactly one of Committed or
// Failed; both are terminal.
type State int32

const (
	Pending State = iota
	Committed
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Committed:
		return "committed"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Mutation is the handle of one dispatched write.
type Mutation struct {
	ID    string
	Kind  Kind
	Owner string
	Path  string

	mu    sync.Mutex
	state State
	err   error
	done  chan struct{}
}

func newMutation(id string, kind Kind, owner, path string) *Mutation {
	return &Mutation{
		ID:    id,
		Kind:  kind,
		Owner: owner,
		Path:  path,
		done:  make(chan struct{}),
	}
}

func (m *Mutation) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Err is the failure cause once the mutation has failed.
func (m *Mutation) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Done is closed when the mutation leaves Pending.
func (m *Mutation) Done() <-chan struct{} {
	return m.done
}

// Wait blocks until the mutation finishes or ctx ends, and returns the
// mutation's error or ctx's.
func (m *Mutation) Wait(ctx context.Context) error {
	select {
	case <-m.done:
		return m.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Mutation) finish(err error) {
	m.mu.Lock()
	if m.state != Pending {
		m.mu.Unlock()
		return
	}
	if err != nil {
		m.state = Failed
		m.err = err
	} else {
		m.state = Committed
	}
	m.mu.Unlock()
	close(m.done)
}
