package handlers

import (
	"io"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"

	"github.com/justsurfingit/jobpilot/internal/docstore"
	"github.com/justsurfingit/jobpilot/internal/livequery"
	"github.com/justsurfingit/jobpilot/internal/models"
	"github.com/justsurfingit/jobpilot/internal/services"
	"github.com/justsurfingit/jobpilot/internal/toast"
)

const (
	keepAliveInterval = 25 * time.Second
	toastBuffer       = 32
)

// StreamHandler pushes live query results and toasts over Server-Sent
// Events.
type StreamHandler struct {
	Source livequery.Source
	Toasts *toast.Bus
}

func NewStreamHandler(src livequery.Source, toasts *toast.Bus) *StreamHandler {
	return &StreamHandler{Source: src, Toasts: toasts}
}

// snapshotEvent is the payload of one "snapshot" event.
type snapshotEvent[T any] struct {
	Data      []T    `json:"data"`
	IsLoading bool   `json:"isLoading"`
	Error     string `json:"error,omitempty"`
	Code      string `json:"code,omitempty"`
}

// latest keeps only the newest binding state; a slow client skips
// intermediate snapshots but always ends on the current one.
type latest[T any] struct {
	mu      sync.Mutex
	state   livequery.State[T]
	version uint64
	changed chan struct{}
}

func newLatest[T any]() *latest[T] {
	return &latest[T]{changed: make(chan struct{}, 1)}
}

func (l *latest[T]) set(st livequery.State[T]) {
	l.mu.Lock()
	l.state = st
	l.version++
	l.mu.Unlock()
	select {
	case l.changed <- struct{}{}:
	default:
	}
}

func (l *latest[T]) get() (livequery.State[T], uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state, l.version
}

// startStream sends the SSE headers right away so clients see the
// connection open before the first event.
func startStream(c *gin.Context) {
	c.Header("Content-Type", sse.ContentType)
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()
}

// streamQuery follows d with a binding for as long as the client stays
// connected and closes the binding when it leaves.
func streamQuery[T any](c *gin.Context, src livequery.Source, d *livequery.Descriptor, decode livequery.DecodeFunc[T]) {
	l := newLatest[T]()
	b := livequery.New(src, decode, l.set)
	defer b.Close()
	b.SetDescriptor(d)

	startStream(c)
	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	var sent uint64
	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case <-keepAlive.C:
			c.Render(-1, sse.Event{Event: "ping", Data: time.Now().Unix()})
			return true
		case <-l.changed:
		}
		st, version := l.get()
		if version == sent {
			return true
		}
		sent = version
		c.Render(-1, sse.Event{
			Id:    strconv.FormatUint(version, 10),
			Event: "snapshot",
			Data:  toEvent(st),
		})
		return true
	})
}

func toEvent[T any](st livequery.State[T]) snapshotEvent[T] {
	ev := snapshotEvent[T]{Data: st.Data, IsLoading: st.IsLoading}
	if ev.Data == nil {
		ev.Data = []T{}
	}
	if st.Err != nil {
		ev.Error = st.Err.Error()
		ev.Code = string(docstore.CodeOf(st.Err))
	}
	return ev
}

// StreamJobs is GET /jobs/stream
func (h *StreamHandler) StreamJobs(c *gin.Context) {
	status, ok := statusParam(c)
	if !ok {
		return
	}
	streamQuery[models.JobApplication](c, h.Source, services.JobsDescriptor(identity(c).UserID, status), services.DecodeJob)
}

// StreamReminders is GET /reminders/stream
func (h *StreamHandler) StreamReminders(c *gin.Context) {
	streamQuery[models.Reminder](c, h.Source, services.RemindersDescriptor(identity(c).UserID), services.DecodeReminder)
}

// StreamToasts is GET /toasts/stream
func (h *StreamHandler) StreamToasts(c *gin.Context) {
	owner := identity(c).UserID
	ch := make(chan toast.Toast, toastBuffer)
	unsubscribe := h.Toasts.Subscribe(owner, func(t toast.Toast) {
		select {
		case ch <- t:
		default:
			log.Printf("⚠️ Dropped toast %s for %s: client is not reading", t.ID, owner)
		}
	})
	defer unsubscribe()

	startStream(c)
	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case <-keepAlive.C:
			c.Render(-1, sse.Event{Event: "ping", Data: time.Now().Unix()})
		case t := <-ch:
			c.Render(-1, sse.Event{Id: t.ID, Event: "toast", Data: t})
		}
		return true
	})
}
