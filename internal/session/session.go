// internal/session/session.go
package session

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/shark-minister/atlas-bey/internal/protocol"
	"github.com/shark-minister/atlas-bey/internal/resolver"
	"github.com/shark-minister/atlas-bey/internal/transport"
)

// State is a copy of the session as seen by the event loop.
type State struct {
	Device         transport.DeviceHandle `json:"device"`
	DeviceSelected bool                   `json:"deviceSelected"`

	Connected    bool   `json:"connected"`
	ConnectionID string `json:"connectionId,omitempty"`
	Busy         bool   `json:"busy"`

	Generation resolver.Generation `json:"generation"`
	Info       protocol.DeviceInfo `json:"deviceInfo"`

	Parameters    protocol.Parameters `json:"parameters"`
	HasParameters bool                `json:"hasParameters"`

	Statistics    protocol.Statistics `json:"statistics"`
	HasStatistics bool                `json:"hasStatistics"`
	Histogram     protocol.Histogram  `json:"histogram"`
}

// EventKind tags a state transition.
type EventKind uint8

const (
	EventSelected EventKind = iota + 1
	EventConnected
	EventDisconnected
	EventCommitted
)

func (k EventKind) String() string {
	switch k {
	case EventSelected:
		return "selected"
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventCommitted:
		return "committed"
	default:
		return fmt.Sprintf("EventKind(%d)", uint8(k))
	}
}

// MarshalText renders the kind by name.
func (k EventKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Event is delivered to observers after the loop applied a transition.
type Event struct {
	Kind  EventKind `json:"kind"`
	Op    string    `json:"op,omitempty"`
	State State     `json:"state"`
}

// Observer receives applied events in order on its own goroutine.
// A slow observer never stalls the session; once its queue is full further
// events are dropped for it.
type Observer func(Event)

// observerQueueLen bounds the events buffered per observer.
const observerQueueLen = 64

type observerQueue struct {
	fn Observer
	ch chan Event
}

func (q *observerQueue) run() {
	for ev := range q.ch {
		q.fn(ev)
	}
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Session) { s.log = l }
}

// WithObserver adds an observer.
func WithObserver(o Observer) Option {
	return func(s *Session) { s.observers = append(s.observers, o) }
}

// WithDecodeMode selects where Parameters byte 5 is decoded to.
func WithDecodeMode(m protocol.DecodeMode) Option {
	return func(s *Session) { s.mode = m }
}

// ---- loop events ----

type event struct {
	kind  EventKind
	op    string
	epoch uint64

	conn   transport.Conn
	handle transport.DeviceHandle
	apply  func(*State)

	// receives the epoch the event was applied under, or 0 if dropped
	reply chan uint64
}

// Session drives one device link.
//
// Every state change goes through a single event loop goroutine; operations
// hold the Guard while they talk to the transport and post their results to
// the loop as commits.
type Session struct {
	tr  transport.Transport
	log zerolog.Logger

	mode      protocol.DecodeMode
	observers []Observer
	queues    []*observerQueue

	guard Guard

	events chan event
	quit   chan struct{}
	done   chan struct{}
	once   sync.Once

	// written only by the loop
	mu    sync.RWMutex
	st    State
	conn  transport.Conn
	epoch uint64
}

// New starts a session on tr. Call Close to stop its loop.
func New(tr transport.Transport, opts ...Option) *Session {
	s := &Session{
		tr:     tr,
		log:    zerolog.Nop(),
		mode:   protocol.DecodeCorrected,
		events: make(chan event),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.st = resetState(State{})

	for _, o := range s.observers {
		q := &observerQueue{fn: o, ch: make(chan Event, observerQueueLen)}
		s.queues = append(s.queues, q)
		go q.run()
	}

	go s.loop()
	return s
}

// Close stops the event loop. It does not disconnect the device.
func (s *Session) Close() {
	s.once.Do(func() { close(s.quit) })
	<-s.done
}

// State returns a copy of the current session state.
func (s *Session) State() State {
	s.mu.RLock()
	st := s.st
	s.mu.RUnlock()

	st.Busy = s.guard.Held()
	st.Histogram = protocol.Histogram{
		Labels: slices.Clone(st.Histogram.Labels),
		Counts: slices.Clone(st.Histogram.Counts),
	}
	return st
}

// DecodeMode returns the configured Parameters decode mode.
func (s *Session) DecodeMode() protocol.DecodeMode { return s.mode }

func resetState(prev State) State {
	return State{
		Device:         prev.Device,
		DeviceSelected: prev.DeviceSelected,
		Generation:     resolver.Unidentified,
		Info:           protocol.DefaultDeviceInfo(),
		Parameters:     protocol.DefaultParameters(),
	}
}

func (s *Session) loop() {
	defer close(s.done)
	defer func() {
		for _, q := range s.queues {
			close(q.ch)
		}
	}()

	for {
		select {
		case <-s.quit:
			return
		case ev := <-s.events:
			s.handle(ev)
		}
	}
}

func (s *Session) handle(ev event) {
	var applied uint64

	s.mu.Lock()
	switch ev.kind {
	case EventSelected:
		s.st.Device = ev.handle
		s.st.DeviceSelected = true
		applied = s.epoch

	case EventConnected:
		s.epoch++
		s.conn = ev.conn
		s.st = resetState(s.st)
		s.st.Connected = true
		s.st.ConnectionID = uuid.NewString()
		applied = s.epoch

	case EventDisconnected:
		if s.st.Connected && ev.epoch == s.epoch {
			s.conn = nil
			s.st = resetState(s.st)
			applied = s.epoch
		}

	case EventCommitted:
		if s.st.Connected && ev.epoch == s.epoch {
			ev.apply(&s.st)
			applied = s.epoch
		}
	}
	st := s.st
	s.mu.Unlock()

	if ev.reply != nil {
		ev.reply <- applied
	}

	if applied == 0 && ev.kind != EventSelected {
		s.log.Debug().
			Str("event", ev.kind.String()).
			Str("op", ev.op).
			Uint64("epoch", ev.epoch).
			Msg("stale event dropped")
		return
	}

	st.Busy = s.guard.Held()
	for i, q := range s.queues {
		select {
		case q.ch <- Event{Kind: ev.kind, Op: ev.op, State: st}:
		default:
			s.log.Warn().
				Int("observer", i).
				Str("event", ev.kind.String()).
				Msg("observer queue full, event dropped")
		}
	}
}

// post hands ev to the loop and waits for the applied epoch.
// The reply channel is buffered, so giving up on ctx never blocks the loop.
func (s *Session) post(ctx context.Context, ev event) (uint64, error) {
	ev.reply = make(chan uint64, 1)

	select {
	case s.events <- ev:
	case <-s.quit:
		return 0, ErrClosed
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	select {
	case applied := <-ev.reply:
		return applied, nil
	case <-s.quit:
		return 0, ErrClosed
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// notify posts without waiting; used from transport callbacks.
func (s *Session) notify(ev event) {
	select {
	case s.events <- ev:
	case <-s.quit:
	}
}

// link returns the active connection, its epoch and generation.
func (s *Session) link() (transport.Conn, uint64, resolver.Generation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.st.Connected || s.conn == nil {
		return nil, 0, resolver.Unidentified, false
	}
	return s.conn, s.epoch, s.st.Generation, true
}

func (s *Session) closed() bool {
	select {
	case <-s.quit:
		return true
	default:
		return false
	}
}
