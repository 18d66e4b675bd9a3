// Package request implements the Local and Remote Request FSMs of §4.5
// and §4.6: a FIFO queue of pending procedure contexts per side, with at
// most one admitted ("active") at a time. Both sides share the same
// state shape and event set, distinguished only by how contexts are
// produced — locally via an initiation API, remotely via the RX
// dispatcher (§4.7) — so a single FSM type serves both roles.
package request

import (
	"github.com/go-ble/llcpengine/internal/llcp/pool"
	"github.com/go-ble/llcpengine/internal/llcp/procedure"
)

// State is a Request FSM state (§4.5, §4.6).
type State int

const (
	StateDisconnected State = iota
	StateIdle
	StateActive
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateIdle:
		return "IDLE"
	case StateActive:
		return "ACTIVE"
	default:
		return "?"
	}
}

// FSM is a Local or Remote Request FSM: a FIFO queue of procedure
// contexts threaded through the shared context pool via Context.Next
// (§9 "intrusive queues"), plus the admission state machine that
// serializes them one at a time.
type FSM struct {
	Role procedure.Role
	Pool *pool.Pool[procedure.Context]

	state State
	head  int32
	tail  int32
}

// New builds an FSM over ctxPool, starting DISCONNECTED with an empty
// queue.
func New(role procedure.Role, ctxPool *pool.Pool[procedure.Context]) *FSM {
	return &FSM{
		Role:  role,
		Pool:  ctxPool,
		state: StateDisconnected,
		head:  procedure.NoNext,
		tail:  procedure.NoNext,
	}
}

// State returns the FSM's current state.
func (f *FSM) State() State {
	return f.state
}

// Empty reports whether the pending queue holds no contexts.
func (f *FSM) Empty() bool {
	return f.head == procedure.NoNext
}

// Front returns the index of the head-of-queue context (the active one,
// once admitted), or (0, false) if the queue is empty.
func (f *FSM) Front() (int32, bool) {
	if f.head == procedure.NoNext {
		return 0, false
	}
	return f.head, true
}

// Enqueue appends idx, a context already acquired from Pool, to the tail
// of the queue.
func (f *FSM) Enqueue(idx int32) {
	f.Pool.Get(idx).Next = procedure.NoNext
	if f.tail == procedure.NoNext {
		f.head = idx
		f.tail = idx
		return
	}
	f.Pool.Get(f.tail).Next = idx
	f.tail = idx
}

func (f *FSM) popFront() (int32, bool) {
	if f.head == procedure.NoNext {
		return 0, false
	}
	idx := f.head
	f.head = f.Pool.Get(idx).Next
	if f.head == procedure.NoNext {
		f.tail = procedure.NoNext
	}
	return idx, true
}

// Connect drives the CONNECT event (§4.5, §4.6): DISCONNECTED → IDLE.
func (f *FSM) Connect() {
	f.state = StateIdle
}

// Disconnect drives the DISCONNECT event: drains the pending queue,
// freeing every context back to the pool, and transitions to
// DISCONNECTED regardless of the prior state (§8 property 6: idempotent
// when already disconnected — draining an empty queue is a no-op).
func (f *FSM) Disconnect() {
	for {
		idx, ok := f.popFront()
		if !ok {
			break
		}
		f.Pool.Release(idx)
	}
	f.state = StateDisconnected
}

// Step is the Common FSM advance callback Run invokes against the
// active context.
type Step func(ctx *procedure.Context) procedure.Outcome

// Run drives one RUN tick (§4.5 "IDLE on RUN", "WAIT_TX on RUN" etc.,
// realized one level up). If the queue is non-empty, the head context is
// admitted (or re-admitted) as ACTIVE and stepped once; a Completed
// outcome dequeues and frees it, returning the FSM to IDLE so the next
// RUN admits whatever is now at the head.
func (f *FSM) Run(step Step) {
	if f.state == StateDisconnected {
		return
	}

	idx, ok := f.Front()
	if !ok {
		f.state = StateIdle
		return
	}

	f.state = StateActive
	outcome := step(f.Pool.Get(idx))
	if outcome.Completed {
		if idx, ok := f.popFront(); ok {
			f.Pool.Release(idx)
		}
		f.state = StateIdle
	}
}

// Deliver feeds a non-RUN event (RESPONSE, REQUEST, REJECT, UNKNOWN,
// COLLISION) to the active context without waiting for the next RUN tick
// — used by the RX dispatcher (§4.7) to deliver an incoming PDU
// immediately. Returns false if there is no active context to deliver
// to.
func (f *FSM) Deliver(step Step) (procedure.Outcome, bool) {
	idx, ok := f.Front()
	if !ok || f.state != StateActive {
		return procedure.Outcome{}, false
	}

	outcome := step(f.Pool.Get(idx))
	if outcome.Completed {
		if idx, ok := f.popFront(); ok {
			f.Pool.Release(idx)
		}
		f.state = StateIdle
	}
	return outcome, true
}
