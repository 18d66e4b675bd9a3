// Package procedure implements the per-procedure-kind Common FSMs of
// §4.3 (local role) and §4.4 (remote role): the shared state shape —
// IDLE / WAIT_TX / WAIT_RX / WAIT_NTF — instantiated once per supported
// procedure kind, parameterized by that kind's opcode pair and completion
// rule (§9 "tagged variant over procedure kind").
package procedure

import (
	"github.com/go-ble/llcpengine/internal/llcp/llcperr"
	"github.com/go-ble/llcpengine/internal/llcp/pdu"
	"github.com/go-ble/llcpengine/internal/llcp/pool"
)

// Kind tags which standardized control procedure a Context represents
// (§3 "procedure kind (tagged variant)").
type Kind int

const (
	KindUnknown Kind = iota
	KindVersionExchange
	KindFeatureExchange
	// KindUnimplemented is what KindForOpcode returns for every opcode
	// that does not start a procedure this engine drives: the Bluetooth
	// Core procedures it does not model (encryption start, PHY update,
	// connection parameter update, ...) as well as unassigned opcodes.
	// Those opcodes are not listed individually in the pdu opcode table:
	// no original_source/ ground truth survived for their wire layout or
	// completion rules, so inventing one would be unfounded guessing
	// (see DESIGN.md). They surface as a protocol violation rather than
	// being silently dropped (§4.7).
	KindUnimplemented
)

func (k Kind) String() string {
	switch k {
	case KindVersionExchange:
		return "version-exchange"
	case KindFeatureExchange:
		return "feature-exchange"
	case KindUnimplemented:
		return "unimplemented"
	default:
		return "unknown"
	}
}

// Role distinguishes the side of the connection a Context's FSM drives.
type Role int

const (
	RoleLocal Role = iota
	RoleRemote
)

// State is the Common FSM's state, shared by the local and remote roles
// (§4.3, §4.4 both use the four-state shape, with different transition
// tables).
type State int

const (
	StateIdle State = iota
	StateWaitTX
	StateWaitRX
	StateWaitNTF
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateWaitTX:
		return "WAIT_TX"
	case StateWaitRX:
		return "WAIT_RX"
	case StateWaitNTF:
		return "WAIT_NTF"
	default:
		return "?"
	}
}

// Event is a Common FSM input (§4.3, §4.4).
type Event int

const (
	EventRun Event = iota
	EventResponse
	EventRequest
	EventReject
	EventUnknown
	EventCollision
)

// NoOpcode marks a Context with no opcode currently expected — RX
// dispatch (§4.7) never matches it against an incoming PDU.
const NoOpcode pdu.Opcode = 0

// Context is one in-flight or pending procedure (§3 "procedure context").
// It doubles as an intrusive queue node via Next, matching the
// pool-allocated, heap-free list discipline described in §9.
type Context struct {
	Kind           Kind
	Role           Role
	State          State
	ExpectedOpcode pdu.Opcode
	Collision      bool
	Pause          bool

	// Next is the index of the following node in whichever queue this
	// context is linked into, or NoNext at the tail. The active context
	// stays the head of its queue, so Next is live while it is active;
	// it is meaningless only while the context is pooled.
	Next int32
}

// NoNext is the intrusive-queue terminator.
const NoNext int32 = -1

// Reset zeroes ctx to the state a freshly-acquired pool slot starts in.
func (ctx *Context) Reset(kind Kind, role Role) {
	ctx.Kind = kind
	ctx.Role = role
	ctx.State = StateIdle
	ctx.ExpectedOpcode = NoOpcode
	ctx.Collision = false
	ctx.Pause = false
	ctx.Next = NoNext
}

// Outcome reports what a Common FSM step did, for the owning Request FSM
// (§4.5, §4.6) to react to.
type Outcome struct {
	// Completed signals the Request FSM to dequeue and free this context
	// right away, within the same Run or Deliver call (the COMPLETE event
	// of §4.5/§4.6).
	Completed bool
	// Taxon is the error category of a completed procedure, or
	// llcperr.TaxonNone on a clean completion.
	Taxon llcperr.Taxon
}

// SettingsOracle is the external collaborator supplying the values this
// engine encodes into locally-originated PDUs (§6 "Settings oracle").
// The version number itself is a compile-time constant (§6), not part of
// this interface.
type SettingsOracle interface {
	CompanyID() uint16
	SubversionNumber() uint16
}

// Env bundles the per-connection collaborators a Common FSM step needs:
// the process-wide TX and notification pools (§4.1), the sinks that hand
// encoded PDUs off to the lower link layer and the host (§6), and the
// settings oracle. TX and notification buffers are released back to
// their pool immediately after handoff to a sink — the sinks are
// synchronous and non-blocking (§6), so there is no outstanding
// "in flight on the wire" ownership state for this engine to track; the
// pool only bounds how many encodes may be in progress at once, which is
// what the backpressure scenarios (§8 S3, S4) exercise.
type Env struct {
	TXPool  *pool.Pool[pdu.Buffer]
	NTFPool *pool.Pool[pdu.Buffer]

	TXSink  func(data []byte)
	NTFSink func(data []byte)

	Settings SettingsOracle

	// LocalFeatures is this implementation's supported-feature bitmask,
	// analogous to the version number being "a compile-time constant of
	// the implementation" (§6) — feature-exchange has no settings-oracle
	// equivalent in the distilled spec, so it is carried the same way.
	LocalFeatures uint64

	// OnBackpressure, if set, is called each time an FSM step parks in
	// WAIT_TX or WAIT_NTF because its pool was exhausted (§7
	// "backpressure"). Optional; used to drive the engine's
	// backpressure-park metric.
	OnBackpressure func(pool string)
}

// acquireTX obtains a TX buffer, returning (nil, false) under backpressure.
func (e *Env) acquireTX() (*pdu.Buffer, int32, bool) {
	idx, ok := e.TXPool.Acquire()
	if !ok {
		if e.OnBackpressure != nil {
			e.OnBackpressure("tx")
		}
		return nil, 0, false
	}
	return e.TXPool.Get(idx), idx, true
}

func (e *Env) releaseTX(idx int32) {
	e.TXPool.Release(idx)
}

// acquireNTF obtains a notification buffer, returning (nil, false) under
// backpressure.
func (e *Env) acquireNTF() (*pdu.Buffer, int32, bool) {
	idx, ok := e.NTFPool.Acquire()
	if !ok {
		if e.OnBackpressure != nil {
			e.OnBackpressure("notification")
		}
		return nil, 0, false
	}
	return e.NTFPool.Get(idx), idx, true
}

func (e *Env) releaseNTF(idx int32) {
	e.NTFPool.Release(idx)
}
