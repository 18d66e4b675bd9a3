package engine

import (
	"context"

	"github.com/go-ble/llcpengine/internal/llcp/llcperr"
	"github.com/go-ble/llcpengine/internal/llcp/pdu"
	"github.com/go-ble/llcpengine/internal/llcp/procedure"
	"github.com/go-ble/llcpengine/internal/llcp/request"
	"github.com/go-ble/llcpengine/internal/logger"
)

// RX feeds one received control PDU into the dispatcher (§4.8 `rx`,
// §4.7). Routing policy, in order:
//
//  1. If the local queue's head is active and its expected opcode
//     matches, deliver as RESPONSE to the local Common FSM.
//  2. Else if the remote queue's head is active and its expected opcode
//     matches, deliver as REQUEST continuation to the remote Common FSM.
//  3. Else this is a new peer-initiated procedure: map the opcode to a
//     kind, allocate a remote context, enqueue it, and deliver as
//     REQUEST.
//
// Unknown opcodes and opcodes that match nothing are a protocol
// violation (§4.7 "the specification does not permit silent discard").
func (c *Conn) RX(data []byte) error {
	opcode, ok := pdu.PeekOpcode(data)
	if !ok {
		return llcperr.ProtocolViolation("rx", "malformed PDU header")
	}

	if pdu.IsErrorOpcode(opcode) {
		return c.deliverPeerError(opcode, data)
	}

	if c.headExpects(c.lr, opcode) {
		_, delivered := c.lr.Deliver(func(ctx *procedure.Context) procedure.Outcome {
			return c.stepLocal(ctx, procedure.EventResponse, data)
		})
		if delivered {
			return nil
		}
	}

	if c.headExpects(c.rr, opcode) {
		_, delivered := c.rr.Deliver(func(ctx *procedure.Context) procedure.Outcome {
			return c.stepRemote(ctx, procedure.EventRequest, data)
		})
		if delivered {
			return nil
		}
	}

	return c.admitRemoteProcedure(opcode, data)
}

// headExpects reports whether fsm's active head context is currently
// waiting on opcode.
func (c *Conn) headExpects(fsm *request.FSM, opcode pdu.Opcode) bool {
	if fsm.State() != request.StateActive {
		return false
	}
	idx, ok := fsm.Front()
	if !ok {
		return false
	}
	return c.engine.contextPool.Get(idx).ExpectedOpcode == opcode
}

// deliverPeerError routes LL_UNKNOWN_RSP / LL_REJECT_IND / LL_REJECT_EXT_IND
// to the active local procedure, which is the only role that can be
// waiting on a peer-error response (§7).
func (c *Conn) deliverPeerError(opcode pdu.Opcode, data []byte) error {
	event := procedure.EventReject
	if opcode == pdu.OpcodeUnknownRsp {
		event = procedure.EventUnknown
	}

	_, ok := c.lr.Deliver(func(ctx *procedure.Context) procedure.Outcome {
		return c.stepLocal(ctx, event, data)
	})
	if !ok {
		return llcperr.ProtocolViolation("rx", "peer-error PDU with no active local procedure")
	}
	return nil
}

// admitRemoteProcedure implements §4.7 step 3.
func (c *Conn) admitRemoteProcedure(opcode pdu.Opcode, data []byte) error {
	kind := procedure.KindForOpcode(opcode)
	if kind == procedure.KindUnimplemented {
		logger.WarnCtx(context.Background(), "unrecognized opcode", logger.Opcode(uint8(opcode)))
		return llcperr.ProtocolViolation("rx", "no procedure recognizes this opcode")
	}

	wasEmpty := c.rr.Empty()
	idx, ok := c.engine.contextPool.Acquire()
	if !ok {
		return llcperr.ResourceExhausted("rx")
	}
	c.engine.contextPool.Get(idx).Reset(kind, procedure.RoleRemote)
	c.rr.Enqueue(idx)

	if !wasEmpty {
		// The RR is already serving another remote procedure; this one
		// waits its turn. It will be admitted and armed (IDLE → WAIT_RX)
		// by a later Run(), but re-delivering this specific PDU at that
		// point is not supported — overlapping remote procedures of
		// different kinds are outside the procedures this engine
		// implements (see DESIGN.md).
		return nil
	}

	c.rr.Run(func(ctx *procedure.Context) procedure.Outcome {
		return c.stepRemote(ctx, procedure.EventRun, nil)
	})
	_, delivered := c.rr.Deliver(func(ctx *procedure.Context) procedure.Outcome {
		return c.stepRemote(ctx, procedure.EventRequest, data)
	})
	if !delivered {
		return llcperr.ProtocolViolation("rx", "failed to arm remote procedure")
	}
	return nil
}
