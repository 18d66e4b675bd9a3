package procedure

import (
	"github.com/go-ble/llcpengine/internal/llcp/llcperr"
	"github.com/go-ble/llcpengine/internal/llcp/pdu"
)

// LocalStep advances ctx's Common FSM one step in RoleLocal, dispatching
// by ctx.Kind to the procedure-specific implementation (§9 "tagged
// variant over procedure kind").
func LocalStep(ctx *Context, caches *Caches, env *Env, event Event, rx []byte) (Outcome, error) {
	switch ctx.Kind {
	case KindVersionExchange:
		return LocalStepVersionExchange(ctx, &caches.VersionExchange, env, event, rx)
	case KindFeatureExchange:
		return LocalStepFeatureExchange(ctx, &caches.FeatureExchange, env, event, rx)
	default:
		return Outcome{Completed: true, Taxon: llcperr.TaxonProtocolViolation},
			llcperr.ProtocolViolation("run", "no local handler for procedure kind "+ctx.Kind.String())
	}
}

// RemoteStep advances ctx's Common FSM one step in RoleRemote.
func RemoteStep(ctx *Context, caches *Caches, env *Env, event Event, rx []byte) (Outcome, error) {
	switch ctx.Kind {
	case KindVersionExchange:
		return RemoteStepVersionExchange(ctx, &caches.VersionExchange, env, event, rx)
	case KindFeatureExchange:
		return RemoteStepFeatureExchange(ctx, &caches.FeatureExchange, env, event, rx)
	default:
		return Outcome{Completed: true, Taxon: llcperr.TaxonProtocolViolation},
			llcperr.ProtocolViolation("rx", "no remote handler for procedure kind "+ctx.Kind.String())
	}
}

// KindForOpcode maps an incoming request opcode to the procedure kind
// that originates it, for the RX dispatcher's "new peer-initiated
// procedure" branch (§4.7 step 3). Response/error opcodes are not
// request-originating and always return KindUnimplemented here — they only
// ever arrive while a matching local context is already waiting for
// them, routed by expected-opcode match before KindForOpcode is reached.
func KindForOpcode(opcode pdu.Opcode) Kind {
	switch opcode {
	case pdu.OpcodeVersionInd:
		return KindVersionExchange
	case pdu.OpcodeFeatureReq:
		return KindFeatureExchange
	default:
		return KindUnimplemented
	}
}
