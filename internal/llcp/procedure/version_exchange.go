package procedure

import (
	"github.com/go-ble/llcpengine/internal/llcp/llcperr"
	"github.com/go-ble/llcpengine/internal/llcp/pdu"
)

// LocalVersionNumber is this implementation's version_number, "a
// compile-time constant of the implementation" (§6).
const LocalVersionNumber uint8 = 0x09

// LocalStepVersionExchange drives one Common FSM step for a
// version-exchange Context in RoleLocal (§4.3).
func LocalStepVersionExchange(ctx *Context, cache *VersionExchangeCache, env *Env, event Event, rx []byte) (Outcome, error) {
	if outcome, err, handled := rejectOrUnknown(event); handled {
		return outcome, err
	}

	switch ctx.State {
	case StateIdle:
		if event != EventRun {
			return Outcome{}, nil
		}
		if ctx.Pause {
			ctx.State = StateWaitTX
			return Outcome{}, nil
		}
		if cache.Sent && cache.Valid {
			// §8 S5: already completed on this connection — notify from
			// cache without re-transmitting (§4.3 "already completed"
			// predicate).
			return attemptNotifyVersionExchange(cache, env, ctx)
		}
		return attemptSendVersionInd(ctx, cache, env)

	case StateWaitTX:
		if event != EventRun {
			return Outcome{}, nil
		}
		if cache.Sent && cache.Valid {
			return attemptNotifyVersionExchange(cache, env, ctx)
		}
		return attemptSendVersionInd(ctx, cache, env)

	case StateWaitRX:
		switch event {
		case EventResponse:
			payload, ok := pdu.DecodeVersionInd(rx)
			if !ok {
				return Outcome{Completed: true, Taxon: llcperr.TaxonProtocolViolation},
					llcperr.ProtocolViolation("version_exchange", "malformed LL_VERSION_IND response")
			}
			cache.Valid = true
			cache.Version = payload.Version
			cache.CompanyID = payload.CompanyID
			cache.SubVersion = payload.SubVersion
			return attemptNotifyVersionExchange(cache, env, ctx)
		case EventCollision:
			// The remote side already ran the same exchange; inherit its
			// result (already reflected in the shared cache) and complete
			// without a separate notification (§4.3 "WAIT_RX on COLLISION").
			return Outcome{Completed: true, Taxon: llcperr.TaxonNone}, nil
		default:
			return Outcome{}, nil
		}

	case StateWaitNTF:
		if event != EventRun {
			return Outcome{}, nil
		}
		return attemptNotifyVersionExchange(cache, env, ctx)
	}

	return Outcome{}, nil
}

func attemptSendVersionInd(ctx *Context, cache *VersionExchangeCache, env *Env) (Outcome, error) {
	buf, idx, ok := env.acquireTX()
	if !ok {
		ctx.State = StateWaitTX
		return Outcome{}, nil
	}

	pdu.EncodeVersionInd(buf, pdu.VersionExchangePayload{
		Version:    LocalVersionNumber,
		CompanyID:  env.Settings.CompanyID(),
		SubVersion: env.Settings.SubversionNumber(),
	})
	env.TXSink(buf.Bytes())
	env.releaseTX(idx)

	cache.Sent = true
	ctx.ExpectedOpcode = pdu.OpcodeVersionInd
	ctx.State = StateWaitRX
	return Outcome{}, nil
}

func attemptNotifyVersionExchange(cache *VersionExchangeCache, env *Env, ctx *Context) (Outcome, error) {
	buf, idx, ok := env.acquireNTF()
	if !ok {
		ctx.State = StateWaitNTF
		return Outcome{}, nil
	}

	pdu.EncodeVersionInd(buf, pdu.VersionExchangePayload{
		Version:    cache.Version,
		CompanyID:  cache.CompanyID,
		SubVersion: cache.SubVersion,
	})
	env.NTFSink(buf.Bytes())
	env.releaseNTF(idx)

	ctx.State = StateIdle
	return Outcome{Completed: true, Taxon: llcperr.TaxonNone}, nil
}

// RemoteStepVersionExchange drives one Common FSM step for a
// version-exchange Context in RoleRemote (§4.4).
func RemoteStepVersionExchange(ctx *Context, cache *VersionExchangeCache, env *Env, event Event, rx []byte) (Outcome, error) {
	switch ctx.State {
	case StateIdle:
		if event != EventRun {
			return Outcome{}, nil
		}
		ctx.State = StateWaitRX
		return Outcome{}, nil

	case StateWaitRX:
		if event != EventRequest {
			return Outcome{}, nil
		}
		payload, ok := pdu.DecodeVersionInd(rx)
		if !ok {
			return Outcome{Completed: true, Taxon: llcperr.TaxonProtocolViolation},
				llcperr.ProtocolViolation("version_exchange", "malformed LL_VERSION_IND request")
		}
		cache.Valid = true
		cache.Version = payload.Version
		cache.CompanyID = payload.CompanyID
		cache.SubVersion = payload.SubVersion

		if ctx.Pause {
			ctx.State = StateWaitTX
			return Outcome{}, nil
		}
		return attemptRespondVersionExchange(ctx, cache, env)

	case StateWaitTX:
		if event != EventRun {
			return Outcome{}, nil
		}
		return attemptRespondVersionExchange(ctx, cache, env)

	case StateWaitNTF:
		// Version exchange never parks here in the remote role; treat as
		// a stray wakeup by completing cleanly.
		return Outcome{Completed: true, Taxon: llcperr.TaxonNone}, nil
	}

	return Outcome{}, nil
}

func attemptRespondVersionExchange(ctx *Context, cache *VersionExchangeCache, env *Env) (Outcome, error) {
	if cache.Sent {
		return Outcome{Completed: true, Taxon: llcperr.TaxonProtocolViolation},
			llcperr.ProtocolViolation("version_exchange", "duplicate LL_VERSION_IND on this connection")
	}

	buf, idx, ok := env.acquireTX()
	if !ok {
		ctx.State = StateWaitTX
		return Outcome{}, nil
	}

	pdu.EncodeVersionInd(buf, pdu.VersionExchangePayload{
		Version:    LocalVersionNumber,
		CompanyID:  env.Settings.CompanyID(),
		SubVersion: env.Settings.SubversionNumber(),
	})
	env.TXSink(buf.Bytes())
	env.releaseTX(idx)

	cache.Sent = true
	ctx.State = StateIdle
	return Outcome{Completed: true, Taxon: llcperr.TaxonNone}, nil
}

// rejectOrUnknown implements "any state on REJECT/UNKNOWN" (§4.3): both
// events convert the procedure straight to a completed outcome carrying
// the matching error taxon.
func rejectOrUnknown(event Event) (Outcome, error, bool) {
	switch event {
	case EventReject:
		return Outcome{Completed: true, Taxon: llcperr.TaxonPeerRejection},
			llcperr.PeerRejection("version_exchange"), true
	case EventUnknown:
		return Outcome{Completed: true, Taxon: llcperr.TaxonPeerUnknownResponse},
			llcperr.PeerUnknownResponse("version_exchange"), true
	default:
		return Outcome{}, nil, false
	}
}
