package procedure

import (
	"github.com/go-ble/llcpengine/internal/llcp/llcperr"
	"github.com/go-ble/llcpengine/internal/llcp/pdu"
)

// LocalStepFeatureExchange drives one Common FSM step for a
// feature-exchange Context in RoleLocal, instantiating the same shape as
// version-exchange (§4.3) with LL_FEATURE_REQ/LL_FEATURE_RSP in place of
// the symmetric LL_VERSION_IND opcode.
func LocalStepFeatureExchange(ctx *Context, cache *FeatureExchangeCache, env *Env, event Event, rx []byte) (Outcome, error) {
	if outcome, err, handled := rejectOrUnknownFeature(event); handled {
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
			return attemptNotifyFeatureExchange(ctx, cache, env)
		}
		return attemptSendFeatureReq(ctx, cache, env)

	case StateWaitTX:
		if event != EventRun {
			return Outcome{}, nil
		}
		return attemptSendFeatureReq(ctx, cache, env)

	case StateWaitRX:
		switch event {
		case EventResponse:
			opcode, payload, ok := pdu.DecodeFeaturePDU(rx)
			if !ok || opcode != pdu.OpcodeFeatureRsp {
				return Outcome{Completed: true, Taxon: llcperr.TaxonProtocolViolation},
					llcperr.ProtocolViolation("feature_exchange", "malformed LL_FEATURE_RSP")
			}
			cache.Valid = true
			cache.Peer = payload.Features
			return attemptNotifyFeatureExchange(ctx, cache, env)
		case EventCollision:
			return Outcome{Completed: true, Taxon: llcperr.TaxonNone}, nil
		default:
			return Outcome{}, nil
		}

	case StateWaitNTF:
		if event != EventRun {
			return Outcome{}, nil
		}
		return attemptNotifyFeatureExchange(ctx, cache, env)
	}

	return Outcome{}, nil
}

func attemptSendFeatureReq(ctx *Context, cache *FeatureExchangeCache, env *Env) (Outcome, error) {
	buf, idx, ok := env.acquireTX()
	if !ok {
		ctx.State = StateWaitTX
		return Outcome{}, nil
	}

	pdu.EncodeFeatureReq(buf, pdu.FeatureExchangePayload{Features: env.LocalFeatures})
	env.TXSink(buf.Bytes())
	env.releaseTX(idx)

	cache.Sent = true
	cache.Local = env.LocalFeatures
	ctx.ExpectedOpcode = pdu.OpcodeFeatureRsp
	ctx.State = StateWaitRX
	return Outcome{}, nil
}

func attemptNotifyFeatureExchange(ctx *Context, cache *FeatureExchangeCache, env *Env) (Outcome, error) {
	buf, idx, ok := env.acquireNTF()
	if !ok {
		ctx.State = StateWaitNTF
		return Outcome{}, nil
	}

	pdu.EncodeFeatureRsp(buf, pdu.FeatureExchangePayload{Features: cache.Peer})
	env.NTFSink(buf.Bytes())
	env.releaseNTF(idx)

	ctx.State = StateIdle
	return Outcome{Completed: true, Taxon: llcperr.TaxonNone}, nil
}

// RemoteStepFeatureExchange drives one Common FSM step for a
// feature-exchange Context in RoleRemote (§4.4). Unlike version
// exchange, feature exchange's remote role also notifies the host with
// the peer's feature set, exercising the WAIT_NTF retry path the design
// notes call out as applicable to "some remote procedures" (§4.4).
func RemoteStepFeatureExchange(ctx *Context, cache *FeatureExchangeCache, env *Env, event Event, rx []byte) (Outcome, error) {
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
		opcode, payload, ok := pdu.DecodeFeaturePDU(rx)
		if !ok || opcode != pdu.OpcodeFeatureReq {
			return Outcome{Completed: true, Taxon: llcperr.TaxonProtocolViolation},
				llcperr.ProtocolViolation("feature_exchange", "malformed LL_FEATURE_REQ")
		}
		cache.Valid = true
		cache.Peer = payload.Features

		if ctx.Pause {
			ctx.State = StateWaitTX
			return Outcome{}, nil
		}
		return attemptRespondFeatureExchange(ctx, cache, env)

	case StateWaitTX:
		if event != EventRun {
			return Outcome{}, nil
		}
		return attemptRespondFeatureExchange(ctx, cache, env)

	case StateWaitNTF:
		if event != EventRun {
			return Outcome{}, nil
		}
		return attemptNotifyRemoteFeatureExchange(ctx, cache, env)
	}

	return Outcome{}, nil
}

func attemptRespondFeatureExchange(ctx *Context, cache *FeatureExchangeCache, env *Env) (Outcome, error) {
	buf, idx, ok := env.acquireTX()
	if !ok {
		ctx.State = StateWaitTX
		return Outcome{}, nil
	}

	pdu.EncodeFeatureRsp(buf, pdu.FeatureExchangePayload{Features: env.LocalFeatures})
	env.TXSink(buf.Bytes())
	env.releaseTX(idx)

	cache.Sent = true
	cache.Local = env.LocalFeatures
	return attemptNotifyRemoteFeatureExchange(ctx, cache, env)
}

func attemptNotifyRemoteFeatureExchange(ctx *Context, cache *FeatureExchangeCache, env *Env) (Outcome, error) {
	buf, idx, ok := env.acquireNTF()
	if !ok {
		ctx.State = StateWaitNTF
		return Outcome{}, nil
	}

	pdu.EncodeFeatureReq(buf, pdu.FeatureExchangePayload{Features: cache.Peer})
	env.NTFSink(buf.Bytes())
	env.releaseNTF(idx)

	ctx.State = StateIdle
	return Outcome{Completed: true, Taxon: llcperr.TaxonNone}, nil
}

func rejectOrUnknownFeature(event Event) (Outcome, error, bool) {
	switch event {
	case EventReject:
		return Outcome{Completed: true, Taxon: llcperr.TaxonPeerRejection},
			llcperr.PeerRejection("feature_exchange"), true
	case EventUnknown:
		return Outcome{Completed: true, Taxon: llcperr.TaxonPeerUnknownResponse},
			llcperr.PeerUnknownResponse("feature_exchange"), true
	default:
		return Outcome{}, nil, false
	}
}
