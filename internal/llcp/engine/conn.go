package engine

import (
	"context"

	"github.com/google/uuid"

	"github.com/go-ble/llcpengine/internal/llcp/llcperr"
	"github.com/go-ble/llcpengine/internal/llcp/pdu"
	"github.com/go-ble/llcpengine/internal/llcp/procedure"
	"github.com/go-ble/llcpengine/internal/llcp/request"
	"github.com/go-ble/llcpengine/internal/logger"
)

// Result is the outcome of a procedure-initiation call (§4.8).
type Result int

const (
	// ResultSuccess: the procedure was queued (or, for an idempotent
	// repeat, will complete from cache on the next RUN).
	ResultSuccess Result = iota
	// ResultCommandDisallowed: the context pool was exhausted (§7
	// "resource exhausted").
	ResultCommandDisallowed
)

// ConnInit performs §4.8's `conn_init`: zeroes connection state, places
// LR and RR in DISCONNECTED, and clears every per-procedure cache.
// handle is an opaque connection identity used only for log correlation;
// if the caller passes an empty string, one is minted with uuid.NewString.
func (e *Engine) ConnInit(handle string, settings procedure.SettingsOracle, localFeatures uint64, tx TXSink, ntf NotifySink) *Conn {
	if handle == "" {
		handle = uuid.NewString()
	}
	c := &Conn{
		engine: e,
		handle: handle,
		lr:     request.New(procedure.RoleLocal, e.contextPool),
		rr:     request.New(procedure.RoleRemote, e.contextPool),
	}
	c.caches.Reset()
	c.env = procedure.Env{
		TXPool:        e.txPool,
		NTFPool:       e.ntfPool,
		TXSink:        tx,
		NTFSink:       ntf,
		Settings:      settings,
		LocalFeatures: localFeatures,
		OnBackpressure: func(pool string) {
			e.metrics.ObserveBackpressure(pool)
		},
	}
	return c
}

// Handle returns the connection's log-correlation identity (§3 "handle").
func (c *Conn) Handle() string {
	return c.handle
}

func (c *Conn) logContext(role procedure.Role, state procedure.State, opcode pdu.Opcode) *logger.LogContext {
	lc := logger.NewLogContext(c.handle)
	lc.Role = "local"
	if role == procedure.RoleRemote {
		lc.Role = "remote"
	}
	lc.State = state.String()
	lc.Opcode = uint8(opcode)
	return lc
}

// Connect drives both LR and RR through CONNECT (§4.8 "connect").
func (c *Conn) Connect() {
	c.lr.Connect()
	c.rr.Connect()
	logger.DebugCtx(context.Background(), "connection established", logger.ConnHandle(c.handle))
}

// Disconnect drives both LR and RR through DISCONNECT, freeing every
// queued and active context (§4.8 "disconnect", §8 property 6).
func (c *Conn) Disconnect() {
	c.lr.Disconnect()
	c.rr.Disconnect()
	c.caches.Reset()
	c.engine.observePools()
	logger.DebugCtx(context.Background(), "connection torn down", logger.ConnHandle(c.handle))
}

// Run drives one tick of both the RR and LR (§4.8 "run").
func (c *Conn) Run() {
	c.rr.Run(func(ctx *procedure.Context) procedure.Outcome {
		return c.stepRemote(ctx, procedure.EventRun, nil)
	})
	c.lr.Run(func(ctx *procedure.Context) procedure.Outcome {
		return c.stepLocal(ctx, procedure.EventRun, nil)
	})
	c.engine.observePools()
}

func (c *Conn) stepLocal(ctx *procedure.Context, event procedure.Event, rx []byte) procedure.Outcome {
	outcome, err := procedure.LocalStep(ctx, &c.caches, &c.env, event, rx)
	c.observeStep(ctx, procedure.RoleLocal, outcome, err)
	return outcome
}

func (c *Conn) stepRemote(ctx *procedure.Context, event procedure.Event, rx []byte) procedure.Outcome {
	outcome, err := procedure.RemoteStep(ctx, &c.caches, &c.env, event, rx)
	c.observeStep(ctx, procedure.RoleRemote, outcome, err)
	return outcome
}

func (c *Conn) observeStep(ctx *procedure.Context, role procedure.Role, outcome procedure.Outcome, err error) {
	lc := c.logContext(role, ctx.State, ctx.ExpectedOpcode)
	lc.Procedure = ctx.Kind.String()
	ctxWithLog := logger.WithContext(context.Background(), lc)

	if err != nil {
		logger.WarnCtx(ctxWithLog, "procedure step error", logger.Err(err))
	} else {
		logger.DebugCtx(ctxWithLog, "procedure step")
	}

	if !outcome.Completed {
		return
	}

	roleName := "local"
	if role == procedure.RoleRemote {
		roleName = "remote"
	}
	if outcome.Taxon == llcperr.TaxonNone {
		c.engine.metrics.ObserveCompleted(ctx.Kind.String(), roleName, "ok")
	} else {
		c.engine.metrics.ObserveFailed(ctx.Kind.String(), roleName, outcome.Taxon.String())
	}
}
