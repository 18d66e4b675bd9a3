// Package engine implements the public API of §4.8: process-wide
// initialization of the three pools, per-connection lifecycle, the RUN
// tick, RX delivery, and the per-procedure initiation entry points. It
// is the glue between the pool, pdu, procedure, and request packages.
package engine

import (
	"log/slog"

	"github.com/go-ble/llcpengine/internal/llcp/pdu"
	"github.com/go-ble/llcpengine/internal/llcp/pool"
	"github.com/go-ble/llcpengine/internal/llcp/procedure"
	"github.com/go-ble/llcpengine/internal/llcp/request"
	"github.com/go-ble/llcpengine/internal/metrics"
)

// PoolConfig sizes the three process-wide pools (§4.1, §6 "Configuration").
type PoolConfig struct {
	ContextCapacity      int
	TXCapacity           int
	NotificationCapacity int
}

// Engine owns the three pools shared by every connection (§3 "Pools",
// §5 "the three pools are process-wide"). It is initialized once at
// startup and never torn down (§9 "Global pools").
type Engine struct {
	contextPool *pool.Pool[procedure.Context]
	txPool      *pool.Pool[pdu.Buffer]
	ntfPool     *pool.Pool[pdu.Buffer]

	metrics *metrics.EngineMetrics
	log     *slog.Logger
}

// Init performs the one-shot process-wide initialization of §4.8's
// `init()`: allocating the three fixed-capacity pools.
func Init(cfg PoolConfig, m *metrics.EngineMetrics, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	e := &Engine{
		contextPool: pool.New[procedure.Context]("context", cfg.ContextCapacity),
		txPool:      pool.New[pdu.Buffer]("tx", cfg.TXCapacity),
		ntfPool:     pool.New[pdu.Buffer]("notification", cfg.NotificationCapacity),
		metrics:     m,
		log:         log,
	}
	e.observePools()
	e.log.Info("engine initialized",
		slog.Int("context_capacity", cfg.ContextCapacity),
		slog.Int("tx_capacity", cfg.TXCapacity),
		slog.Int("notification_capacity", cfg.NotificationCapacity),
	)
	return e
}

func (e *Engine) observePools() {
	e.metrics.ObservePoolFree("context", e.contextPool.Free())
	e.metrics.ObservePoolFree("tx", e.txPool.Free())
	e.metrics.ObservePoolFree("notification", e.ntfPool.Free())
}

// TXSink hands a fully-encoded control PDU to the lower link layer
// (§6 "TX sink"). Synchronous, non-blocking.
type TXSink func(data []byte)

// NotifySink delivers a host-bound notification (§6 "Notification sink").
type NotifySink func(data []byte)

// Conn is the per-connection control block (§3 "Connection control
// block"). Everything here is owned exclusively by one execution
// context (§5) — the engine performs no internal locking.
type Conn struct {
	engine *Engine
	handle string

	lr *request.FSM
	rr *request.FSM

	caches procedure.Caches
	env    procedure.Env

	log *slog.Logger
}
