package engine

import "github.com/go-ble/llcpengine/internal/llcp/procedure"

// VersionExchange is the `version_exchange(conn)` initiator of §4.8:
// allocates a local context for the version-exchange procedure and
// enqueues it on the local pending queue. Returns ResultCommandDisallowed
// if the context pool has no free slot (§7 "resource exhausted").
func (c *Conn) VersionExchange() Result {
	return c.initiateLocal(procedure.KindVersionExchange)
}

// FeatureExchange is the `feature_exchange(conn)` initiator, symmetric to
// VersionExchange.
func (c *Conn) FeatureExchange() Result {
	return c.initiateLocal(procedure.KindFeatureExchange)
}

func (c *Conn) initiateLocal(kind procedure.Kind) Result {
	idx, ok := c.engine.contextPool.Acquire()
	if !ok {
		return ResultCommandDisallowed
	}
	c.engine.contextPool.Get(idx).Reset(kind, procedure.RoleLocal)
	c.lr.Enqueue(idx)
	return ResultSuccess
}
