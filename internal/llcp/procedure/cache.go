package procedure

// VersionExchangeCache holds the per-connection state for the
// version-exchange procedure (§3 "version-exchange cache"). Valid and
// Sent are tracked separately: Valid means the peer's triple has been
// received and cached; Sent means this side has transmitted its own
// LL_VERSION_IND, after which §8 property 3 forbids transmitting another
// regardless of which role (local or remote) drives the next attempt.
type VersionExchangeCache struct {
	Valid bool
	Sent  bool

	Version    uint8
	CompanyID  uint16
	SubVersion uint16
}

// FeatureExchangeCache holds the per-connection state for the
// feature-exchange procedure, mirroring VersionExchangeCache's shape.
type FeatureExchangeCache struct {
	Valid bool
	Sent  bool

	Local uint64
	Peer  uint64
}

// Caches bundles one cache per supported procedure kind. A connection
// owns exactly one Caches value; which field a Common FSM step reads or
// writes is selected by the Context's Kind.
type Caches struct {
	VersionExchange VersionExchangeCache
	FeatureExchange FeatureExchangeCache
}

// Reset clears every cache to its zero value, as required on conn_init
// and disconnect (§4.8 "clear all per-procedure caches").
func (c *Caches) Reset() {
	*c = Caches{}
}
