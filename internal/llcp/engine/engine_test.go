package engine

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-ble/llcpengine/internal/llcp/pdu"
	"github.com/go-ble/llcpengine/internal/metrics"
)

type testSettings struct {
	companyID  uint16
	subversion uint16
}

func (s testSettings) CompanyID() uint16         { return s.companyID }
func (s testSettings) SubversionNumber() uint16 { return s.subversion }

// testHarness wires a Conn to in-memory TX/notification sinks so
// scenarios can assert on exactly what was transmitted or notified.
type testHarness struct {
	tx  [][]byte
	ntf [][]byte
}

func newConn(t *testing.T, poolCfg PoolConfig) (*Conn, *testHarness) {
	t.Helper()
	e := Init(poolCfg, metrics.NewEngineMetrics(), nil)
	h := &testHarness{}
	conn := e.ConnInit("conn-0", testSettings{companyID: 0x005D, subversion: 0x0001}, 0, func(data []byte) {
		cp := append([]byte(nil), data...)
		h.tx = append(h.tx, cp)
	}, func(data []byte) {
		cp := append([]byte(nil), data...)
		h.ntf = append(h.ntf, cp)
	})
	conn.Connect()
	return conn, h
}

func peerVersionInd(ver uint8, company, subver uint16) []byte {
	var buf pdu.Buffer
	pdu.EncodeVersionInd(&buf, pdu.VersionExchangePayload{Version: ver, CompanyID: company, SubVersion: subver})
	return buf.Bytes()
}

// S1 — local version exchange, happy path.
func TestS1_LocalVersionExchangeHappyPath(t *testing.T) {
	conn, h := newConn(t, PoolConfig{ContextCapacity: 1, TXCapacity: 1, NotificationCapacity: 1})

	require.Equal(t, ResultSuccess, conn.VersionExchange())
	conn.Run()

	require.Len(t, h.tx, 1)
	assert.Equal(t, []byte{0x03, 0x05, 0x0C, 0x09, 0x5D, 0x00, 0x01, 0x00}, h.tx[0])

	require.NoError(t, conn.RX(peerVersionInd(0x0A, 0x00F0, 0x0042)))

	require.Len(t, h.ntf, 1)
	got, ok := pdu.DecodeVersionInd(h.ntf[0])
	require.True(t, ok)
	assert.Equal(t, uint8(0x0A), got.Version)
	assert.Equal(t, uint16(0x00F0), got.CompanyID)
	assert.Equal(t, uint16(0x0042), got.SubVersion)

	assert.Equal(t, 1, conn.engine.contextPool.Free())
}

// S2 — remote version exchange.
func TestS2_RemoteVersionExchange(t *testing.T) {
	conn, h := newConn(t, PoolConfig{ContextCapacity: 1, TXCapacity: 1, NotificationCapacity: 1})

	require.NoError(t, conn.RX(peerVersionInd(0x0A, 0x00F0, 0x0042)))

	require.Len(t, h.tx, 1)
	got, ok := pdu.DecodeVersionInd(h.tx[0])
	require.True(t, ok)
	assert.Equal(t, uint16(0x005D), got.CompanyID)
	assert.Equal(t, uint16(0x0001), got.SubVersion)
	assert.Empty(t, h.ntf)
}

// S3 — TX backpressure.
func TestS3_TXBackpressure(t *testing.T) {
	conn, h := newConn(t, PoolConfig{ContextCapacity: 1, TXCapacity: 1, NotificationCapacity: 1})
	txIdx, ok := conn.engine.txPool.Acquire()
	require.True(t, ok)

	require.Equal(t, ResultSuccess, conn.VersionExchange())
	conn.Run()

	assert.Empty(t, h.tx)

	conn.engine.txPool.Release(txIdx)
	conn.Run()

	require.Len(t, h.tx, 1)
}

// S4 — notification backpressure.
func TestS4_NotificationBackpressure(t *testing.T) {
	conn, h := newConn(t, PoolConfig{ContextCapacity: 1, TXCapacity: 1, NotificationCapacity: 1})

	require.Equal(t, ResultSuccess, conn.VersionExchange())
	conn.Run()
	require.Len(t, h.tx, 1)

	ntfIdx, ok := conn.engine.ntfPool.Acquire()
	require.True(t, ok)

	require.NoError(t, conn.RX(peerVersionInd(0x0A, 0x00F0, 0x0042)))
	assert.Empty(t, h.ntf)

	conn.engine.ntfPool.Release(ntfIdx)
	conn.Run()
	require.Len(t, h.ntf, 1)
}

// S5 — second local initiation after completion.
func TestS5_SecondInitiationAfterCompletion(t *testing.T) {
	conn, h := newConn(t, PoolConfig{ContextCapacity: 1, TXCapacity: 1, NotificationCapacity: 1})

	require.Equal(t, ResultSuccess, conn.VersionExchange())
	conn.Run()
	require.NoError(t, conn.RX(peerVersionInd(0x0A, 0x00F0, 0x0042)))
	require.Len(t, h.tx, 1)
	require.Len(t, h.ntf, 1)

	require.Equal(t, ResultSuccess, conn.VersionExchange())
	conn.Run()

	assert.Len(t, h.tx, 1, "no second wire transmission")
	require.Len(t, h.ntf, 2)
	got, ok := pdu.DecodeVersionInd(h.ntf[1])
	require.True(t, ok)
	assert.Equal(t, uint8(0x0A), got.Version)
	assert.Equal(t, uint16(0x00F0), got.CompanyID)
	assert.Equal(t, uint16(0x0042), got.SubVersion)
}

// S6 — disconnect draining.
func TestS6_DisconnectDraining(t *testing.T) {
	conn, _ := newConn(t, PoolConfig{ContextCapacity: 3, TXCapacity: 1, NotificationCapacity: 1})

	for i := 0; i < 3; i++ {
		require.Equal(t, ResultSuccess, conn.VersionExchange())
	}
	assert.Equal(t, 0, conn.engine.contextPool.Free())

	conn.Disconnect()

	assert.Equal(t, 3, conn.engine.contextPool.Free())
}

// Property 6: disconnect idempotence.
func TestProperty_DisconnectIdempotent(t *testing.T) {
	conn, _ := newConn(t, PoolConfig{ContextCapacity: 2, TXCapacity: 1, NotificationCapacity: 1})
	conn.Disconnect()
	free := conn.engine.contextPool.Free()
	conn.Disconnect()
	assert.Equal(t, free, conn.engine.contextPool.Free())
}

// Property 1: pool free+in-use == capacity at every quiescent point.
func TestProperty_PoolCountsBalanced(t *testing.T) {
	conn, _ := newConn(t, PoolConfig{ContextCapacity: 2, TXCapacity: 2, NotificationCapacity: 2})

	conn.VersionExchange()
	conn.Run()
	assert.Equal(t, 2, conn.engine.contextPool.Free()+conn.engine.contextPool.InUse())
	assert.Equal(t, conn.engine.contextPool.Capacity(), conn.engine.contextPool.Free()+conn.engine.contextPool.InUse())

	conn.RX(peerVersionInd(0x0A, 0x00F0, 0x0042))
	assert.Equal(t, conn.engine.contextPool.Capacity(), conn.engine.contextPool.Free()+conn.engine.contextPool.InUse())
}

// Property 2: at most one active context per side.
func TestProperty_AtMostOneActivePerSide(t *testing.T) {
	conn, _ := newConn(t, PoolConfig{ContextCapacity: 2, TXCapacity: 1, NotificationCapacity: 1})

	conn.VersionExchange()
	conn.VersionExchange()
	conn.Run()

	// Only the head context is active; the second sits queued. Since the
	// context pool has capacity 2, both were admitted into the queue.
	assert.Equal(t, 0, conn.engine.contextPool.Free())
}

func TestProtocolViolation_UnrecognizedOpcode(t *testing.T) {
	conn, _ := newConn(t, PoolConfig{ContextCapacity: 1, TXCapacity: 1, NotificationCapacity: 1})

	err := conn.RX([]byte{0x03, 0x00, 0x42})
	require.Error(t, err)
}

func TestResourceExhausted_NoFreeContext(t *testing.T) {
	conn, _ := newConn(t, PoolConfig{ContextCapacity: 1, TXCapacity: 1, NotificationCapacity: 1})

	require.Equal(t, ResultSuccess, conn.VersionExchange())
	assert.Equal(t, ResultCommandDisallowed, conn.VersionExchange())
}

// An empty handle passed to ConnInit is minted into a fresh UUID, the same
// as a real embedding would do per new connection.
func TestConnInit_MintsHandleWhenEmpty(t *testing.T) {
	e := Init(PoolConfig{ContextCapacity: 1, TXCapacity: 1, NotificationCapacity: 1}, metrics.NewEngineMetrics(), nil)
	conn := e.ConnInit("", testSettings{}, 0, func([]byte) {}, func([]byte) {})

	_, err := uuid.Parse(conn.Handle())
	assert.NoError(t, err, "minted handle should be a valid UUID")
}

func TestConnInit_KeepsCallerSuppliedHandle(t *testing.T) {
	e := Init(PoolConfig{ContextCapacity: 1, TXCapacity: 1, NotificationCapacity: 1}, metrics.NewEngineMetrics(), nil)
	conn := e.ConnInit("caller-handle", testSettings{}, 0, func([]byte) {}, func([]byte) {})

	assert.Equal(t, "caller-handle", conn.Handle())
}
