package procedure

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-ble/llcpengine/internal/llcp/llcperr"
	"github.com/go-ble/llcpengine/internal/llcp/pdu"
	"github.com/go-ble/llcpengine/internal/llcp/pool"
)

type fakeSettings struct {
	companyID  uint16
	subversion uint16
}

func (f fakeSettings) CompanyID() uint16         { return f.companyID }
func (f fakeSettings) SubversionNumber() uint16 { return f.subversion }

func newTestEnv(txCap, ntfCap int) (*Env, *[][]byte, *[][]byte) {
	var tx, ntf [][]byte
	env := &Env{
		TXPool:   pool.New[pdu.Buffer]("tx", txCap),
		NTFPool:  pool.New[pdu.Buffer]("ntf", ntfCap),
		Settings: fakeSettings{companyID: 0x005D, subversion: 0x0001},
		TXSink: func(data []byte) {
			cp := append([]byte(nil), data...)
			tx = append(tx, cp)
		},
		NTFSink: func(data []byte) {
			cp := append([]byte(nil), data...)
			ntf = append(ntf, cp)
		},
	}
	return env, &tx, &ntf
}

func TestLocalVersionExchange_HappyPath(t *testing.T) {
	env, tx, ntf := newTestEnv(1, 1)
	caches := &Caches{}
	ctx := &Context{}
	ctx.Reset(KindVersionExchange, RoleLocal)

	_, err := LocalStep(ctx, caches, env, EventRun, nil)
	require.NoError(t, err)
	assert.Equal(t, StateWaitRX, ctx.State)
	require.Len(t, *tx, 1)
	assert.Equal(t, []byte{0x03, 0x05, 0x0C, 0x09, 0x5D, 0x00, 0x01, 0x00}, (*tx)[0])

	var rxBuf pdu.Buffer
	pdu.EncodeVersionInd(&rxBuf, pdu.VersionExchangePayload{Version: 0x0A, CompanyID: 0x00F0, SubVersion: 0x0042})

	outcome, err := LocalStep(ctx, caches, env, EventResponse, rxBuf.Bytes())
	require.NoError(t, err)
	assert.True(t, outcome.Completed)
	assert.Equal(t, llcperr.TaxonNone, outcome.Taxon)
	assert.Equal(t, StateIdle, ctx.State)
	require.Len(t, *ntf, 1)

	got, ok := pdu.DecodeVersionInd((*ntf)[0])
	require.True(t, ok)
	assert.Equal(t, uint8(0x0A), got.Version)
	assert.Equal(t, uint16(0x00F0), got.CompanyID)
	assert.Equal(t, uint16(0x0042), got.SubVersion)

	assert.True(t, caches.VersionExchange.Sent)
	assert.True(t, caches.VersionExchange.Valid)
}

func TestLocalVersionExchange_SecondCallNotifiesFromCache(t *testing.T) {
	env, tx, ntf := newTestEnv(1, 1)
	caches := &Caches{}
	caches.VersionExchange = VersionExchangeCache{
		Sent: true, Valid: true,
		Version: 0x0A, CompanyID: 0x00F0, SubVersion: 0x0042,
	}
	ctx := &Context{}
	ctx.Reset(KindVersionExchange, RoleLocal)

	outcome, err := LocalStep(ctx, caches, env, EventRun, nil)
	require.NoError(t, err)
	assert.True(t, outcome.Completed)
	assert.Empty(t, *tx)
	require.Len(t, *ntf, 1)
}

func TestLocalVersionExchange_TXBackpressure(t *testing.T) {
	env, tx, _ := newTestEnv(1, 1)
	_, _ = env.TXPool.Acquire() // exhaust

	var parkedPools []string
	env.OnBackpressure = func(pool string) { parkedPools = append(parkedPools, pool) }

	caches := &Caches{}
	ctx := &Context{}
	ctx.Reset(KindVersionExchange, RoleLocal)

	outcome, err := LocalStep(ctx, caches, env, EventRun, nil)
	require.NoError(t, err)
	assert.False(t, outcome.Completed)
	assert.Equal(t, StateWaitTX, ctx.State)
	assert.Empty(t, *tx)
	assert.Equal(t, []string{"tx"}, parkedPools)

	env.TXPool.Release(0)
	_, err = LocalStep(ctx, caches, env, EventRun, nil)
	require.NoError(t, err)
	assert.Equal(t, StateWaitRX, ctx.State)
	assert.Len(t, *tx, 1)
	assert.Equal(t, []string{"tx"}, parkedPools, "no further parks once the buffer is available")
}

func TestLocalVersionExchange_NotificationBackpressure(t *testing.T) {
	env, _, ntf := newTestEnv(1, 1)
	_, _ = env.NTFPool.Acquire() // exhaust

	caches := &Caches{}
	ctx := &Context{}
	ctx.Reset(KindVersionExchange, RoleLocal)

	_, err := LocalStep(ctx, caches, env, EventRun, nil)
	require.NoError(t, err)

	var rxBuf pdu.Buffer
	pdu.EncodeVersionInd(&rxBuf, pdu.VersionExchangePayload{Version: 0x0A, CompanyID: 0x00F0, SubVersion: 0x0042})
	outcome, err := LocalStep(ctx, caches, env, EventResponse, rxBuf.Bytes())
	require.NoError(t, err)
	assert.False(t, outcome.Completed)
	assert.Equal(t, StateWaitNTF, ctx.State)
	assert.Empty(t, *ntf)

	env.NTFPool.Release(0)
	outcome, err = LocalStep(ctx, caches, env, EventRun, nil)
	require.NoError(t, err)
	assert.True(t, outcome.Completed)
	assert.Len(t, *ntf, 1)
}

func TestRemoteVersionExchange_HappyPath(t *testing.T) {
	env, tx, _ := newTestEnv(1, 1)
	caches := &Caches{}
	ctx := &Context{}
	ctx.Reset(KindVersionExchange, RoleRemote)

	_, err := RemoteStep(ctx, caches, env, EventRun, nil)
	require.NoError(t, err)
	assert.Equal(t, StateWaitRX, ctx.State)

	var rxBuf pdu.Buffer
	pdu.EncodeVersionInd(&rxBuf, pdu.VersionExchangePayload{Version: 0x0A, CompanyID: 0x00F0, SubVersion: 0x0042})
	outcome, err := RemoteStep(ctx, caches, env, EventRequest, rxBuf.Bytes())
	require.NoError(t, err)
	assert.True(t, outcome.Completed)
	assert.Equal(t, StateIdle, ctx.State)
	require.Len(t, *tx, 1)
	assert.True(t, caches.VersionExchange.Sent)
}

func TestLocalVersionExchange_RejectCompletesWithTaxon(t *testing.T) {
	env, _, _ := newTestEnv(1, 1)
	caches := &Caches{}
	ctx := &Context{}
	ctx.Reset(KindVersionExchange, RoleLocal)
	ctx.State = StateWaitRX

	outcome, err := LocalStep(ctx, caches, env, EventReject, nil)
	require.Error(t, err)
	assert.True(t, outcome.Completed)
	assert.Equal(t, llcperr.TaxonPeerRejection, outcome.Taxon)
}

func TestFeatureExchange_LocalAndRemoteRoundTrip(t *testing.T) {
	localEnv, localTX, localNTF := newTestEnv(1, 1)
	localEnv.LocalFeatures = 0x1F
	localCaches := &Caches{}
	localCtx := &Context{}
	localCtx.Reset(KindFeatureExchange, RoleLocal)

	_, err := LocalStep(localCtx, localCaches, localEnv, EventRun, nil)
	require.NoError(t, err)
	require.Len(t, *localTX, 1)

	remoteEnv, remoteTX, remoteNTF := newTestEnv(1, 1)
	remoteEnv.LocalFeatures = 0x03
	remoteCaches := &Caches{}
	remoteCtx := &Context{}
	remoteCtx.Reset(KindFeatureExchange, RoleRemote)

	_, err = RemoteStep(remoteCtx, remoteCaches, remoteEnv, EventRun, nil)
	require.NoError(t, err)
	outcome, err := RemoteStep(remoteCtx, remoteCaches, remoteEnv, EventRequest, (*localTX)[0])
	require.NoError(t, err)
	assert.True(t, outcome.Completed)
	require.Len(t, *remoteTX, 1)
	require.Len(t, *remoteNTF, 1)
	assert.Equal(t, uint64(0x1F), remoteCaches.FeatureExchange.Peer)

	outcome, err = LocalStep(localCtx, localCaches, localEnv, EventResponse, (*remoteTX)[0])
	require.NoError(t, err)
	assert.True(t, outcome.Completed)
	require.Len(t, *localNTF, 1)
	assert.Equal(t, uint64(0x03), localCaches.FeatureExchange.Peer)
}

func TestKindForOpcode(t *testing.T) {
	assert.Equal(t, KindVersionExchange, KindForOpcode(pdu.OpcodeVersionInd))
	assert.Equal(t, KindFeatureExchange, KindForOpcode(pdu.OpcodeFeatureReq))
	assert.Equal(t, KindUnimplemented, KindForOpcode(pdu.Opcode(0x99)))
}

func TestDispatch_UnimplementedKindIsProtocolViolation(t *testing.T) {
	env, _, _ := newTestEnv(1, 1)
	caches := &Caches{}
	ctx := &Context{}
	ctx.Reset(KindUnimplemented, RoleRemote)

	outcome, err := RemoteStep(ctx, caches, env, EventRun, nil)
	require.Error(t, err)
	assert.True(t, outcome.Completed)
	assert.Equal(t, llcperr.TaxonProtocolViolation, outcome.Taxon)
}
