package client

import (
	"context"
	"errors"
	"testing"
	"time"
	"unsafe"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitlane/simtap/internal/sdk"
	"github.com/pitlane/simtap/internal/shm"
	"github.com/pitlane/simtap/internal/testutil"
)

func buildSnapshot() []byte {
	return testutil.NewSnapshotBuilder(8192, 512).
		WithTickRate(60).
		AddVar(4, 0, 1, false, "Speed", "GPS vehicle speed", "m/s").
		AddVar(0, 4, 16, false, "DriverName", "", "").
		SetBuf(0, 1, 1024).
		SetBuf(1, 5, 2048).
		SetBuf(2, 3, 3072).
		SetBuf(3, 0, 4096).
		WriteFloat32(2048, 42.5).
		WriteBytes(2052, []byte("A.Senna")).
		Build()
}

func TestSnapshotDecodesFullPass(t *testing.T) {
	mapping := shm.NewMemoryMapping(buildSnapshot())
	loop := NewLoop(mapping, shm.NewManualSignal(), Options{DecodeValues: true})

	snap, err := loop.Snapshot()
	require.NoError(t, err)

	assert.Equal(t, int32(2), snap.Header.NumVars)
	require.Len(t, snap.Vars, 2)
	assert.Equal(t, sdk.VarFloat, snap.Vars[0].Type)
	assert.Equal(t, 4, snap.Vars[0].ByteLen())
	assert.Equal(t, 16, snap.Vars[1].ByteLen())
	assert.Equal(t, 1, snap.BufIndex)
	assert.Equal(t, int32(2048), snap.PayloadOffset)

	require.Len(t, snap.Values, 2)
	assert.InDelta(t, 42.5, snap.Values[0].Float64At(0), 1e-6)
	assert.Equal(t, byte('A'), snap.Values[1].Chars[0])
}

func TestSnapshotAbortPolicy(t *testing.T) {
	buf := testutil.NewSnapshotBuilder(8192, 512).
		AddVar(99, 0, 1, false, "Broken", "", "").
		AddVar(4, 4, 1, false, "Speed", "", "m/s").
		Build()
	loop := NewLoop(shm.NewMemoryMapping(buf), shm.NewManualSignal(), Options{Policy: PolicyAbort})

	_, err := loop.Snapshot()
	var unknown *sdk.UnknownVarTypeError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, int32(99), unknown.Code)
}

func TestSnapshotSkipPolicy(t *testing.T) {
	buf := testutil.NewSnapshotBuilder(8192, 512).
		AddVar(99, 0, 1, false, "Broken", "", "").
		AddVar(4, 4, 1, false, "Speed", "", "m/s").
		Build()
	loop := NewLoop(shm.NewMemoryMapping(buf), shm.NewManualSignal(), Options{Policy: PolicySkip})

	snap, err := loop.Snapshot()
	require.NoError(t, err)

	require.Len(t, snap.Skipped, 1)
	assert.Equal(t, 0, snap.Skipped[0].Index)
	var unknown *sdk.UnknownVarTypeError
	require.ErrorAs(t, snap.Skipped[0].Err, &unknown)

	// The valid descriptor after the bad one still decodes, proving
	// the rejected record left the cursor re-alignable.
	require.Len(t, snap.Vars, 1)
	assert.Equal(t, "Speed", snap.Vars[0].Name)
}

func TestSnapshotSessionInfoDeliveredOnUpdate(t *testing.T) {
	buf := testutil.NewSnapshotBuilder(8192, 512).
		WithSessionInfo("WeekendInfo:\n TrackName: spa\n", 1024, 1).
		Build()
	loop := NewLoop(shm.NewMemoryMapping(buf), shm.NewManualSignal(), Options{})

	snap, err := loop.Snapshot()
	require.NoError(t, err)
	assert.Contains(t, string(snap.SessionInfo), "TrackName: spa")

	// Unchanged update counter: no re-delivery.
	snap, err = loop.Snapshot()
	require.NoError(t, err)
	assert.Nil(t, snap.SessionInfo)
}

// tamperMapping serves cursor reads from one buffer and live re-reads
// from another, simulating a producer republishing mid-decode.
type tamperMapping struct {
	decoded []byte
	live    []byte
}

func (m *tamperMapping) View() (shm.Region, error) {
	return &tamperRegion{decoded: m.decoded, live: m.live}, nil
}

func (m *tamperMapping) Close() error { return nil }

type tamperRegion struct {
	decoded []byte
	live    []byte
}

func (r *tamperRegion) Size() uint32         { return uint32(len(r.decoded)) }
func (r *tamperRegion) Base() unsafe.Pointer { return unsafe.Pointer(&r.decoded[0]) }
func (r *tamperRegion) Bytes() []byte        { return r.live }
func (r *tamperRegion) Close() error         { return nil }

func TestSnapshotReverifyDetectsTornRead(t *testing.T) {
	decoded := buildSnapshot()
	live := testutil.NewSnapshotBuilder(8192, 512).
		SetBuf(1, 6, 2048). // tick moved after the header was read
		Build()

	loop := NewLoop(&tamperMapping{decoded: decoded, live: live}, shm.NewManualSignal(), Options{Reverify: true})
	_, err := loop.Snapshot()
	assert.ErrorIs(t, err, ErrTornRead)
}

func TestSnapshotReverifyPassesWhenStable(t *testing.T) {
	mapping := shm.NewMemoryMapping(buildSnapshot())
	loop := NewLoop(mapping, shm.NewManualSignal(), Options{Reverify: true})

	_, err := loop.Snapshot()
	assert.NoError(t, err)
}

type failingMapping struct{ calls int }

func (m *failingMapping) View() (shm.Region, error) {
	m.calls++
	return nil, shm.ErrViewFailed
}

func (m *failingMapping) Close() error { return nil }

func TestSnapshotViewBreakerTrips(t *testing.T) {
	mapping := &failingMapping{}
	loop := NewLoop(mapping, shm.NewManualSignal(), Options{})

	for i := 0; i < 5; i++ {
		_, err := loop.Snapshot()
		require.ErrorIs(t, err, shm.ErrViewFailed)
	}

	// Breaker is open now: the mapping is no longer even asked.
	_, err := loop.Snapshot()
	require.Error(t, err)
	assert.NotErrorIs(t, err, shm.ErrViewFailed)
	assert.Equal(t, 5, mapping.calls)
}

func TestRunYieldsSnapshotPerSignal(t *testing.T) {
	signal := shm.NewManualSignal()
	loop := NewLoop(shm.NewMemoryMapping(buildSnapshot()), signal, Options{
		Metrics: NewMetrics(prometheus.NewRegistry()),
	})

	snaps := make(chan *Snapshot, 4)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- loop.Run(ctx, func(s *Snapshot) { snaps <- s })
	}()

	for i := 0; i < 3; i++ {
		signal.Pulse()
		select {
		case snap := <-snaps:
			assert.Equal(t, int32(2), snap.Header.NumVars)
		case <-time.After(2 * time.Second):
			t.Fatal("no snapshot after signal")
		}
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop on cancel")
	}
}

func TestRunStopsOnWaitFailure(t *testing.T) {
	signal := shm.NewManualSignal()
	require.NoError(t, signal.Close())

	loop := NewLoop(shm.NewMemoryMapping(buildSnapshot()), signal, Options{})
	err := loop.Run(context.Background(), nil)

	var waitErr *shm.WaitError
	require.ErrorAs(t, err, &waitErr)
	assert.True(t, errors.Is(waitErr, shm.ErrNotPresent) || waitErr.Code != nil)
}
