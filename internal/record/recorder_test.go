package record

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitlane/simtap/internal/client"
	"github.com/pitlane/simtap/internal/sdk"
)

func snapshotWithSpeed(tick int32, speed float32) *client.Snapshot {
	snap := &client.Snapshot{
		BufIndex: 0,
		Vars: []sdk.VarHeader{
			{Type: sdk.VarFloat, Count: 1, Name: "Speed", Unit: "m/s"},
			{Type: sdk.VarInt, Count: 2, Name: "Gears", Unit: ""},
		},
		Values: []sdk.Value{
			{Type: sdk.VarFloat, Floats: []float32{speed}},
			{Type: sdk.VarInt, Ints: []int32{3, 4}},
		},
	}
	snap.Header.VarBufs[0].TickCount = tick
	return snap
}

func TestRecordingRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stint.stap")

	w, err := NewWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.WriteSnapshot(snapshotWithSpeed(10, 42.5)))
	require.NoError(t, w.WriteSnapshot(snapshotWithSpeed(11, 43.25)))
	assert.Equal(t, 2, w.Frames())
	require.NoError(t, w.Close())
	require.NoError(t, w.Close(), "double close is a no-op")

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	r, err := NewReader(file)
	require.NoError(t, err)

	vars := r.Vars()
	require.Len(t, vars, 2)
	assert.Equal(t, "Speed", vars[0].Name)
	assert.Equal(t, sdk.VarFloat, vars[0].Type)
	assert.Equal(t, int32(2), vars[1].Count)

	frame, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, int32(10), frame.Tick)
	assert.InDelta(t, 42.5, frame.Samples[0][0], 1e-6)
	assert.Equal(t, []float64{3, 4}, frame.Samples[1])

	frame, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, int32(11), frame.Tick)

	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestWriterRejectsMismatchedTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stint.stap")

	w, err := NewWriter(path)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.WriteSnapshot(snapshotWithSpeed(1, 1)))

	short := snapshotWithSpeed(2, 2)
	short.Vars = short.Vars[:1]
	short.Values = short.Values[:1]
	assert.Error(t, w.WriteSnapshot(short))
}

func TestWriterRejectsSnapshotWithoutValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stint.stap")

	w, err := NewWriter(path)
	require.NoError(t, err)
	defer w.Close()

	snap := snapshotWithSpeed(1, 1)
	snap.Values = nil
	assert.Error(t, w.WriteSnapshot(snap))
}

func TestReaderRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk")
	require.NoError(t, os.WriteFile(path, []byte("not a recording at all"), 0o600))

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	_, err = NewReader(file)
	assert.Error(t, err)
}
