// Package client runs the snapshot synchronization loop: wait for the
// producer's data-valid signal, map a fresh view, decode it, hand the
// result off, release the view, repeat.
package client

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/pitlane/simtap/internal/sdk"
	"github.com/pitlane/simtap/internal/shm"
	"github.com/pitlane/simtap/internal/wire"
	"github.com/pitlane/simtap/utils"
)

// Policy decides what a snapshot pass does with a variable descriptor
// that fails to decode.
type Policy string

const (
	// PolicySkip records the failure, advances past the fixed-size
	// record, and keeps walking the table.
	PolicySkip Policy = "skip"

	// PolicyAbort fails the whole snapshot on the first bad descriptor.
	PolicyAbort Policy = "abort"
)

// ErrTornRead reports that the freshest buffer's tick moved while its
// payload was being read. The snapshot is discarded; the next signal
// is the retry.
var ErrTornRead = errors.New("torn read: buffer republished during decode")

// SkippedVar records one descriptor rejected under PolicySkip.
type SkippedVar struct {
	Index int
	Err   error
}

// Snapshot is the result of one decode pass over one view. All fields
// are copies; nothing references the released view.
type Snapshot struct {
	Header        sdk.SdkHeader
	Vars          []sdk.VarHeader
	Values        []sdk.Value
	Skipped       []SkippedVar
	BufIndex      int
	PayloadOffset int32
	SessionInfo   []byte
}

// Options configure a Loop.
type Options struct {
	// Policy for per-variable decode failures. Default PolicyAbort.
	Policy Policy

	// Reverify re-reads the winning buffer's tick after the payload is
	// decoded and discards the snapshot as ErrTornRead on a mismatch.
	Reverify bool

	// DecodeValues reads every variable's samples from the freshest
	// buffer. Off, the snapshot carries descriptors and offsets only.
	DecodeValues bool

	Logger  *utils.Logger
	Metrics *Metrics
}

// Loop owns one mapping/signal pair for its lifetime and yields one
// Snapshot (or error) per producer signal.
type Loop struct {
	mapping shm.Mapping
	signal  shm.Signal
	opts    Options
	breaker *gobreaker.CircuitBreaker

	lastSessionUpdate int32
}

// NewLoop wires a loop over already-acquired handles. The caller keeps
// ownership of mapping and signal and releases them after Run returns.
func NewLoop(mapping shm.Mapping, signal shm.Signal, opts Options) *Loop {
	if opts.Policy == "" {
		opts.Policy = PolicyAbort
	}
	if opts.Logger == nil {
		opts.Logger = utils.DefaultLogger("loop")
	}
	return &Loop{
		mapping: mapping,
		signal:  signal,
		opts:    opts,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "view-acquisition",
			Timeout: 2 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
		lastSessionUpdate: -1,
	}
}

// Run loops Waiting -> Decoding until the context ends or a fatal
// error surfaces. Wait failures and view/IO failures are fatal; a
// torn read discards the snapshot and re-waits; a descriptor decode
// failure is fatal only under PolicyAbort.
func (l *Loop) Run(ctx context.Context, handler func(*Snapshot)) error {
	for {
		if err := l.signal.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			l.opts.Logger.Error("Signal wait failed", utils.Err(err))
			return err
		}

		snap, err := l.Snapshot()
		switch {
		case err == nil:
			if handler != nil {
				handler(snap)
			}
		case errors.Is(err, ErrTornRead):
			l.opts.Metrics.tornRead()
			l.opts.Logger.Warn("Snapshot discarded", utils.Err(err))
		default:
			l.opts.Metrics.decodeFailure()
			return err
		}
	}
}

// Snapshot performs one decode pass: fresh view in, decoded copy out.
// The view is released on every exit path before returning.
func (l *Loop) Snapshot() (*Snapshot, error) {
	started := time.Now()

	res, err := l.breaker.Execute(func() (interface{}, error) {
		return l.mapping.View()
	})
	if err != nil {
		return nil, fmt.Errorf("acquire view: %w", err)
	}
	view := res.(shm.Region)
	defer view.Close()

	snap := &Snapshot{}
	cur := wire.NewCursor(view.Base())
	snap.Header.DecodeFrom(cur)

	cur.Seek(uintptr(snap.Header.VarHeaderOffset))
	snap.Vars = make([]sdk.VarHeader, 0, snap.Header.NumVars)
	for i := 0; i < int(snap.Header.NumVars); i++ {
		var vh sdk.VarHeader
		if err := vh.TryDecodeFrom(cur); err != nil {
			if l.opts.Policy == PolicySkip {
				snap.Skipped = append(snap.Skipped, SkippedVar{Index: i, Err: err})
				l.opts.Metrics.skippedVar()
				cur.Advance(sdk.VarHeaderSize)
				continue
			}
			return nil, fmt.Errorf("var header %d: %w", i, err)
		}
		snap.Vars = append(snap.Vars, vh)
	}

	snap.BufIndex, snap.PayloadOffset = sdk.Freshest(snap.Header.VarBufs)
	cur.Seek(uintptr(snap.PayloadOffset))

	if l.opts.DecodeValues {
		snap.Values = make([]sdk.Value, len(snap.Vars))
		for i := range snap.Vars {
			vc := wire.NewCursor(view.Base())
			vc.Seek(uintptr(snap.PayloadOffset + snap.Vars[i].Offset))
			snap.Values[i] = sdk.DecodeValue(vc, &snap.Vars[i])
		}
	}

	if l.opts.Reverify {
		if tickAt(view.Bytes(), snap.BufIndex) != snap.Header.VarBufs[snap.BufIndex].TickCount {
			return nil, ErrTornRead
		}
	}

	if snap.Header.SessionInfoUpdate != l.lastSessionUpdate {
		if raw := sdk.ExtractSessionInfo(view.Bytes(), &snap.Header); raw != nil {
			snap.SessionInfo = append([]byte(nil), raw...)
			l.lastSessionUpdate = snap.Header.SessionInfoUpdate
		}
	}

	l.opts.Metrics.snapshot(len(snap.Vars), time.Since(started))
	return snap, nil
}

// tickAt re-reads a buffer slot's live tick straight from the view,
// bypassing the already-decoded header copy.
func tickAt(view []byte, idx int) int32 {
	off := 10*4 + 8 + idx*sdk.VarBufSize
	return int32(binary.LittleEndian.Uint32(view[off:]))
}
