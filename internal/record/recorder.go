// Package record persists decoded telemetry to disk as a
// brotli-compressed stream: one descriptor table up front, then one
// frame of float64 samples per snapshot. The format is self-contained
// so a recording can be replayed without the producer present.
package record

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/andybalholm/brotli"

	"github.com/pitlane/simtap/internal/client"
	"github.com/pitlane/simtap/internal/sdk"
)

const (
	fileMagic     = uint32(0x50415453) // "STAP"
	formatVersion = uint16(1)
	frameMarker   = uint32(0xF0A51EAF)
)

// VarMeta is the recorded descriptor of one variable.
type VarMeta struct {
	Name  string
	Unit  string
	Type  sdk.VarType
	Count int32
}

// Writer appends snapshots to one recording file. The descriptor
// table is fixed by the first snapshot written; later snapshots must
// declare the same variables.
type Writer struct {
	file   *os.File
	bw     *brotli.Writer
	vars   []VarMeta
	frames int
}

// NewWriter creates (truncates) a recording at path.
func NewWriter(path string) (*Writer, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create recording: %w", err)
	}
	return &Writer{file: file, bw: brotli.NewWriter(file)}, nil
}

// WriteSnapshot appends one frame, emitting the header first if this
// is the first frame.
func (w *Writer) WriteSnapshot(snap *client.Snapshot) error {
	if w.bw == nil {
		return errors.New("recording closed")
	}
	if len(snap.Values) != len(snap.Vars) {
		return errors.New("snapshot has no decoded values")
	}

	if w.vars == nil {
		if err := w.writeHeader(snap); err != nil {
			return err
		}
	}
	if len(snap.Vars) != len(w.vars) {
		return fmt.Errorf("snapshot declares %d vars, recording has %d", len(snap.Vars), len(w.vars))
	}

	if err := w.put(frameMarker, snap.Header.VarBufs[snap.BufIndex].TickCount); err != nil {
		return err
	}
	for i, meta := range w.vars {
		samples := make([]float64, meta.Count)
		for j := range samples {
			samples[j] = snap.Values[i].Float64At(j)
		}
		if err := w.put(samples); err != nil {
			return err
		}
	}
	w.frames++
	return nil
}

// Frames reports how many frames have been written.
func (w *Writer) Frames() int {
	return w.frames
}

// Close flushes the compressor and closes the file. Safe to call more
// than once.
func (w *Writer) Close() error {
	if w.bw == nil {
		return nil
	}
	err := w.bw.Close()
	w.bw = nil
	if closeErr := w.file.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

func (w *Writer) writeHeader(snap *client.Snapshot) error {
	w.vars = make([]VarMeta, len(snap.Vars))
	for i, vh := range snap.Vars {
		w.vars[i] = VarMeta{Name: vh.Name, Unit: vh.Unit, Type: vh.Type, Count: vh.Count}
	}

	if err := w.put(fileMagic, formatVersion, uint32(len(w.vars))); err != nil {
		return err
	}
	for _, meta := range w.vars {
		if err := w.putString(meta.Name); err != nil {
			return err
		}
		if err := w.putString(meta.Unit); err != nil {
			return err
		}
		if err := w.put(int32(meta.Type), meta.Count); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) put(values ...any) error {
	for _, v := range values {
		if err := binary.Write(w.bw, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("write recording: %w", err)
		}
	}
	return nil
}

func (w *Writer) putString(s string) error {
	if len(s) > 255 {
		s = s[:255]
	}
	if err := w.put(uint8(len(s))); err != nil {
		return err
	}
	_, err := w.bw.Write([]byte(s))
	return err
}

// Reader replays a recording produced by Writer.
type Reader struct {
	br   *brotli.Reader
	vars []VarMeta
}

// Frame is one replayed snapshot.
type Frame struct {
	Tick    int32
	Samples [][]float64
}

// NewReader parses the recording header from r.
func NewReader(r io.Reader) (*Reader, error) {
	rd := &Reader{br: brotli.NewReader(r)}

	var magic uint32
	var version uint16
	var count uint32
	if err := rd.get(&magic, &version, &count); err != nil {
		return nil, fmt.Errorf("read recording header: %w", err)
	}
	if magic != fileMagic {
		return nil, fmt.Errorf("not a recording: magic %#x", magic)
	}
	if version != formatVersion {
		return nil, fmt.Errorf("unsupported recording version %d", version)
	}

	rd.vars = make([]VarMeta, count)
	for i := range rd.vars {
		name, err := rd.getString()
		if err != nil {
			return nil, err
		}
		unit, err := rd.getString()
		if err != nil {
			return nil, err
		}
		var typ, n int32
		if err := rd.get(&typ, &n); err != nil {
			return nil, err
		}
		rd.vars[i] = VarMeta{Name: name, Unit: unit, Type: sdk.VarType(typ), Count: n}
	}
	return rd, nil
}

// Vars returns the recorded descriptor table.
func (r *Reader) Vars() []VarMeta {
	return r.vars
}

// Next reads one frame, io.EOF at the end of the recording.
func (r *Reader) Next() (*Frame, error) {
	var marker uint32
	var tick int32
	if err := r.get(&marker); err != nil {
		return nil, err
	}
	if marker != frameMarker {
		return nil, fmt.Errorf("corrupt recording: frame marker %#x", marker)
	}
	if err := r.get(&tick); err != nil {
		return nil, err
	}

	frame := &Frame{Tick: tick, Samples: make([][]float64, len(r.vars))}
	for i, meta := range r.vars {
		frame.Samples[i] = make([]float64, meta.Count)
		if err := r.get(frame.Samples[i]); err != nil {
			return nil, err
		}
	}
	return frame, nil
}

func (r *Reader) get(dsts ...any) error {
	for _, dst := range dsts {
		if err := binary.Read(r.br, binary.LittleEndian, dst); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reader) getString() (string, error) {
	var n uint8
	if err := r.get(&n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.br, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
