package tracestore

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"

	"tracerank/internal/codec"
	"tracerank/internal/errors"
	"tracerank/internal/model"
)

// TraceHeader opens every full trace file.
const TraceHeader = "Trace"

// CompressedExt marks trace files written through zstd.
const CompressedExt = ".zst"

var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

// WriteTrace encodes a full trace: header, exit message, then each step
// with its location and variable accesses.
func WriteTrace(w io.Writer, t *model.Trace) error {
	cw := codec.NewWriter(w)
	if err := cw.WriteString(TraceHeader); err != nil {
		return err
	}
	if err := cw.WriteString(t.ExitMessage); err != nil {
		return err
	}
	if err := cw.WriteVarInt(len(t.Steps)); err != nil {
		return err
	}
	for i := range t.Steps {
		if err := writeStep(cw, &t.Steps[i]); err != nil {
			return err
		}
	}
	return cw.Flush()
}

func writeStep(cw *codec.Writer, s *model.TraceNode) error {
	if err := cw.WriteVarInt(s.Order); err != nil {
		return err
	}
	if err := cw.WriteUvarint(uint64(s.ThreadID)); err != nil {
		return err
	}
	if err := writeLocation(cw, s.Location); err != nil {
		return err
	}
	if err := cw.WriteVarInt(len(s.Accesses)); err != nil {
		return err
	}
	for i := range s.Accesses {
		if err := writeAccess(cw, &s.Accesses[i]); err != nil {
			return err
		}
	}
	return nil
}

func writeAccess(cw *codec.Writer, a *model.VarAccess) error {
	v := a.Value.Variable
	if err := cw.WriteVarInt(int(v.Kind)); err != nil {
		return err
	}
	for _, s := range []string{v.ID, v.AliasID, v.Name, v.Type} {
		if err := cw.WriteString(s); err != nil {
			return err
		}
	}
	if err := cw.WriteNullableString(a.Value.StringValue); err != nil {
		return err
	}
	if err := cw.WriteString(a.Value.HeapID); err != nil {
		return err
	}
	for _, b := range []bool{a.Value.Root, a.Written, v.Static} {
		if err := cw.WriteBool(b); err != nil {
			return err
		}
	}
	if err := cw.WriteVarInt(v.Index); err != nil {
		return err
	}
	if err := cw.WriteVarInt(len(a.Deps)); err != nil {
		return err
	}
	for _, d := range a.Deps {
		if err := cw.WriteString(d); err != nil {
			return err
		}
	}
	return nil
}

// ReadTrace decodes a full trace written by WriteTrace.
func ReadTrace(r io.Reader) (*model.Trace, error) {
	cr := codec.NewReader(r)
	if err := readHeader(cr, TraceHeader); err != nil {
		return nil, err
	}
	msg, err := cr.ReadString()
	if err != nil {
		return nil, err
	}
	n, err := cr.ReadVarInt()
	if err != nil {
		return nil, err
	}
	t := &model.Trace{ExitMessage: msg, Steps: make([]model.TraceNode, 0, min(n, 1<<16))}
	for i := 0; i < n; i++ {
		s, err := readStep(cr)
		if err != nil {
			return nil, err
		}
		t.Steps = append(t.Steps, s)
	}
	return t, nil
}

func readStep(cr *codec.Reader) (model.TraceNode, error) {
	var s model.TraceNode
	var err error
	if s.Order, err = cr.ReadVarInt(); err != nil {
		return s, err
	}
	thread, err := cr.ReadUvarint()
	if err != nil {
		return s, err
	}
	s.ThreadID = int64(thread)
	if s.Location, err = readLocation(cr); err != nil {
		return s, err
	}
	n, err := cr.ReadVarInt()
	if err != nil {
		return s, err
	}
	if n > 0 {
		s.Accesses = make([]model.VarAccess, 0, min(n, 1024))
	}
	for i := 0; i < n; i++ {
		a, err := readAccess(cr)
		if err != nil {
			return s, err
		}
		s.Accesses = append(s.Accesses, a)
	}
	return s, nil
}

func readAccess(cr *codec.Reader) (model.VarAccess, error) {
	var a model.VarAccess
	start := cr.Offset()
	kind, err := cr.ReadVarInt()
	if err != nil {
		return a, err
	}
	if kind > int(model.KindArrayElement) {
		return a, errors.Corrupt(start, "unknown variable kind", nil).WithDetails(kind)
	}
	v := &a.Value.Variable
	v.Kind = model.VarKind(kind)

	for _, dst := range []*string{&v.ID, &v.AliasID, &v.Name, &v.Type} {
		if *dst, err = cr.ReadString(); err != nil {
			return a, err
		}
	}
	if a.Value.StringValue, err = cr.ReadNullableString(); err != nil {
		return a, err
	}
	if a.Value.HeapID, err = cr.ReadString(); err != nil {
		return a, err
	}
	for _, dst := range []*bool{&a.Value.Root, &a.Written, &v.Static} {
		if *dst, err = cr.ReadBool(); err != nil {
			return a, err
		}
	}
	if v.Index, err = cr.ReadVarInt(); err != nil {
		return a, err
	}
	n, err := cr.ReadVarInt()
	if err != nil {
		return a, err
	}
	if n > 0 {
		a.Deps = make([]string, 0, min(n, 1024))
	}
	for i := 0; i < n; i++ {
		d, err := cr.ReadString()
		if err != nil {
			return a, err
		}
		a.Deps = append(a.Deps, d)
	}
	return a, nil
}

// SaveTrace writes t to path, through zstd when compress is set or the
// path ends in ".zst".
func SaveTrace(path string, t *model.Trace, compress bool) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.New(errors.IOFailure, "creating output directory failed", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return errors.New(errors.IOFailure, "opening trace file failed", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = errors.New(errors.IOFailure, "closing trace file failed", cerr)
		}
	}()

	if err := lockFile(f, true); err != nil {
		return errors.New(errors.IOFailure, "locking trace file failed", err)
	}
	defer func() { _ = unlockFile(f) }()

	if err := f.Truncate(0); err != nil {
		return errors.New(errors.IOFailure, "truncating trace file failed", err)
	}

	if !compress && !strings.HasSuffix(path, CompressedExt) {
		return WriteTrace(f, t)
	}

	zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return errors.New(errors.InternalError, "creating zstd encoder failed", err)
	}
	if err := WriteTrace(zw, t); err != nil {
		zw.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		return errors.New(errors.IOFailure, "finishing zstd stream failed", err)
	}
	return nil
}

// LoadTrace reads a trace file, decompressing it when it starts with the
// zstd frame magic.
func LoadTrace(path string) (*model.Trace, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.New(errors.IOFailure, "opening trace file failed", err)
	}
	defer f.Close()

	if err := lockFile(f, false); err != nil {
		return nil, errors.New(errors.IOFailure, "locking trace file failed", err)
	}
	defer func() { _ = unlockFile(f) }()

	br := bufio.NewReader(f)
	magic, _ := br.Peek(len(zstdMagic))
	if !bytes.Equal(magic, zstdMagic) {
		return ReadTrace(br)
	}

	zr, err := zstd.NewReader(br)
	if err != nil {
		return nil, errors.New(errors.InvalidFormat, "opening zstd stream failed", err)
	}
	defer zr.Close()

	t, err := ReadTrace(zr)
	if err != nil {
		return nil, fmt.Errorf("decompressed %s: %w", filepath.Base(path), err)
	}
	return t, nil
}
