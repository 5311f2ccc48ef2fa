// Package tracestore persists pre-check summaries and full traces in the
// binary trace format.
package tracestore

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"tracerank/internal/codec"
	"tracerank/internal/errors"
	"tracerank/internal/model"
	"tracerank/internal/precheck"
)

// PrecheckHeader opens every pre-check record.
const PrecheckHeader = "Precheck"

// WritePrecheck encodes one pre-check record:
//
//	header            string "Precheck"
//	programMsg        string
//	threadNum         varint
//	isOverLong        bool
//	stepTotal         varint
//	exceedingMethods  varint count, then strings
//	visitedLocations  varint count, then (class string, signature string, line int32)
func WritePrecheck(w io.Writer, info precheck.Info) error {
	cw := codec.NewWriter(w)
	if err := encodePrecheck(cw, info); err != nil {
		return err
	}
	return cw.Flush()
}

func encodePrecheck(cw *codec.Writer, info precheck.Info) error {
	if err := cw.WriteString(PrecheckHeader); err != nil {
		return err
	}
	if err := cw.WriteString(info.ProgramMsg()); err != nil {
		return err
	}
	if err := cw.WriteVarInt(info.ThreadNum()); err != nil {
		return err
	}
	if err := cw.WriteBool(info.IsOverLong()); err != nil {
		return err
	}
	if err := cw.WriteVarInt(info.StepTotal()); err != nil {
		return err
	}

	exceeding := info.ExceedingMethods()
	if err := cw.WriteVarInt(len(exceeding)); err != nil {
		return err
	}
	for _, m := range exceeding {
		if err := cw.WriteString(m); err != nil {
			return err
		}
	}

	visited := info.VisitedLocations()
	if err := cw.WriteVarInt(len(visited)); err != nil {
		return err
	}
	for _, l := range visited {
		if err := writeLocation(cw, l); err != nil {
			return err
		}
	}
	return nil
}

func writeLocation(cw *codec.Writer, l model.ClassLocation) error {
	if err := cw.WriteString(l.ClassName); err != nil {
		return err
	}
	if err := cw.WriteString(l.MethodSignature); err != nil {
		return err
	}
	return cw.WriteInt32(l.LineNumber)
}

func readLocation(cr *codec.Reader) (model.ClassLocation, error) {
	class, err := cr.ReadString()
	if err != nil {
		return model.ClassLocation{}, err
	}
	sig, err := cr.ReadString()
	if err != nil {
		return model.ClassLocation{}, err
	}
	line, err := cr.ReadInt32()
	if err != nil {
		return model.ClassLocation{}, err
	}
	return model.NewClassLocation(class, sig, line), nil
}

// ReadPrecheck decodes the first pre-check record of r.
func ReadPrecheck(r io.Reader) (precheck.Info, error) {
	return decodePrecheck(codec.NewReader(r))
}

func readHeader(cr *codec.Reader, want string) error {
	start := cr.Offset()
	n, err := cr.ReadVarInt()
	if err != nil {
		return err
	}
	// A length that cannot be ours means some other kind of file.
	if n != len(want) {
		return errors.New(errors.InvalidFormat, fmt.Sprintf("expected %q header", want), nil).
			WithDetails(map[string]int64{"offset": start})
	}
	header, err := cr.ReadRaw(n)
	if err != nil {
		return err
	}
	if string(header) != want {
		return errors.New(errors.InvalidFormat, fmt.Sprintf("expected %q header, found %q", want, header), nil).
			WithDetails(map[string]int64{"offset": start})
	}
	return nil
}

func decodePrecheck(cr *codec.Reader) (precheck.Info, error) {
	if err := readHeader(cr, PrecheckHeader); err != nil {
		return precheck.Info{}, err
	}
	msg, err := cr.ReadString()
	if err != nil {
		return precheck.Info{}, err
	}
	threads, err := cr.ReadVarInt()
	if err != nil {
		return precheck.Info{}, err
	}
	overLong, err := cr.ReadBool()
	if err != nil {
		return precheck.Info{}, err
	}
	total, err := cr.ReadVarInt()
	if err != nil {
		return precheck.Info{}, err
	}

	n, err := cr.ReadVarInt()
	if err != nil {
		return precheck.Info{}, err
	}
	exceeding := make([]string, 0, min(n, 1024))
	for i := 0; i < n; i++ {
		m, err := cr.ReadString()
		if err != nil {
			return precheck.Info{}, err
		}
		exceeding = append(exceeding, m)
	}

	n, err = cr.ReadVarInt()
	if err != nil {
		return precheck.Info{}, err
	}
	visited := make([]model.ClassLocation, 0, min(n, 1024))
	for i := 0; i < n; i++ {
		l, err := readLocation(cr)
		if err != nil {
			return precheck.Info{}, err
		}
		visited = append(visited, l)
	}

	return precheck.NewInfo(msg, threads, overLong, total, exceeding, visited), nil
}

// SavePrecheck writes info to path under an exclusive file lock. With
// appendMode the record is added after any existing ones; otherwise the
// file is replaced.
func SavePrecheck(path string, info precheck.Info, appendMode bool) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.New(errors.IOFailure, "creating output directory failed", err)
	}

	flags := os.O_CREATE | os.O_WRONLY
	if appendMode {
		flags |= os.O_APPEND
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return errors.New(errors.IOFailure, "opening pre-check file failed", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = errors.New(errors.IOFailure, "closing pre-check file failed", cerr)
		}
	}()

	if err := lockFile(f, true); err != nil {
		return errors.New(errors.IOFailure, "locking pre-check file failed", err)
	}
	defer func() {
		if uerr := unlockFile(f); uerr != nil && err == nil {
			err = errors.New(errors.IOFailure, "unlocking pre-check file failed", uerr)
		}
	}()

	// Truncate only once the lock is held, so a concurrent appender never
	// loses its record halfway.
	if !appendMode {
		if err := f.Truncate(0); err != nil {
			return errors.New(errors.IOFailure, "truncating pre-check file failed", err)
		}
	}

	if err := WritePrecheck(f, info); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return errors.New(errors.IOFailure, "syncing pre-check file failed", err)
	}
	return nil
}

// LoadPrecheck returns the most recent record in path.
func LoadPrecheck(path string) (precheck.Info, error) {
	history, err := LoadPrecheckHistory(path)
	if err != nil {
		return precheck.Info{}, err
	}
	return history[len(history)-1], nil
}

// LoadPrecheckHistory returns every record in path, oldest first. An empty
// file is corrupt.
func LoadPrecheckHistory(path string) (history []precheck.Info, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.New(errors.IOFailure, "opening pre-check file failed", err)
	}
	defer f.Close()

	if err := lockFile(f, false); err != nil {
		return nil, errors.New(errors.IOFailure, "locking pre-check file failed", err)
	}
	defer func() { _ = unlockFile(f) }()

	cr := codec.NewReader(f)
	for {
		info, err := decodePrecheck(cr)
		if err != nil {
			return nil, err
		}
		history = append(history, info)
		if cr.AtEOF() {
			return history, nil
		}
	}
}

// IsNotExist reports whether err comes from a missing file.
func IsNotExist(err error) bool {
	return stderrors.Is(err, os.ErrNotExist)
}
