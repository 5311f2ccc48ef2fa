package slogutil

import (
	stderrors "errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// LogFile appends to the state-directory log and shifts it into numbered
// backups once a write would take it past its size limit. Backup 1 is the
// most recent.
type LogFile struct {
	mu      sync.Mutex
	path    string
	limit   int64
	keep    int
	f       *os.File
	written int64
}

// OpenLogFile opens path for appending, creating its directory. A zero
// limit never rotates; a zero keep discards the old log on rotation.
func OpenLogFile(path string, limit int64, keep int) (*LogFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	lf := &LogFile{path: path, limit: limit, keep: keep}
	if err := lf.reopen(); err != nil {
		return nil, err
	}
	return lf, nil
}

func (l *LogFile) reopen() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return err
	}
	l.f, l.written = f, st.Size()
	return nil
}

func (l *LogFile) overflows(n int) bool {
	return l.limit > 0 && l.written > 0 && l.written+int64(n) > l.limit
}

// Write appends p, rotating first when p would overflow a non-empty log.
// A record larger than the limit still lands whole in a fresh file.
func (l *LogFile) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return 0, os.ErrClosed
	}
	if l.overflows(len(p)) {
		if err := l.rotate(); err != nil && l.f == nil {
			return 0, err
		}
	}
	n, err := l.f.Write(p)
	l.written += int64(n)
	return n, err
}

// Close is idempotent.
func (l *LogFile) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}

// rotate closes the live log, shifts backups up by one and reopens. When the
// shift fails the live log is reopened as is and keeps growing.
func (l *LogFile) rotate() error {
	err := l.f.Close()
	l.f = nil
	if err != nil {
		return err
	}
	shiftErr := l.shift()
	if err := l.reopen(); err != nil {
		return err
	}
	return shiftErr
}

func (l *LogFile) shift() error {
	if l.keep == 0 {
		return ignoreMissing(os.Remove(l.path))
	}
	if err := ignoreMissing(os.Remove(l.backup(l.keep))); err != nil {
		return err
	}
	for i := l.keep - 1; i >= 1; i-- {
		if err := ignoreMissing(os.Rename(l.backup(i), l.backup(i+1))); err != nil {
			return err
		}
	}
	return os.Rename(l.path, l.backup(1))
}

func (l *LogFile) backup(n int) string {
	return l.path + "." + strconv.Itoa(n)
}

func ignoreMissing(err error) error {
	if stderrors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
