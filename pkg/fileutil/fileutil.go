package fileutil

import (
	"os"
	"path/filepath"
)

// EnsureDir creates dir joined with path, including parents.
func EnsureDir(dir string, path ...string) error {
	target := filepath.Join(append([]string{dir}, path...)...)
	if err := os.MkdirAll(target, 0o755); err != nil {
		return &FileError{Message: err.Error(), Err: err, Cause: ErrCausePathError, Path: target}
	}
	return nil
}

// EnsureParent creates the parent directory of a file path.
func EnsureParent(file string) error {
	return EnsureDir(filepath.Dir(file))
}

// WriteFileAtomic writes data to a temp file next to path, fsyncs it and
// renames it over path. Readers see either the old or the new content,
// never a truncated file.
func WriteFileAtomic(path string, data []byte) error {
	if err := EnsureParent(path); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return &FileError{Message: err.Error(), Err: err, Cause: ErrCauseWriteFailed, Path: path, Retryable: true}
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return &FileError{Message: err.Error(), Err: err, Cause: ErrCauseWriteFailed, Path: path, Retryable: true}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return &FileError{Message: err.Error(), Err: err, Cause: ErrCauseSyncFailed, Path: path, Retryable: true}
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return &FileError{Message: err.Error(), Err: err, Cause: ErrCauseWriteFailed, Path: path, Retryable: true}
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return &FileError{Message: err.Error(), Err: err, Cause: ErrCauseRenameFail, Path: path}
	}
	return nil
}

// AppendLine appends line plus a newline to path and fsyncs, creating the
// file if needed.
func AppendLine(path string, line []byte) error {
	if err := EnsureParent(path); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return &FileError{Message: err.Error(), Err: err, Cause: ErrCausePathError, Path: path}
	}
	defer f.Close()

	buf := make([]byte, 0, len(line)+1)
	buf = append(buf, line...)
	buf = append(buf, '\n')
	if _, err := f.Write(buf); err != nil {
		return &FileError{Message: err.Error(), Err: err, Cause: ErrCauseWriteFailed, Path: path, Retryable: true}
	}
	if err := f.Sync(); err != nil {
		return &FileError{Message: err.Error(), Err: err, Cause: ErrCauseSyncFailed, Path: path, Retryable: true}
	}
	return nil
}

// Exists reports whether path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
