package pipeline

import (
	"io"
	"os"
	"path/filepath"

	"github.com/kickspeed/kickspeed/internal/errors"
)

// copyFile copies src to dst, creating parent directories. dst appears atomically.
func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return errors.FileError(err, src)
	}
	defer in.Close()

	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.FileError(err, dir)
	}

	tmp, err := os.CreateTemp(dir, ".publish-*")
	if err != nil {
		return errors.FileError(err, dir)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		return errors.FileError(err, dst)
	}
	if err = tmp.Close(); err != nil {
		return errors.FileError(err, dst)
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return errors.FileError(err, dst)
	}
	if err = os.Rename(tmp.Name(), dst); err != nil {
		return errors.FileError(err, dst)
	}
	return nil
}
