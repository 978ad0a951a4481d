package store

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/multierr"
)

// WriteFileAtomic replaces path with data: temp file in the same directory,
// fsync, chmod to perm, rename. Readers see either the previous content or the
// new one, never a partial write. Missing parent directories are created with
// dirPerm. The temp file is removed on any failure.
func WriteFileAtomic(path string, data []byte, dirPerm, perm os.FileMode) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	defer func() {
		if err != nil {
			err = multierr.Append(err, ignoreNotExist(os.Remove(tmpName)))
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return multierr.Append(err, tmp.Close())
	}
	if err := tmp.Sync(); err != nil {
		return multierr.Append(err, tmp.Close())
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func ignoreNotExist(err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
