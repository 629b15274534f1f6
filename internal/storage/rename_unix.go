//go:build !windows

package storage

import "os"

func renameFile(oldpath, newpath string) error {
	return os.Rename(oldpath, newpath)
}
