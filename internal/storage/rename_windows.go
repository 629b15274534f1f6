//go:build windows

package storage

import "golang.org/x/sys/windows"

// renameFile overwrites newpath with MOVEFILE_REPLACE_EXISTING, which
// os.Rename does not request on every Windows version.
func renameFile(oldpath, newpath string) error {
	from, err := windows.UTF16PtrFromString(oldpath)
	if err != nil {
		return err
	}
	to, err := windows.UTF16PtrFromString(newpath)
	if err != nil {
		return err
	}
	return windows.MoveFileEx(from, to, windows.MOVEFILE_REPLACE_EXISTING)
}
