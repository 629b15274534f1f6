package testutil

import (
	"os"
	"runtime"
	"testing"
)

// Platform describes where the tests run. Permission based tests need to know
// about root, because chmod does not restrict root.
type Platform struct {
	IsUnix    bool
	IsWindows bool
	IsRoot    bool
	UID       int
}

func DetectPlatform(t *testing.T) Platform {
	t.Helper()
	windows := runtime.GOOS == "windows"
	p := Platform{IsUnix: !windows, IsWindows: windows, UID: os.Geteuid()}
	// Geteuid is -1 on windows.
	p.IsRoot = p.UID == 0
	return p
}

func SkipIfRoot(t *testing.T, p Platform, reason string) {
	t.Helper()
	if p.IsRoot {
		t.Skipf("%s: has no effect as root", reason)
	}
}

func SkipIfWindows(t *testing.T, p Platform, reason string) {
	t.Helper()
	if p.IsWindows {
		t.Skipf("%s: not supported on windows", reason)
	}
}
