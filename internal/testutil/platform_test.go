package testutil

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectPlatform(t *testing.T) {
	platform := DetectPlatform(t)
	assert.Equal(t, runtime.GOOS == "windows", platform.IsWindows)
	assert.NotEqual(t, platform.IsWindows, platform.IsUnix)
	if platform.IsUnix {
		assert.Equal(t, platform.UID == 0, platform.IsRoot)
	}
}

func TestSkipIfRoot(t *testing.T) {
	ran := false
	t.Run("root", func(t *testing.T) {
		SkipIfRoot(t, Platform{IsRoot: true}, "chmod")
		ran = true
	})
	assert.False(t, ran)

	t.Run("user", func(t *testing.T) {
		SkipIfRoot(t, Platform{IsUnix: true, UID: 1000}, "chmod")
		ran = true
	})
	assert.True(t, ran)
}

func TestSkipIfWindows(t *testing.T) {
	ran := false
	t.Run("windows", func(t *testing.T) {
		SkipIfWindows(t, Platform{IsWindows: true}, "truncation")
		ran = true
	})
	assert.False(t, ran)
}
