package command

import (
	"bytes"
	"context"
	"image/color"
	"image/gif"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeycumines/whatsdemo/internal/chat"
	"github.com/joeycumines/whatsdemo/internal/config"
	"github.com/joeycumines/whatsdemo/internal/logging"
	"github.com/joeycumines/whatsdemo/internal/raster"
	"github.com/joeycumines/whatsdemo/internal/storage"
	"github.com/joeycumines/whatsdemo/internal/testutil"
)

// smallRecordConfig keeps headless recordings fast: a minimum-size phone,
// no upscaling and a low frame rate.
func smallRecordConfig() *config.Config {
	cfg := config.NewConfig()
	cfg.SetGlobalOption("phone.width", "24")
	cfg.SetGlobalOption("phone.height", "12")
	cfg.SetGlobalOption("record.scale", "1")
	cfg.SetGlobalOption("record.fps", "5")
	cfg.SetGlobalOption("record.ffmpeg", filepath.Join(os.TempDir(), "whatsdemo-no-ffmpeg"))
	return cfg
}

func discardLogger() *slog.Logger {
	return logging.New(logging.Options{}).Logger
}

func TestRecordCommand(t *testing.T) {
	dir := isolate(t)
	out := filepath.Join(dir, "videos")
	require.NoError(t, (&storage.StateStore{Path: filepath.Join(dir, "state.json")}).Save(chat.Script{
		Profile: chat.Profile{Name: "Ana"},
		Messages: []chat.Message{
			{From: chat.RoleUser, Text: "hi"},
			{From: chat.RoleAgent, Text: "hello"},
		},
	}))

	stdout, stderr, err := run(t, NewRecordCommand(smallRecordConfig()),
		"--out", out, "--codec", "image/gif", "--speed", "300ms", "--hold", "0s")
	require.NoError(t, err)

	assert.Contains(t, stderr, "recording 2 messages at 300ms per message")
	assert.Contains(t, stderr, "revealed 1/2")
	assert.Contains(t, stderr, "revealed 2/2")
	require.True(t, strings.HasPrefix(stdout, "Saved "+out+string(filepath.Separator)+"whatsdemo-"), stdout)
	assert.Contains(t, stdout, "(image/gif, ")

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasSuffix(entries[0].Name(), ".gif"))
	data, err := os.ReadFile(filepath.Join(out, entries[0].Name()))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("GIF8")))

	// Frames are quantized onto the palette the rasterizer draws with, so
	// every pixel color survives exactly.
	anim, err := gif.DecodeAll(bytes.NewReader(data))
	require.NoError(t, err)
	require.NotEmpty(t, anim.Image)
	frame := anim.Image[0]
	require.Len(t, frame.Palette, len(raster.Palette))
	for i, c := range raster.Palette {
		assert.Equal(t, color.RGBAModel.Convert(c), color.RGBAModel.Convert(frame.Palette[i]), "index %d", i)
	}
}

func TestRecordCommand_QuietInterrupted(t *testing.T) {
	dir := isolate(t)
	out := filepath.Join(dir, "videos")
	cfg := smallRecordConfig()
	cfg.SetCommandOption("record", "record.codecs", "image/gif")

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	r := NewRegistry()
	r.Register(NewRecordCommand(cfg))
	var stdout, stderr bytes.Buffer
	// The default script at the slowest speed outlasts the context.
	err := r.Run(ctx, "record", []string{"--quiet", "--out", out, "--speed", "2s"}, &stdout, &stderr)
	require.NoError(t, err)

	assert.Empty(t, stderr.String())
	location := strings.TrimSpace(stdout.String())
	assert.Equal(t, out, filepath.Dir(location))
	assert.FileExists(t, location)
}

func TestRecordCommand_FallsBackToGIF(t *testing.T) {
	dir := isolate(t)
	out := filepath.Join(dir, "videos")

	// record.ffmpeg points nowhere, so WebM is unsupported.
	stdout, _, err := run(t, NewRecordCommand(smallRecordConfig()),
		"--out", out, "--codec", "video/webm", "--speed", "300ms", "--hold", "0s", "--quiet")
	require.NoError(t, err)
	location := strings.TrimSpace(stdout)
	assert.Equal(t, ".gif", filepath.Ext(location))
	assert.FileExists(t, location)
}

func TestRecordCommand_EmptyScript(t *testing.T) {
	dir := isolate(t)
	out := filepath.Join(dir, "videos")
	require.NoError(t, (&storage.StateStore{Path: filepath.Join(dir, "state.json")}).Save(chat.Script{
		Profile:  chat.Profile{Name: "Ana"},
		Messages: []chat.Message{},
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r := NewRegistry()
	r.Register(NewRecordCommand(smallRecordConfig()))
	var stdout, stderr bytes.Buffer
	start := time.Now()
	err := r.Run(ctx, "record", []string{"--out", out, "--codec", "image/gif", "--speed", "300ms", "--hold", "500ms"}, &stdout, &stderr)
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 3*time.Second, "record waited for a reveal that never comes")
	assert.Contains(t, stderr.String(), "recording 0 messages")
	assert.NotContains(t, stderr.String(), "interrupted")
	assert.NotContains(t, stderr.String(), "revealed")
	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ".gif", filepath.Ext(entries[0].Name()))
}

func TestCleanupCommand(t *testing.T) {
	dir := isolate(t)
	now := time.Now()
	for i, name := range []string{"whatsdemo-a.gif", "whatsdemo-b.webm", "whatsdemo-c.gif", "other.gif", "whatsdemo-d.txt"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
		mtime := now.Add(-time.Duration(i) * time.Hour)
		require.NoError(t, os.Chtimes(path, mtime, mtime))
	}

	cfg := config.NewConfig()
	out, _, err := run(t, NewCleanupCommand(cfg), "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "No retention limits configured")

	cfg.Retention.MaxCount = 1
	out, _, err = run(t, NewCleanupCommand(cfg), "--dir", dir, "--dry-run")
	require.NoError(t, err)
	assert.Equal(t, "Would remove whatsdemo-b.webm\nWould remove whatsdemo-c.gif\nWould remove 2 recording(s) from "+dir+"\n", out)
	assert.FileExists(t, filepath.Join(dir, "whatsdemo-c.gif"))

	out, _, err = run(t, NewCleanupCommand(cfg), "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Removed 2 recording(s)")
	for name, kept := range map[string]bool{
		"whatsdemo-a.gif":  true,
		"whatsdemo-b.webm": false,
		"whatsdemo-c.gif":  false,
		"other.gif":        true,
		"whatsdemo-d.txt":  true,
	} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.Equal(t, kept, err == nil, name)
	}
}

func TestRecordingExtensions(t *testing.T) {
	s := newStage(smallRecordConfig(), "record", &storage.StateStore{Path: filepath.Join(t.TempDir(), "s.json")}, discardLogger(), stageOverrides{})
	defer s.Close()
	assert.ElementsMatch(t, []string{".gif", ".webm"}, recordingExtensions(s.registry))
}

func TestNewStage_GIFPalette(t *testing.T) {
	s := newStage(smallRecordConfig(), "record", &storage.StateStore{Path: filepath.Join(t.TempDir(), "s.json")}, discardLogger(), stageOverrides{})
	defer s.Close()
	assert.Equal(t, raster.Palette, s.engine.Config().Palette)
}

func TestMaybeStartCleanupScheduler(t *testing.T) {
	dir := isolate(t)
	old := filepath.Join(dir, "whatsdemo-old.gif")
	newer := filepath.Join(dir, "whatsdemo-new.gif")
	require.NoError(t, os.WriteFile(old, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(newer, []byte("x"), 0o644))
	mtime := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(old, mtime, mtime))

	cfg := smallRecordConfig()
	cfg.Retention.MaxCount = 1
	logger := discardLogger()
	s := newStage(cfg, "record", &storage.StateStore{Path: filepath.Join(dir, "state.json")}, logger, stageOverrides{outputDir: dir})
	defer s.Close()

	// disabled
	maybeStartCleanupScheduler(cfg, "record", s, logger)()
	assert.FileExists(t, old)

	cfg.Retention.AutoCleanupEnabled = true
	cfg.Retention.CleanupIntervalHours = 24
	stop := maybeStartCleanupScheduler(cfg, "record", s, logger)
	require.NoError(t, testutil.Poll(context.Background(), func() bool {
		_, err := os.Stat(old)
		return os.IsNotExist(err)
	}, testutil.FileEventTimeout, testutil.PollingInterval))
	stop()
	assert.FileExists(t, newer)
}
