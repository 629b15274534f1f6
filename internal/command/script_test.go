package command

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeycumines/whatsdemo/internal/chat"
	"github.com/joeycumines/whatsdemo/internal/config"
	"github.com/joeycumines/whatsdemo/internal/storage"
)

func savedScript(t *testing.T, path string) *chat.Script {
	t.Helper()
	return (&storage.StateStore{Path: path}).Load()
}

func TestImportCommand(t *testing.T) {
	dir := isolate(t)
	state := filepath.Join(dir, "state.json")
	cfg := config.NewConfig()

	for _, tc := range []struct {
		name, file, data string
	}{
		{"json", "chat.json", `{"profile":{"name":"Ana","avatarUrl":""},"messages":[{"from":"user","text":"hi"}]}`},
		{"yaml", "chat.yaml", "profile:\n  name: Ana\n  avatarUrl: ''\nmessages:\n  - from: user\n    text: hi\n"},
		{"toml", "chat.toml", "[profile]\nname = \"Ana\"\navatarUrl = \"\"\n\n[[messages]]\nfrom = \"user\"\ntext = \"hi\"\n"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if err := os.Remove(state); err != nil {
				require.ErrorIs(t, err, os.ErrNotExist)
			}
			path := filepath.Join(dir, tc.file)
			require.NoError(t, os.WriteFile(path, []byte(tc.data), 0o644))

			out, _, err := run(t, NewImportCommand(cfg, nil), path)
			require.NoError(t, err)
			assert.Equal(t, `Imported 1 messages for "Ana" into `+state+"\n", out)

			got := savedScript(t, state)
			require.NotNil(t, got)
			assert.Equal(t, chat.Script{
				Profile:  chat.Profile{Name: "Ana"},
				Messages: []chat.Message{{From: chat.RoleUser, Text: "hi"}},
			}, *got)
		})
	}
}

func TestImportCommand_Stdin(t *testing.T) {
	dir := isolate(t)
	stdin := strings.NewReader("profile: {name: Bo, avatarUrl: ''}\nmessages: []\n")

	out, _, err := run(t, NewImportCommand(config.NewConfig(), stdin), "--format", "yaml", "-")
	require.NoError(t, err)
	assert.Contains(t, out, `Imported 0 messages for "Bo"`)

	got := savedScript(t, filepath.Join(dir, "state.json"))
	require.NotNil(t, got)
	assert.Equal(t, "Bo", got.Profile.Name)
	assert.Empty(t, got.Messages)
}

func TestImportCommand_Errors(t *testing.T) {
	dir := isolate(t)
	cfg := config.NewConfig()

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"profile":{"name":"A","avatarUrl":""},"messages":[{"from":"bot","text":"x"}]}`), 0o644))
	_, stderr, err := run(t, NewImportCommand(cfg, nil), bad)
	var importErr *chat.ImportError
	require.ErrorAs(t, err, &importErr)
	assert.Equal(t, "invalid message at position 1", importErr.Message)
	assert.True(t, strings.HasPrefix(stderr, "invalid message at position 1: "), stderr)

	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(empty, []byte("  \n"), 0o644))
	_, _, err = run(t, NewImportCommand(cfg, nil), empty)
	assert.ErrorIs(t, err, chat.ErrEmptyImport)

	_, _, err = run(t, NewImportCommand(cfg, nil), filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, stderr, err = run(t, NewImportCommand(cfg, nil))
	assert.Error(t, err)
	assert.Contains(t, stderr, "Usage: whatsdemo import")

	_, err = os.Stat(filepath.Join(dir, "state.json"))
	assert.ErrorIs(t, err, os.ErrNotExist, "failed imports leave the state untouched")
}

func TestExampleCommand(t *testing.T) {
	dir := isolate(t)
	cfg := config.NewConfig()

	out, _, err := run(t, NewExampleCommand(cfg), "--print")
	require.NoError(t, err)
	var printed chat.Script
	require.NoError(t, json.Unmarshal([]byte(out), &printed))
	assert.Equal(t, chat.ExampleScript(), printed)
	assert.Nil(t, savedScript(t, filepath.Join(dir, "state.json")))

	other := filepath.Join(dir, "other.json")
	out, _, err = run(t, NewExampleCommand(cfg), "--state", other)
	require.NoError(t, err)
	assert.Equal(t, "Loaded the example (4 messages) into "+other+"\n", out)
	got := savedScript(t, other)
	require.NotNil(t, got)
	assert.True(t, got.Equal(chat.ExampleScript()))
}

func TestMessageCommand(t *testing.T) {
	dir := isolate(t)
	state := filepath.Join(dir, "state.json")
	cfg := config.NewConfig()
	require.NoError(t, (&storage.StateStore{Path: state}).Save(chat.Script{
		Profile: chat.Profile{Name: "Ana"},
	}))

	msg := func(args ...string) string {
		t.Helper()
		out, _, err := run(t, NewMessageCommand(cfg), args...)
		require.NoError(t, err)
		return out
	}

	assert.Equal(t, "Ana (0 messages)\n", msg())
	msg("add", "user", "first")
	msg("add", "AGENT", "second", "reply")
	assert.Equal(t, "Ana (2 messages)\n  1  user   first\n  2  agent  second reply\n", msg("list"))

	assert.Equal(t, "Ana (2 messages)\n  1  agent  second reply\n  2  user   first\n", msg("up", "2"))
	assert.Equal(t, "Ana (2 messages)\n  1  user   first\n  2  agent  second reply\n", msg("down", "1"))
	assert.Equal(t, "Ana (1 messages)\n  1  agent  second reply\n", msg("rm", "1"))
	assert.Equal(t, "Bea (1 messages)\n  1  agent  second reply\n", msg("profile", "Bea", "https://example.com/a.png"))

	got := savedScript(t, state)
	require.NotNil(t, got)
	assert.Equal(t, chat.Profile{Name: "Bea", AvatarURL: "https://example.com/a.png"}, got.Profile)

	for _, args := range [][]string{
		{"add", "bot", "x"},
		{"add", "user"},
		{"add", "user", " "},
		{"delete", "0"},
		{"delete", "2"},
		{"up", "one"},
		{"profile"},
		{"shuffle"},
	} {
		_, _, err := run(t, NewMessageCommand(cfg), args...)
		assert.Error(t, err, "%v", args)
	}
	assert.Equal(t, got, savedScript(t, state), "rejected edits are not saved")
}

func TestMessageCommand_DefaultScript(t *testing.T) {
	isolate(t)
	out, _, err := run(t, NewMessageCommand(config.NewConfig()), "list")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "MovIA Demo (3 messages)\n"), out)
}
