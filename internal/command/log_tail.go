package command

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/joeycumines/whatsdemo/internal/config"
)

// LogCommand prints the end of the JSON log written by play and record,
// rendered one record per line, and optionally follows it.
type LogCommand struct {
	*BaseCommand
	config *config.Config

	follow bool
	raw    bool
	lines  int
	file   string
}

func NewLogCommand(cfg *config.Config) *LogCommand {
	return &LogCommand{
		BaseCommand: NewBaseCommand("log", "View and tail the log file", "log [tail] [options]"),
		config:      cfg,
	}
}

func (c *LogCommand) SetupFlags(fs *flag.FlagSet) {
	for _, name := range []string{"f", "follow"} {
		fs.BoolVar(&c.follow, name, false, "Keep printing records as they are appended")
	}
	fs.IntVar(&c.lines, "n", 10, "Records to print from the end of the log")
	fs.StringVar(&c.file, "file", "", "Log file to read instead of log.file")
	fs.BoolVar(&c.raw, "raw", false, "Print the JSON records unchanged")
}

func (c *LogCommand) Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	// "log tail" is an alias for "log --follow".
	if len(args) > 0 && args[0] == "tail" {
		c.follow = true
		args = args[1:]
	}
	if len(args) > 0 {
		_, _ = fmt.Fprintf(stderr, "unknown subcommand: %s\n", args[0])
		return fmt.Errorf("unknown subcommand: %s", args[0])
	}

	logPath := c.file
	if logPath == "" {
		logPath = config.DefaultSchema().Resolve(c.config, "log.file")
	}
	if logPath == "" {
		_, _ = fmt.Fprintln(stderr, "No log file configured. Use --file or set log.file in config.")
		return fmt.Errorf("no log file configured")
	}

	emit := func(line string) {
		if !c.raw {
			line = formatLogLine(line)
		}
		_, _ = fmt.Fprintln(stdout, line)
	}

	f, err := os.Open(logPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		if !c.follow {
			_, _ = fmt.Fprintf(stderr, "Log file does not exist: %s\n", logPath)
			return fmt.Errorf("log file not found: %s", logPath)
		}
		_, _ = fmt.Fprintf(stderr, "Waiting for log file: %s\n", logPath)
	}

	var pos int64
	if f != nil {
		for _, line := range readLastNLines(f, c.lines) {
			emit(line)
		}
		pos, err = f.Seek(0, io.SeekEnd)
		_ = f.Close()
		if err != nil {
			return fmt.Errorf("failed to seek to end: %w", err)
		}
	}

	if !c.follow {
		return nil
	}
	return followFile(ctx, logPath, pos, emit, stderr)
}

// readLastNLines returns the final n lines of r, holding at most n lines in
// memory. Lines longer than 1 MiB end the scan.
func readLastNLines(r io.Reader, n int) []string {
	if n <= 0 {
		return nil
	}
	tail := make([]string, 0, n)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(nil, 1<<20)
	for scanner.Scan() {
		if len(tail) == n {
			copy(tail, tail[1:])
			tail = tail[:n-1]
		}
		tail = append(tail, scanner.Text())
	}
	return tail
}

// followFile prints lines appended to path after offset pos until ctx is
// done. The directory is watched so that rotation (rename plus recreate) and
// truncation restart reading from the top of the new file.
func followFile(ctx context.Context, path string, pos int64, emit func(string), stderr io.Writer) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch log directory: %w", err)
	}

	var partial string
	drain := func() {
		info, err := os.Stat(path)
		if err != nil {
			return
		}
		if info.Size() < pos {
			_, _ = fmt.Fprintln(stderr, "Log file rotated, reading from the start")
			pos, partial = 0, ""
		}
		f, err := os.Open(path)
		if err != nil {
			return
		}
		defer f.Close()
		if _, err := f.Seek(pos, io.SeekStart); err != nil {
			return
		}
		data, err := io.ReadAll(f)
		if err != nil {
			return
		}
		pos += int64(len(data))
		text := partial + string(data)
		lines := strings.Split(text, "\n")
		partial = lines[len(lines)-1]
		for _, line := range lines[:len(lines)-1] {
			emit(line)
		}
	}

	drain()
	name := filepath.Base(path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				pos, partial = 0, ""
				continue
			}
			drain()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			_, _ = fmt.Fprintf(stderr, "watch error: %v\n", err)
		}
	}
}

// formatLogLine renders one slog JSON record as
// "15:04:05.000 LEVEL message key=value ...". Lines that are not JSON
// objects are returned unchanged.
func formatLogLine(line string) string {
	var rec map[string]any
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		return line
	}
	var b strings.Builder
	if ts, ok := rec["time"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			b.WriteString(t.Local().Format("15:04:05.000"))
			b.WriteByte(' ')
		}
	}
	if level, ok := rec["level"].(string); ok {
		fmt.Fprintf(&b, "%-5s ", level)
	}
	if msg, ok := rec["msg"].(string); ok {
		b.WriteString(msg)
	}
	delete(rec, "time")
	delete(rec, "level")
	delete(rec, "msg")
	for _, k := range slices.Sorted(maps.Keys(rec)) {
		v := rec[k]
		if s, ok := v.(string); ok {
			fmt.Fprintf(&b, " %s=%s", k, s)
			continue
		}
		enc, _ := json.Marshal(v)
		fmt.Fprintf(&b, " %s=%s", k, enc)
	}
	return b.String()
}
