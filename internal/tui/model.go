// Package tui is the interactive player: the phone preview next to the
// playback and recording controls.
package tui

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/joeycumines/whatsdemo/internal/chat"
	"github.com/joeycumines/whatsdemo/internal/logging"
	"github.com/joeycumines/whatsdemo/internal/playback"
	"github.com/joeycumines/whatsdemo/internal/preview"
	"github.com/joeycumines/whatsdemo/internal/recorder"
	"github.com/joeycumines/whatsdemo/internal/storage"
	"github.com/joeycumines/whatsdemo/internal/termui/slider"
)

// SpeedStep is how much one +/- press changes the reveal interval.
const SpeedStep = 100 * time.Millisecond

const panelWidth = 44

// Options wires the player to its collaborators. Driver, Engine, Scene and
// Surface are required.
type Options struct {
	Driver  *playback.Driver
	Engine  *recorder.Engine
	Scene   *preview.Scene
	Surface *preview.Surface
	// Store persists edits. Optional.
	Store *storage.StateStore
	// Logs feeds the status line. Optional.
	Logs   *logging.Buffer
	Logger *slog.Logger

	PhoneWidth, PhoneHeight int

	Input     io.Reader
	Output    io.Writer
	AltScreen bool
}

type (
	stateMsg      playback.State
	elapsedMsg    time.Duration
	scriptMsg     chat.Script
	recordDoneMsg recorder.Result
)

// Model is the bubbletea model of the player.
type Model struct {
	driver  *playback.Driver
	engine  *recorder.Engine
	scene   *preview.Scene
	surface *preview.Surface
	phone   *preview.Phone
	store   *storage.StateStore
	logs    *logging.Buffer
	logger  *slog.Logger
	// readFile loads import files.
	readFile func(string) ([]byte, error)

	keys     keyMap
	help     help.Model
	input    textinput.Model
	speed    slider.Model
	progress slider.Model

	state     playback.State
	importing bool
	recording bool
	elapsed   time.Duration
	// pending holds an external edit that arrived while recording.
	pending *chat.Script
	status  string
	err     string
	width   int
	height  int
}

// New returns the initial model.
func New(opts Options) Model {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	in := textinput.New()
	in.Placeholder = "path/to/script.json"
	in.Prompt = "import> "
	in.CharLimit = 4096
	in.Width = panelWidth - 10

	return Model{
		driver:   opts.Driver,
		engine:   opts.Engine,
		scene:    opts.Scene,
		surface:  opts.Surface,
		phone:    preview.NewPhone(nil, opts.PhoneWidth, opts.PhoneHeight),
		store:    opts.Store,
		logs:     opts.Logs,
		logger:   logger,
		readFile: os.ReadFile,
		keys:     keys,
		help:     help.New(),
		input:    in,
		speed: slider.New(
			slider.WithRange(int(playback.MinSpeed/time.Millisecond), int(playback.MaxSpeed/time.Millisecond)),
			slider.WithWidth(panelWidth-12),
		),
		progress: slider.New(slider.WithWidth(panelWidth-12), slider.WithChars("█", "█", "░")),
		state:    opts.Driver.State(),
	}
}

// Run starts the player and blocks until the user quits or ctx is done.
// Driver, engine and watcher events reach the model through the program.
func Run(ctx context.Context, opts Options, watch func(onChange func(chat.Script)) (io.Closer, error)) error {
	programOpts := []tea.ProgramOption{tea.WithContext(ctx)}
	if opts.Input != nil {
		programOpts = append(programOpts, tea.WithInput(opts.Input))
	}
	if opts.Output != nil {
		programOpts = append(programOpts, tea.WithOutput(opts.Output))
	}
	if opts.AltScreen {
		programOpts = append(programOpts, tea.WithAltScreen())
	}
	p := tea.NewProgram(New(opts), programOpts...)

	opts.Driver.OnChange(func(s playback.State) { p.Send(stateMsg(s)) })
	opts.Engine.OnElapsed(func(d time.Duration) { p.Send(elapsedMsg(d)) })
	if watch != nil {
		w, err := watch(func(s chat.Script) { p.Send(scriptMsg(s)) })
		if err != nil {
			return fmt.Errorf("failed to watch state: %w", err)
		}
		defer w.Close()
	}

	_, err := p.Run()
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("player failed: %w", err)
	}
	return nil
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		return m, nil

	case stateMsg:
		m.state = playback.State(msg)
		return m, nil

	case elapsedMsg:
		if m.recording {
			m.elapsed = time.Duration(msg)
		}
		return m, nil

	case scriptMsg:
		script := chat.Script(msg)
		if m.recording {
			m.pending = &script
			return m, nil
		}
		return m.applyExternal(script), nil

	case recordDoneMsg:
		return m.recordDone(recorder.Result(msg)), nil

	case tea.KeyMsg:
		if m.importing {
			return m.updateImport(msg)
		}
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.recording {
		for _, b := range m.keys.editKeys() {
			if key.Matches(msg, b) {
				m.status = "editing is disabled while recording"
				return m, nil
			}
		}
	}

	m.err = ""
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	case key.Matches(msg, m.keys.Play):
		m.driver.Toggle()
	case key.Matches(msg, m.keys.Next):
		m.driver.Next()
	case key.Matches(msg, m.keys.Prev):
		m.driver.Prev()
	case key.Matches(msg, m.keys.Reset):
		m.driver.Reset()
	case key.Matches(msg, m.keys.Slower):
		m.driver.SetSpeed(m.state.Speed + SpeedStep)
	case key.Matches(msg, m.keys.Faster):
		m.driver.SetSpeed(m.state.Speed - SpeedStep)
	case key.Matches(msg, m.keys.Record):
		return m.toggleRecording()
	case key.Matches(msg, m.keys.Delete):
		script := m.scene.Script()
		if len(script.Messages) == 0 {
			m.status = "no messages to delete"
			break
		}
		script.Messages = chat.Delete(script.Messages, len(script.Messages)-1)
		m = m.applyEdit(script, false)
		m.status = "deleted the last message"
	case key.Matches(msg, m.keys.Import):
		m.importing = true
		m.input.SetValue("")
		cmd := m.input.Focus()
		return m, cmd
	case key.Matches(msg, m.keys.Example):
		m = m.applyEdit(chat.ExampleScript(), true)
		m.status = "loaded the example"
	}
	m.state = m.driver.State()
	return m, nil
}

func (m Model) updateImport(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.importing = false
		m.input.Blur()
		return m, nil
	case tea.KeyEnter:
		m.importing = false
		m.input.Blur()
		return m.importFile(strings.TrimSpace(m.input.Value())), nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) importFile(path string) Model {
	if path == "" {
		m.err = chat.ErrEmptyImport.Error()
		return m
	}
	data, err := m.readFile(path)
	if err != nil {
		m.err = fmt.Sprintf("failed to read %s: %v", path, err)
		return m
	}
	script, err := chat.ParseImport(path, data)
	if err != nil {
		m.err = err.Error()
		return m
	}
	m = m.applyEdit(script, true)
	m.status = fmt.Sprintf("imported %d messages from %s", len(script.Messages), path)
	return m
}

// applyEdit installs script, persists it and, for whole-script loads,
// rewinds playback.
func (m Model) applyEdit(script chat.Script, rewind bool) Model {
	m.scene.SetScript(script)
	if rewind {
		m.driver.Load(len(script.Messages))
	} else {
		m.driver.SetLength(len(script.Messages))
	}
	m.state = m.driver.State()
	if m.store != nil {
		if err := m.store.Save(script); err != nil {
			m.logger.Error("failed to save state", "error", err)
			m.err = "failed to save state: " + err.Error()
		}
	}
	return m
}

// applyExternal takes in a script edited outside the player. The cursor is
// kept, clamped to the new length.
func (m Model) applyExternal(script chat.Script) Model {
	if script.Equal(m.scene.Script()) {
		return m
	}
	m.scene.SetScript(script)
	m.driver.SetLength(len(script.Messages))
	m.state = m.driver.State()
	m.status = "reloaded the script from disk"
	return m
}

func (m Model) toggleRecording() (tea.Model, tea.Cmd) {
	if m.recording {
		m.engine.Stop()
		m.status = "finalizing the recording..."
		return m, nil
	}
	if m.engine.Recording() {
		m.status = "still finalizing the previous recording"
		return m, nil
	}
	done := make(chan recorder.Result, 1)
	if err := m.engine.Start(m.surface, func(r recorder.Result) { done <- r }); err != nil {
		m.err = "recording failed: " + err.Error()
		return m, nil
	}
	if !m.engine.Recording() {
		return m, nil
	}
	m.recording = true
	m.elapsed = 0
	m.status = "recording"
	return m, func() tea.Msg { return recordDoneMsg(<-done) }
}

func (m Model) recordDone(res recorder.Result) Model {
	m.recording = false
	m.elapsed = 0
	if m.pending != nil {
		m = m.applyExternal(*m.pending)
		m.pending = nil
	}
	if res.Err != nil {
		m.err = "recording failed: " + res.Err.Error()
	}
	if res.Location != "" {
		m.status = fmt.Sprintf("saved %s (%d KiB, %s)", res.Location, (res.Size+1023)/1024, res.Duration.Round(100*time.Millisecond))
	}
	return m
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("35"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	recStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("250")).Italic(true)
	panelStyle  = lipgloss.NewStyle().Padding(0, 2).Width(panelWidth)
)

func (m Model) View() string {
	phone := m.phone.Render(m.scene.Snapshot())
	return lipgloss.JoinHorizontal(lipgloss.Top, phone, panelStyle.Render(m.panel()))
}

func (m Model) panel() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("WhatsDemo player"))
	b.WriteString("\n\n")

	play := "▶ paused"
	if m.state.Playing {
		play = "⏸ playing"
	}
	b.WriteString(play + "\n\n")

	ms := int(m.state.Speed / time.Millisecond)
	fmt.Fprintf(&b, "%s %d ms\n", labelStyle.Render("interval"), ms)
	b.WriteString(m.speed.SetValue(ms).View() + "\n\n")

	progress := m.progress
	progress.Max = m.state.Length
	b.WriteString(labelStyle.Render(fmt.Sprintf("%d/%d visible", m.state.VisibleCount, m.state.Length)) + "\n")
	b.WriteString(progress.SetValue(m.state.VisibleCount).View() + "\n\n")

	switch {
	case m.recording && m.engine.Stopping():
		b.WriteString(recStyle.Render("● finalizing...") + "\n")
	case m.recording:
		b.WriteString(recStyle.Render("● REC "+formatElapsed(m.elapsed)) + "\n")
	default:
		b.WriteString(labelStyle.Render("○ not recording") + "\n")
	}
	b.WriteString("\n")

	if m.importing {
		b.WriteString(m.input.View() + "\n")
	}
	if m.err != "" {
		b.WriteString(errStyle.Render(m.err) + "\n")
	} else if m.status != "" {
		b.WriteString(statusStyle.Render(m.status) + "\n")
	}
	if m.logs != nil {
		if e, ok := m.logs.Last(slog.LevelWarn); ok {
			b.WriteString(errStyle.Render(e.String()) + "\n")
		}
	}
	b.WriteString("\n" + m.help.View(m.keys))
	return b.String()
}

// formatElapsed renders d as mm:ss.t.
func formatElapsed(d time.Duration) string {
	d = d.Truncate(100 * time.Millisecond)
	return fmt.Sprintf("%02d:%02d.%d", int(d/time.Minute), int(d/time.Second)%60, int(d/(100*time.Millisecond))%10)
}
