// Package preview renders a chat conversation inside a phone frame.
//
// The same Phone renders to the interactive terminal and, through a Surface,
// to pixels for recording. A Scene holds the conversation and playback state
// both of them draw from.
package preview

import (
	"io"
	"strings"
	"unicode"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"

	"github.com/joeycumines/whatsdemo/internal/chat"
)

// Minimum and default phone sizes, in cells.
const (
	MinWidth      = 24
	MinHeight     = 12
	DefaultWidth  = 40
	DefaultHeight = 30
)

// Bubbles never take more than this share of the chat width.
const bubbleShare = 0.75

const emptyHint = "No messages yet"

var (
	colorBezel    = lipgloss.Color("244")
	colorStatus   = lipgloss.Color("232")
	colorHeader   = lipgloss.Color("29")
	colorChat     = lipgloss.Color("236")
	colorUser     = lipgloss.Color("240")
	colorAgent    = lipgloss.Color("28")
	colorText     = lipgloss.Color("255")
	colorMuted    = lipgloss.Color("250")
	colorInput    = lipgloss.Color("238")
	colorAvatarBg = lipgloss.Color("255")
	colorAvatarFg = lipgloss.Color("29")
)

// Snapshot is what the phone shows: the first Visible messages of the
// conversation.
type Snapshot struct {
	Profile  chat.Profile
	Messages []chat.Message
	Visible  int
	// Typing shows "typing..." instead of "online" in the header.
	Typing bool
}

// Phone renders snapshots as a fixed-size block of styled terminal text.
type Phone struct {
	width, height int
	r             *lipgloss.Renderer
}

// NewPhone returns a phone of width x height cells (raised to MinWidth x
// MinHeight) styled by r. A nil renderer means lipgloss.DefaultRenderer.
func NewPhone(r *lipgloss.Renderer, width, height int) *Phone {
	if r == nil {
		r = lipgloss.DefaultRenderer()
	}
	return &Phone{width: max(width, MinWidth), height: max(height, MinHeight), r: r}
}

// RasterRenderer returns a renderer that always emits 256-color SGR
// sequences, whatever the attached terminal supports, so its output can be
// rasterized.
func RasterRenderer() *lipgloss.Renderer {
	r := lipgloss.NewRenderer(io.Discard)
	r.SetColorProfile(termenv.ANSI256)
	r.SetHasDarkBackground(true)
	return r
}

// Size returns the phone size in cells.
func (p *Phone) Size() (width, height int) {
	return p.width, p.height
}

// Render draws s. The result always has exactly Size() cells.
func (p *Phone) Render(s Snapshot) string {
	inner := p.width - 2
	chatHeight := p.height - 2 - 4

	lines := make([]string, 0, p.height-2)
	lines = append(lines, p.statusBar(inner))
	lines = append(lines, p.header(s, inner)...)
	lines = append(lines, p.chat(s, inner, chatHeight)...)
	lines = append(lines, p.inputBar(inner))

	return p.r.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorBezel).
		Render(strings.Join(lines, "\n"))
}

func (p *Phone) statusBar(w int) string {
	st := p.r.NewStyle().Background(colorStatus).Foreground(colorText)
	return p.spread(" 9:41", "100% ", w, st)
}

func (p *Phone) header(s Snapshot, w int) []string {
	bg := p.r.NewStyle().Background(colorHeader).Foreground(colorText)
	avatar := p.r.NewStyle().Background(colorAvatarBg).Foreground(colorAvatarFg).Bold(true).
		Render(" " + initial(s.Profile.DisplayName()) + " ")
	name := bg.Bold(true).Render(" " + s.Profile.DisplayName())
	status := "online"
	if s.Typing {
		status = "typing..."
	}
	return []string{
		p.fit(bg.Render(" ")+avatar+name, w, bg),
		p.fit(bg.Render("     ")+bg.Foreground(colorMuted).Render(status), w, bg),
	}
}

func (p *Phone) inputBar(w int) string {
	st := p.r.NewStyle().Background(colorInput).Foreground(colorMuted)
	return p.spread(" Type a message", "> ", w, st)
}

// chat lays out the visible bubbles and keeps the newest one in view.
func (p *Phone) chat(s Snapshot, w, h int) []string {
	bg := p.r.NewStyle().Background(colorChat)
	visible := chat.Visible(s.Messages, s.Visible)

	var lines []string
	if len(visible) == 0 {
		hint := p.r.NewStyle().Background(colorChat).Foreground(colorMuted).Italic(true).Render(emptyHint)
		lines = append(lines, "", p.r.PlaceHorizontal(w, lipgloss.Center, hint, lipgloss.WithWhitespaceBackground(colorChat)))
	}
	for _, m := range visible {
		lines = append(lines, "")
		lines = append(lines, p.bubble(m, w, bg)...)
	}

	if len(lines) > h {
		lines = lines[len(lines)-h:]
	}
	for len(lines) < h {
		lines = append(lines, "")
	}
	for i, l := range lines {
		lines[i] = p.fit(l, w, bg)
	}
	return lines
}

// bubble renders one message as full-width lines: user messages hug the left
// edge, agent messages the right.
func (p *Phone) bubble(m chat.Message, w int, bg lipgloss.Style) []string {
	maxWidth := max(int(float64(w)*bubbleShare), 6)
	text := ansi.Wrap(strings.TrimSpace(m.Text), maxWidth-2, "")

	st := p.r.NewStyle().Foreground(colorText).Padding(0, 1)
	if m.From == chat.RoleAgent {
		st = st.Background(colorAgent)
	} else {
		st = st.Background(colorUser)
	}
	block := strings.Split(st.Render(text), "\n")

	out := make([]string, len(block))
	for i, l := range block {
		gap := max(w-2-ansi.StringWidth(l), 0)
		if m.From == chat.RoleAgent {
			out[i] = bg.Render(strings.Repeat(" ", gap+1)) + l + bg.Render(" ")
		} else {
			out[i] = bg.Render(" ") + l + bg.Render(strings.Repeat(" ", gap+1))
		}
	}
	return out
}

// fit truncates or pads s to exactly w cells, padding with fill.
func (p *Phone) fit(s string, w int, fill lipgloss.Style) string {
	s = ansi.Truncate(s, w, "")
	if pad := w - ansi.StringWidth(s); pad > 0 {
		s += fill.Render(strings.Repeat(" ", pad))
	}
	return s
}

// spread renders left and right aligned to the edges of a w cell line.
func (p *Phone) spread(left, right string, w int, st lipgloss.Style) string {
	gap := w - ansi.StringWidth(left) - ansi.StringWidth(right)
	if gap < 1 {
		return p.fit(st.Render(left), w, st)
	}
	return st.Render(left + strings.Repeat(" ", gap) + right)
}

func initial(name string) string {
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return string(unicode.ToUpper(r))
		}
	}
	return "?"
}
