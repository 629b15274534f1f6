package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Play    key.Binding
	Next    key.Binding
	Prev    key.Binding
	Reset   key.Binding
	Slower  key.Binding
	Faster  key.Binding
	Record  key.Binding
	Delete  key.Binding
	Import  key.Binding
	Example key.Binding
	Help    key.Binding
	Quit    key.Binding
}

var keys = keyMap{
	Play:    key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "play/pause")),
	Next:    key.NewBinding(key.WithKeys("n", "right", "l"), key.WithHelp("n/→", "next")),
	Prev:    key.NewBinding(key.WithKeys("p", "left", "h"), key.WithHelp("p/←", "prev")),
	Reset:   key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reset")),
	Slower:  key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+", "slower")),
	Faster:  key.NewBinding(key.WithKeys("-", "_"), key.WithHelp("-", "faster")),
	Record:  key.NewBinding(key.WithKeys("R"), key.WithHelp("R", "record/stop")),
	Delete:  key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "delete last message")),
	Import:  key.NewBinding(key.WithKeys("i"), key.WithHelp("i", "import file")),
	Example: key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "load example")),
	Help:    key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
	Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Play, k.Next, k.Prev, k.Record, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Play, k.Next, k.Prev, k.Reset},
		{k.Slower, k.Faster, k.Record},
		{k.Delete, k.Import, k.Example},
		{k.Help, k.Quit},
	}
}

// editKeys are suspended while recording.
func (k keyMap) editKeys() []key.Binding {
	return []key.Binding{k.Delete, k.Import, k.Example}
}
