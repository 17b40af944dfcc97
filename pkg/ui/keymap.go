package ui

import "github.com/charmbracelet/bubbles/key"

type KeyMap struct {
	SubmitMessage  key.Binding
	UnfocusMessage key.Binding
	FocusMessage   key.Binding
	ScrollUp       key.Binding
	ScrollDown     key.Binding
	DismissError   key.Binding

	Help key.Binding
	Quit key.Binding
}

var DefaultKeyMap = KeyMap{
	SubmitMessage: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "send"),
	),
	UnfocusMessage: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "scroll history"),
	),
	FocusMessage: key.NewBinding(
		key.WithKeys("i", "enter"),
		key.WithHelp("i", "write"),
	),
	ScrollUp: key.NewBinding(
		key.WithKeys("pgup", "shift+up"),
		key.WithHelp("pgup", "scroll up"),
	),
	ScrollDown: key.NewBinding(
		key.WithKeys("pgdown", "shift+down"),
		key.WithHelp("pgdown", "scroll down"),
	),
	DismissError: key.NewBinding(
		key.WithKeys("esc", "enter"),
		key.WithHelp("esc", "dismiss"),
	),
	Help: key.NewBinding(
		key.WithKeys("ctrl+h"),
		key.WithHelp("ctrl+h", "help"),
	),
	Quit: key.NewBinding(
		key.WithKeys("ctrl+c"),
		key.WithHelp("ctrl+c", "quit"),
	),
}

func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.SubmitMessage, k.UnfocusMessage, k.FocusMessage, k.DismissError, k.Help, k.Quit}
}

func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.SubmitMessage, k.UnfocusMessage, k.FocusMessage},
		{k.ScrollUp, k.ScrollDown, k.DismissError},
		{k.Help, k.Quit},
	}
}
