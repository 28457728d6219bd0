package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Cancel      key.Binding
	Undo        key.Binding
	Redo        key.Binding
	Discard     key.Binding
	Toggle      key.Binding
	EditText    key.Binding
	Instruction key.Binding
	Commit      key.Binding
	History     key.Binding
	Reload      key.Binding
	Quit        key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		Cancel:      key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),
		Undo:        key.NewBinding(key.WithKeys("u"), key.WithHelp("u", "undo")),
		Redo:        key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "redo")),
		Discard:     key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "discard")),
		Toggle:      key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "include")),
		EditText:    key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "text")),
		Instruction: key.NewBinding(key.WithKeys("i"), key.WithHelp("i", "instruct")),
		Commit:      key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "commit")),
		History:     key.NewBinding(key.WithKeys("h"), key.WithHelp("h", "history")),
		Reload:      key.NewBinding(key.WithKeys("R"), key.WithHelp("R", "reload")),
		Quit:        key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Undo, k.Redo, k.EditText, k.Instruction, k.Commit, k.History, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Cancel, k.Undo, k.Redo},
		{k.Discard, k.Toggle, k.History},
		{k.EditText, k.Instruction, k.Commit},
		{k.Reload, k.Quit},
	}
}
