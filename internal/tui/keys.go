package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Up        key.Binding
	Down      key.Binding
	NextPage  key.Binding
	PrevPage  key.Binding
	FirstPage key.Binding
	LastPage  key.Binding
	Larger    key.Binding
	Smaller   key.Binding

	FocusLeft  key.Binding
	FocusRight key.Binding
	Sort       key.Binding
	MultiSort  key.Binding
	Filter     key.Binding
	Clear      key.Binding
	Hide       key.Binding
	ShowAll    key.Binding

	Select      key.Binding
	SelectPage  key.Binding
	ClearSelect key.Binding

	Back    key.Binding
	Forward key.Binding
	Retry   key.Binding
	Help    key.Binding
	Quit    key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Up:        key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:      key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		NextPage:  key.NewBinding(key.WithKeys("right", "n"), key.WithHelp("→/n", "next page")),
		PrevPage:  key.NewBinding(key.WithKeys("left", "p"), key.WithHelp("←/p", "prev page")),
		FirstPage: key.NewBinding(key.WithKeys("home", "g"), key.WithHelp("g", "first page")),
		LastPage:  key.NewBinding(key.WithKeys("end", "G"), key.WithHelp("G", "last page")),
		Larger:    key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+", "more rows")),
		Smaller:   key.NewBinding(key.WithKeys("-"), key.WithHelp("-", "fewer rows")),

		FocusLeft:  key.NewBinding(key.WithKeys("h", "shift+tab"), key.WithHelp("h", "column left")),
		FocusRight: key.NewBinding(key.WithKeys("l", "tab"), key.WithHelp("l", "column right")),
		Sort:       key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "sort")),
		MultiSort:  key.NewBinding(key.WithKeys("S"), key.WithHelp("S", "add sort")),
		Filter:     key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "filter")),
		Clear:      key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "clear filters")),
		Hide:       key.NewBinding(key.WithKeys("H"), key.WithHelp("H", "hide column")),
		ShowAll:    key.NewBinding(key.WithKeys("V"), key.WithHelp("V", "show all columns")),

		Select:      key.NewBinding(key.WithKeys("x", " "), key.WithHelp("x", "select row")),
		SelectPage:  key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "select page")),
		ClearSelect: key.NewBinding(key.WithKeys("X"), key.WithHelp("X", "clear selection")),

		Back:    key.NewBinding(key.WithKeys("[", "backspace"), key.WithHelp("[", "back")),
		Forward: key.NewBinding(key.WithKeys("]"), key.WithHelp("]", "forward")),
		Retry:   key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "retry/refresh")),
		Help:    key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.NextPage, k.PrevPage, k.Sort, k.Filter, k.Select, k.Back, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.NextPage, k.PrevPage, k.FirstPage, k.LastPage, k.Larger, k.Smaller},
		{k.FocusLeft, k.FocusRight, k.Sort, k.MultiSort, k.Filter, k.Clear, k.Hide, k.ShowAll},
		{k.Select, k.SelectPage, k.ClearSelect, k.Back, k.Forward, k.Retry, k.Help, k.Quit},
	}
}

type filterKeyMap struct {
	Up     key.Binding
	Down   key.Binding
	Toggle key.Binding
	Clear  key.Binding
	Close  key.Binding
}

func defaultFilterKeyMap() filterKeyMap {
	return filterKeyMap{
		Up:     key.NewBinding(key.WithKeys("up", "k")),
		Down:   key.NewBinding(key.WithKeys("down", "j")),
		Toggle: key.NewBinding(key.WithKeys(" ", "x", "enter")),
		Clear:  key.NewBinding(key.WithKeys("c")),
		Close:  key.NewBinding(key.WithKeys("esc", "f", "q")),
	}
}
