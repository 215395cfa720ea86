package tui

// Keybinding constants
const (
	KeyTab       = "tab"
	KeyShiftTab  = "shift+tab"
	KeyQuit      = "q"
	KeyCtrlC     = "ctrl+c"
	KeyEsc       = "esc"
	KeyPane1     = "1"
	KeyPane2     = "2"
	KeyRecompute = "r"
	KeySettings  = "s"
)

// HelpView returns a one-line help bar with common keybindings.
func HelpView() string {
	return StyleHelp.Render("Tab: cycle focus | 1/2: jump to pane | j/k: scroll | r: recompute | s: settings | q: quit")
}
