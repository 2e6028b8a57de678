package ui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ErrCancelled is returned when the operator dismisses a prompt with esc or ctrl+c.
var ErrCancelled = errors.New("prompt cancelled")

var (
	promptTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.AdaptiveColor{Light: "#2E7D32", Dark: "#81C784"})

	promptSelectedStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.AdaptiveColor{Light: "#00AA00", Dark: "#00FF00"})

	promptUnselectedStyle = lipgloss.NewStyle().
				Foreground(lipgloss.AdaptiveColor{Light: "#666666", Dark: "#888888"})

	promptCursorStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.AdaptiveColor{Light: "#2E7D32", Dark: "#81C784"})

	promptDimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#999999", Dark: "#666666"})
)

// ============================================================================
// Yes/No Prompt
// ============================================================================

type yesNoModel struct {
	question  string
	selected  bool
	confirmed bool
	cancelled bool
}

func (m yesNoModel) Init() tea.Cmd {
	return nil
}

func (m yesNoModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "left", "h", "y", "Y":
			m.selected = true
		case "right", "l", "n", "N":
			m.selected = false
		case "tab":
			m.selected = !m.selected
		case "enter":
			m.confirmed = true
			return m, tea.Quit
		case "ctrl+c", "esc":
			m.cancelled = true
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m yesNoModel) View() string {
	if m.confirmed || m.cancelled {
		return ""
	}
	yes, no := promptUnselectedStyle.Render("Yes"), promptUnselectedStyle.Render("No")
	yesCursor, noCursor := "  ", "  "
	if m.selected {
		yes = promptSelectedStyle.Render("Yes")
		yesCursor = promptCursorStyle.Render("❯ ")
	} else {
		no = promptSelectedStyle.Render("No")
		noCursor = promptCursorStyle.Render("❯ ")
	}

	var b strings.Builder
	b.WriteString(promptTitleStyle.Render("? "+m.question) + "\n")
	b.WriteString(yesCursor + yes + "    " + noCursor + no + "\n")
	b.WriteString(promptDimStyle.Render("  ← → to select • enter to confirm • esc to cancel"))
	return b.String()
}

// RunYesNoPrompt asks a yes/no question with arrow-key selection.
func RunYesNoPrompt(question string, defaultYes bool) (bool, error) {
	model, err := tea.NewProgram(yesNoModel{question: question, selected: defaultYes}).Run()
	if err != nil {
		return false, err
	}
	m := model.(yesNoModel)
	if m.cancelled {
		return false, ErrCancelled
	}
	return m.selected, nil
}

// ============================================================================
// List Selection Prompt
// ============================================================================

type selectModel struct {
	title     string
	options   []string
	cursor    int
	confirmed bool
	cancelled bool
}

func (m selectModel) Init() tea.Cmd {
	return nil
}

func (m selectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.options)-1 {
				m.cursor++
			}
		case "enter":
			m.confirmed = true
			return m, tea.Quit
		case "ctrl+c", "esc", "q":
			m.cancelled = true
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m selectModel) View() string {
	if m.confirmed || m.cancelled {
		return ""
	}
	var b strings.Builder
	b.WriteString(promptTitleStyle.Render("? "+m.title) + "\n")
	for i, opt := range m.options {
		if i == m.cursor {
			b.WriteString(promptCursorStyle.Render("❯ ") + promptSelectedStyle.Render(opt) + "\n")
			continue
		}
		b.WriteString("  " + promptUnselectedStyle.Render(opt) + "\n")
	}
	b.WriteString(promptDimStyle.Render("  ↑ ↓ to navigate • enter to select • esc to cancel"))
	return b.String()
}

// RunSelectPrompt lets the operator pick one option and returns its index.
func RunSelectPrompt(title string, options []string) (int, error) {
	model, err := tea.NewProgram(selectModel{title: title, options: options}).Run()
	if err != nil {
		return 0, err
	}
	m := model.(selectModel)
	if m.cancelled {
		return 0, ErrCancelled
	}
	return m.cursor, nil
}

// ============================================================================
// Text Input Prompt
// ============================================================================

type textInputModel struct {
	title      string
	defaultVal string
	input      textinput.Model
	confirmed  bool
	cancelled  bool
}

func newTextInputModel(title, defaultVal string) textInputModel {
	ti := textinput.New()
	ti.Placeholder = defaultVal
	ti.Focus()
	ti.CharLimit = 256
	ti.Width = 50
	return textInputModel{title: title, defaultVal: defaultVal, input: ti}
}

func (m textInputModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m textInputModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "enter":
			m.confirmed = true
			return m, tea.Quit
		case "ctrl+c", "esc":
			m.cancelled = true
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m textInputModel) View() string {
	if m.confirmed || m.cancelled {
		return ""
	}
	var b strings.Builder
	b.WriteString(promptTitleStyle.Render("? "+m.title) + "\n")
	b.WriteString("  " + m.input.View() + "\n")
	if m.defaultVal != "" && m.input.Value() == "" {
		b.WriteString(promptDimStyle.Render(fmt.Sprintf("  Press enter to use: %s", m.defaultVal)) + "\n")
	}
	b.WriteString(promptDimStyle.Render("  enter to confirm • esc to cancel"))
	return b.String()
}

func (m textInputModel) value() string {
	if v := m.input.Value(); v != "" {
		return v
	}
	return m.defaultVal
}

// RunTextInputPrompt reads one line of text; an empty answer yields defaultVal.
func RunTextInputPrompt(title, defaultVal string) (string, error) {
	model, err := tea.NewProgram(newTextInputModel(title, defaultVal)).Run()
	if err != nil {
		return "", err
	}
	m := model.(textInputModel)
	if m.cancelled {
		return "", ErrCancelled
	}
	return m.value(), nil
}
