package console

import (
	"errors"
	"fmt"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ErrAborted is returned by a Prompter when the user cancels a prompt.
var ErrAborted = errors.New("prompt aborted")

// Choice is one selectable menu item. Disabled items are shown but cannot be
// picked. Key is an optional single character hotkey.
type Choice struct {
	Label    string
	Key      string
	Disabled bool
}

// Prompter asks the user for input. Select returns the label of the picked
// choice.
type Prompter interface {
	Select(message string, choices []Choice) (string, error)
	Input(message, defaultValue string) (string, error)
	Confirm(message string, defaultValue bool) (bool, error)
}

var (
	questionStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))

	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("229")).Bold(true)

	normalStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))

	dimStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	answerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
)

// TeaPrompter runs each prompt as a short lived bubbletea program.
type TeaPrompter struct {
	in  io.Reader
	out io.Writer
}

func NewTeaPrompter(in io.Reader, out io.Writer) *TeaPrompter {
	return &TeaPrompter{in: in, out: out}
}

var _ Prompter = (*TeaPrompter)(nil)

func (p *TeaPrompter) run(m tea.Model) (tea.Model, error) {
	program := tea.NewProgram(m, tea.WithInput(p.in), tea.WithOutput(p.out))
	final, err := program.Run()
	if err != nil {
		return nil, fmt.Errorf("prompt: %w", err)
	}
	return final, nil
}

func (p *TeaPrompter) Select(message string, choices []Choice) (string, error) {
	m, err := newSelectModel(message, choices)
	if err != nil {
		return "", err
	}
	final, err := p.run(m)
	if err != nil {
		return "", err
	}
	result := final.(selectModel)
	if result.aborted {
		return "", ErrAborted
	}
	return result.choices[result.cursor].Label, nil
}

func (p *TeaPrompter) Input(message, defaultValue string) (string, error) {
	final, err := p.run(inputModel{message: message, defaultValue: defaultValue})
	if err != nil {
		return "", err
	}
	result := final.(inputModel)
	if result.aborted {
		return "", ErrAborted
	}
	return result.Value(), nil
}

func (p *TeaPrompter) Confirm(message string, defaultValue bool) (bool, error) {
	final, err := p.run(confirmModel{message: message, value: defaultValue})
	if err != nil {
		return false, err
	}
	result := final.(confirmModel)
	if result.aborted {
		return false, ErrAborted
	}
	return result.value, nil
}

// selectModel is a vertical menu navigated with the arrow keys or hotkeys.
type selectModel struct {
	message string
	choices []Choice
	cursor  int

	done    bool
	aborted bool
}

var _ tea.Model = selectModel{}

func newSelectModel(message string, choices []Choice) (selectModel, error) {
	m := selectModel{message: message, choices: choices, cursor: -1}
	for i, c := range choices {
		if !c.Disabled {
			m.cursor = i
			break
		}
	}
	if m.cursor < 0 {
		return m, fmt.Errorf("prompt %q: no enabled choices", message)
	}
	return m, nil
}

func (m selectModel) Init() tea.Cmd {
	return nil
}

func (m selectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch key.String() {
	case "ctrl+c", "esc":
		m.aborted = true
		return m, tea.Quit
	case "up", "k":
		m.cursor = m.step(-1)
	case "down", "j", "tab":
		m.cursor = m.step(1)
	case "enter", " ":
		m.done = true
		return m, tea.Quit
	default:
		for i, c := range m.choices {
			if c.Key != "" && c.Key == key.String() && !c.Disabled {
				m.cursor = i
				m.done = true
				return m, tea.Quit
			}
		}
	}
	return m, nil
}

// step moves the cursor to the next enabled choice in direction dir,
// wrapping around.
func (m selectModel) step(dir int) int {
	n := len(m.choices)
	for i := 1; i <= n; i++ {
		next := ((m.cursor+dir*i)%n + n) % n
		if !m.choices[next].Disabled {
			return next
		}
	}
	return m.cursor
}

func (m selectModel) View() string {
	var b strings.Builder
	if m.done {
		b.WriteString(questionStyle.Render("> "+m.message) + " " + answerStyle.Render(m.choices[m.cursor].Label) + "\n")
		return b.String()
	}

	b.WriteString(questionStyle.Render("> "+m.message) + "\n")
	for i, c := range m.choices {
		label := c.Label
		if c.Key != "" {
			label = fmt.Sprintf("%s (%s)", label, c.Key)
		}
		switch {
		case c.Disabled:
			b.WriteString("  " + dimStyle.Render(label) + "\n")
		case i == m.cursor:
			b.WriteString(selectedStyle.Render("> "+label) + "\n")
		default:
			b.WriteString("  " + normalStyle.Render(label) + "\n")
		}
	}
	if hotkeys := m.hotkeys(); hotkeys != "" {
		b.WriteString(dimStyle.Render("(Use arrow keys or hotkeys: "+hotkeys+")") + "\n")
	}
	return b.String()
}

func (m selectModel) hotkeys() string {
	keys := make([]string, 0, len(m.choices))
	for _, c := range m.choices {
		if c.Key != "" {
			keys = append(keys, c.Key)
		}
	}
	return strings.Join(keys, "/")
}

// inputModel reads one line of text. An empty answer takes the default.
type inputModel struct {
	message      string
	defaultValue string
	value        []rune

	done    bool
	aborted bool
}

var _ tea.Model = inputModel{}

func (m inputModel) Init() tea.Cmd {
	return nil
}

func (m inputModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch key.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		m.aborted = true
		return m, tea.Quit
	case tea.KeyEnter:
		m.done = true
		return m, tea.Quit
	case tea.KeyBackspace:
		if len(m.value) > 0 {
			m.value = m.value[:len(m.value)-1]
		}
	case tea.KeyRunes, tea.KeySpace:
		m.value = append(m.value, key.Runes...)
	}
	return m, nil
}

func (m inputModel) Value() string {
	if len(m.value) == 0 {
		return m.defaultValue
	}
	return string(m.value)
}

func (m inputModel) View() string {
	prompt := questionStyle.Render("> " + m.message)
	if m.done {
		return prompt + " " + answerStyle.Render(m.Value()) + "\n"
	}
	if len(m.value) == 0 && m.defaultValue != "" {
		return prompt + " " + dimStyle.Render("("+m.defaultValue+")") + "\n"
	}
	return prompt + " " + string(m.value) + "\n"
}

type confirmModel struct {
	message string
	value   bool

	done    bool
	aborted bool
}

var _ tea.Model = confirmModel{}

func (m confirmModel) Init() tea.Cmd {
	return nil
}

func (m confirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch strings.ToLower(key.String()) {
	case "ctrl+c", "esc":
		m.aborted = true
		return m, tea.Quit
	case "y":
		m.value = true
		m.done = true
		return m, tea.Quit
	case "n":
		m.value = false
		m.done = true
		return m, tea.Quit
	case "enter":
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

func (m confirmModel) View() string {
	prompt := questionStyle.Render("> " + m.message)
	if m.done {
		answer := "No"
		if m.value {
			answer = "Yes"
		}
		return prompt + " " + answerStyle.Render(answer) + "\n"
	}
	hint := "(y/N)"
	if m.value {
		hint = "(Y/n)"
	}
	return prompt + " " + dimStyle.Render(hint) + "\n"
}
