package cmd

import (
	"fmt"
	"io"
	"os"
	pathpkg "path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/v2/list"
	"github.com/charmbracelet/bubbles/v2/spinner"
	"github.com/charmbracelet/bubbles/v2/viewport"
	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/charmbracelet/lipgloss/v2"

	"stackframe/internal/analysis"
	"stackframe/internal/stackframe/styles"
)

type viewMode int

const (
	viewSummary viewMode = iota
	viewFunctions
	viewDetail
)

type functionItem struct {
	fn analysis.FunctionReport
}

func (i functionItem) title() string {
	if i.fn.Demangled != "" {
		return i.fn.Demangled
	}
	return i.fn.Name
}

func (i functionItem) FilterValue() string {
	return fmt.Sprintf("%x %s %s %s", i.fn.Addr, i.fn.Name, i.fn.Demangled, i.fn.Status)
}

var statusColors = map[analysis.Status]string{
	analysis.Recovered: "42",
	analysis.Skipped:   "240",
	analysis.Abandoned: "214",
	analysis.Failed:    "196",
}

type itemDelegate struct{}

func (d itemDelegate) Height() int                               { return 1 }
func (d itemDelegate) Spacing() int                              { return 0 }
func (d itemDelegate) Update(msg tea.Msg, m *list.Model) tea.Cmd { return nil }

func (d itemDelegate) Render(w io.Writer, m list.Model, index int, listItem list.Item) {
	i, ok := listItem.(functionItem)
	if !ok {
		return
	}
	indicator := " "
	addrStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	if index == m.Index() {
		indicator = ">"
		addrStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("170"))
	}
	status := lipgloss.NewStyle().
		Foreground(lipgloss.Color(statusColors[i.fn.Status])).
		Width(10).
		Render(string(i.fn.Status))
	fmt.Fprintf(w, " %s  %s  %s %s",
		indicator,
		addrStyle.Render(fmt.Sprintf("%8x", i.fn.Addr)),
		status,
		i.title())
}

type model struct {
	viewport  viewport.Model
	functions list.Model
	spinner   spinner.Model
	mode      viewMode
	filepath  string
	run       func() (*analysis.Report, error)
	report    *analysis.Report
	err       error
	loading   bool
	width     int
	height    int
}

type analysisMsg struct {
	report *analysis.Report
	err    error
}

// NewModel returns the frame browser for filepath. run produces the report
// in the background.
func NewModel(filepath string, run func() (*analysis.Report, error)) model {
	vp := viewport.New()
	vp.SetWidth(80)
	vp.SetHeight(24)

	functions := list.New([]list.Item{}, itemDelegate{}, 80, 24)
	functions.SetShowStatusBar(false)
	functions.SetFilteringEnabled(true)
	functions.Title = "Functions"
	functions.Styles.Title = lipgloss.NewStyle().
		Foreground(lipgloss.Color("99")).
		MarginLeft(2)
	functions.SetShowHelp(true)

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("170"))

	m := model{
		viewport:  vp,
		functions: functions,
		spinner:   s,
		mode:      viewSummary,
		filepath:  filepath,
		run:       run,
		loading:   true,
		width:     80,
		height:    24,
	}
	m.updateContent()
	return m
}

func (m model) analyzeCmd() tea.Cmd {
	run := m.run
	return func() tea.Msg {
		r, err := run()
		return analysisMsg{report: r, err: err}
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.analyzeCmd(), m.spinner.Tick)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case analysisMsg:
		m.loading = false
		m.report, m.err = msg.report, msg.err
		m.updateFunctions()
		m.updateContent()
		return m, nil

	case spinner.TickMsg:
		if !m.loading {
			return m, nil
		}
		m.spinner, cmd = m.spinner.Update(msg)
		m.updateContent()
		return m, cmd

	case tea.WindowSizeMsg:
		if msg.Width != m.width || msg.Height != m.height {
			m.width = msg.Width
			m.height = msg.Height
			m.viewport.SetWidth(msg.Width)
			m.viewport.SetHeight(msg.Height - 2)
			m.functions.SetWidth(msg.Width)
			m.functions.SetHeight(msg.Height - 2)
			if m.mode != viewDetail {
				m.updateContent()
			}
		}

	case tea.KeyMsg:
		if m.mode == viewFunctions && m.functions.FilterState() == list.Filtering {
			if msg.String() == "ctrl+c" {
				return m, tea.Quit
			}
			break
		}
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			m.mode = viewSummary
			m.updateContent()
			return m, nil
		case "f":
			if m.report != nil {
				m.mode = viewFunctions
			}
			return m, nil
		case "esc":
			if m.mode == viewDetail {
				m.mode = viewFunctions
				return m, nil
			}
		case "enter":
			if m.mode == viewFunctions {
				if item, ok := m.functions.SelectedItem().(functionItem); ok {
					m.showFunction(item.fn)
				}
				return m, nil
			}
		case "tab":
			m.cycle()
			return m, nil
		}
	}

	if m.mode == viewFunctions {
		m.functions, cmd = m.functions.Update(msg)
	} else {
		m.viewport, cmd = m.viewport.Update(msg)
	}
	return m, cmd
}

// cycle moves between the summary and the function list.
func (m *model) cycle() {
	switch m.mode {
	case viewSummary:
		if m.report != nil {
			m.mode = viewFunctions
		}
	default:
		m.mode = viewSummary
		m.updateContent()
	}
}

func (m model) View() string {
	content := m.viewport.View()
	if m.mode == viewFunctions {
		content = m.functions.View()
	}

	var menu string
	switch m.mode {
	case viewFunctions:
		menu = " Enter: frame • /: filter • R: report • Tab: cycle • Q: quit "
	case viewDetail:
		menu = " Esc: functions • R: report • Q: quit "
	default:
		if m.report != nil {
			menu = " F: functions • Tab: cycle • Q: quit "
		} else {
			menu = " Q: quit "
		}
	}
	menuStyle := lipgloss.NewStyle().
		Background(lipgloss.Color("235")).
		Foreground(lipgloss.Color("252")).
		Padding(0, 1).
		Width(m.width)

	return content + "\n" + menuStyle.Render(menu)
}

func (m *model) render(markdown string) {
	width := m.width
	if width == 0 {
		width = 80
	}
	rendered := styles.Render(markdown, width-2)
	m.viewport.SetContent(strings.TrimSuffix(rendered, "\n"))
	m.viewport.GotoTop()
}

func (m *model) updateContent() {
	relPath := m.filepath
	if cwd, err := os.Getwd(); err == nil {
		if rel, err := pathpkg.Rel(cwd, m.filepath); err == nil {
			relPath = rel
		}
	}

	switch {
	case m.loading:
		m.render(fmt.Sprintf("# Stack frames\n\n```\n; %s\n```\n\n%s Recovering frames...", relPath, m.spinner.View()))
	case m.err != nil:
		m.render(fmt.Sprintf("# Stack frames\n\n```\n; %s\n```\n\n> %v", relPath, m.err))
	default:
		m.render(m.report.Markdown(false))
	}
}

func (m *model) updateFunctions() {
	if m.report == nil {
		return
	}
	items := make([]list.Item, 0, len(m.report.Functions))
	for _, fn := range m.report.Functions {
		items = append(items, functionItem{fn: fn})
	}
	m.functions.SetItems(items)
	m.functions.Title = fmt.Sprintf("Functions (%d recovered of %d)", m.report.Recovered, len(m.report.Functions))
}

func (m *model) showFunction(fn analysis.FunctionReport) {
	m.mode = viewDetail
	m.render(fn.Markdown(true))
}
