package ui

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"charm.land/bubbles/v2/list"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/idlab-discover/anomalyfusion-cli/internal/apperr"
)

// anomalyItem represents a ranked cell in the browser list
type anomalyItem struct {
	row AnomalyRow
}

func (i anomalyItem) Title() string {
	return fmt.Sprintf("#%d  cell (%d,%d)  %s",
		i.row.Rank, i.row.Row, i.row.Col,
		ClassStyle(i.row.Class).Render(i.row.Class))
}

func (i anomalyItem) Description() string {
	desc := fmt.Sprintf("p=%.4f · %.5f, %.5f · %d agreeing",
		i.row.Probability, i.row.Lat, i.row.Lon, i.row.Agreeing)
	return Dim.Render(desc)
}

func (i anomalyItem) FilterValue() string {
	return fmt.Sprintf("%s %d,%d", i.row.Class, i.row.Row, i.row.Col)
}

// anomalyBrowserModel is the Bubble Tea model for the anomaly browser
type anomalyBrowserModel struct {
	list      list.Model
	title     string
	detail    bool
	quitting  bool
	confirmed bool
	chosen    *AnomalyRow
	width     int
	height    int
}

// NewAnomalyBrowser creates a browser over ranked anomalies.
func NewAnomalyBrowser(title string, rows []AnomalyRow) *anomalyBrowserModel {
	items := make([]list.Item, len(rows))
	for i, r := range rows {
		items[i] = anomalyItem{row: r}
	}

	delegate := list.NewDefaultDelegate()
	delegate.SetHeight(2)
	delegate.SetSpacing(1)
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.
		Foreground(ColorHighlight).
		BorderForeground(ColorPrimary)
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.
		Foreground(ColorTextDim).
		BorderForeground(ColorPrimary)

	l := list.New(items, delegate, 0, 0)
	l.Title = "Ranked Anomalies"
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)
	l.SetShowHelp(true)
	l.Styles.Title = lipgloss.NewStyle().
		Foreground(ColorPrimary).
		Bold(true).
		Padding(0, 0, 1, 0)

	return &anomalyBrowserModel{
		list:   l,
		title:  title,
		width:  80,
		height: 24,
	}
}

// Init initializes the model
func (m *anomalyBrowserModel) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m *anomalyBrowserModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		// While the filter input is open the list owns every key.
		if m.list.FilterState() == list.Filtering {
			var cmd tea.Cmd
			m.list, cmd = m.list.Update(msg)
			return m, cmd
		}
		switch msg.String() {
		case "ctrl+c", "esc", "q":
			if m.detail && msg.String() != "ctrl+c" {
				m.detail = false
				return m, nil
			}
			m.quitting = true
			return m, tea.Quit
		case "d", "tab":
			m.detail = !m.detail
			return m, nil
		case "enter":
			if i, ok := m.list.SelectedItem().(anomalyItem); ok {
				row := i.row
				m.chosen = &row
			}
			m.confirmed = true
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(msg.Width-4, msg.Height-8)
		return m, nil
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View renders the model
func (m *anomalyBrowserModel) View() tea.View {
	if m.quitting {
		return tea.NewView("")
	}

	var b strings.Builder

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorPrimary).
		Padding(1, 0)
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n\n")

	if m.detail {
		if i, ok := m.list.SelectedItem().(anomalyItem); ok {
			b.WriteString(HighlightBox.Render(RenderAnomalyDetail(i.row)))
		}
	} else {
		b.WriteString(m.list.View())
	}
	b.WriteString("\n\n")

	helpStyle := lipgloss.NewStyle().Foreground(ColorTextDim)
	if m.detail {
		b.WriteString(helpStyle.Render("d/tab: back to list · enter: choose · esc: back"))
	} else {
		b.WriteString(helpStyle.Render("↑/↓: navigate · d: details · /: filter · enter: choose · esc: quit"))
	}

	return tea.NewView(b.String())
}

// RenderAnomalyDetail renders one anomaly with its per-modality scores.
func RenderAnomalyDetail(a AnomalyRow) string {
	var sb strings.Builder
	sb.WriteString(SectionHeader.Render(fmt.Sprintf("Anomaly #%d", a.Rank)))
	sb.WriteString("\n")
	sb.WriteString(FormatKeyValue("Cell", fmt.Sprintf("(%d,%d)", a.Row, a.Col)))
	sb.WriteString("\n")
	sb.WriteString(FormatKeyValue("Location", fmt.Sprintf("%.6f, %.6f", a.Lat, a.Lon)))
	sb.WriteString("\n")
	sb.WriteString(FormatKeyValue("Probability", renderProbability(a.Probability)))
	sb.WriteString("\n")
	sb.WriteString(FormatKeyValue("Class", ClassStyle(a.Class).Render(a.Class)))
	sb.WriteString("\n")
	sb.WriteString(FormatKeyValue("Agreeing sensors", fmt.Sprintf("%d", a.Agreeing)))
	if len(a.Scores) > 0 {
		sb.WriteString("\n")
		sb.WriteString(Dim.Render("Scores:"))
		for _, m := range slices.Sorted(maps.Keys(a.Scores)) {
			sb.WriteString("\n  ")
			sb.WriteString(fmt.Sprintf("%-9s %s %.3f", m, renderBar(a.Scores[m], 20), a.Scores[m]))
		}
	}
	return sb.String()
}

// Chosen returns the anomaly picked with enter, if any.
func (m *anomalyBrowserModel) Chosen() *AnomalyRow { return m.chosen }

// WasConfirmed returns true if the user picked an anomaly
func (m *anomalyBrowserModel) WasConfirmed() bool { return m.confirmed }

// RunAnomalyBrowser runs the interactive browser and returns the anomaly the
// user picked. Leaving without a pick returns apperr.ErrCancelled.
func RunAnomalyBrowser(title string, rows []AnomalyRow) (*AnomalyRow, error) {
	p := tea.NewProgram(NewAnomalyBrowser(title, rows))
	m, err := p.Run()
	if err != nil {
		return nil, err
	}

	model := m.(*anomalyBrowserModel)
	if !model.WasConfirmed() {
		return nil, apperr.ErrCancelled
	}
	return model.Chosen(), nil
}
