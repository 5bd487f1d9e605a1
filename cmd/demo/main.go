// Interactive terminal UI for watching an inventory run: a scanning spinner,
// a per-file progress bar with live warnings, and a summary box at the end.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kass/go-las-bbox/pkg/inventory"
)

var (
	// Styles
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF79C6")).
			Background(lipgloss.Color("#282A36")).
			Padding(0, 1).
			MarginTop(1).
			MarginBottom(1)

	subtitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#8BE9FD"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#50FA7B"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5555"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F1FA8C"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6272A4"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#BD93F9")).
			Padding(1, 2).
			MarginTop(1).
			MarginBottom(1)

	statStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFB86C"))
)

type stage int

const (
	stageScanning stage = iota
	stageProcessing
	stageDone
	stageFailed
)

type model struct {
	stage           stage
	spinner         spinner.Model
	progress        progress.Model
	progressPercent float64

	processed int
	total     int
	warnings  []string

	result *inventory.Result
	err    error

	elapsed time.Duration
	width   int
}

type fileMsg inventory.Event
type doneMsg struct {
	result  *inventory.Result
	err     error
	elapsed time.Duration
}

func initialModel() model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF79C6"))

	p := progress.New(progress.WithDefaultGradient())

	return model{
		stage:    stageScanning,
		spinner:  s,
		progress: p,
		width:    80,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, startPipeline())
}

// startPipeline kicks off the run in the background once the program loop is up
func startPipeline() tea.Cmd {
	return func() tea.Msg {
		go runPipeline(inputDir, outputDir, crs)
		return nil
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.progress.Width = msg.Width - 10
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		progressModel, cmd := m.progress.Update(msg)
		m.progress = progressModel.(progress.Model)
		return m, cmd

	case fileMsg:
		m.stage = stageProcessing
		m.processed = msg.Index + 1
		m.total = msg.Total
		if msg.Err != nil {
			warning := fmt.Sprintf("%s: %v", msg.File, msg.Err)
			m.warnings = append(m.warnings, warning)
			if len(m.warnings) > 5 {
				m.warnings = m.warnings[1:]
			}
		}
		m.progressPercent = float64(m.processed) / float64(m.total)
		return m, m.progress.SetPercent(m.progressPercent)

	case doneMsg:
		m.result = msg.result
		m.err = msg.err
		m.elapsed = msg.elapsed
		if msg.err != nil {
			m.stage = stageFailed
		} else {
			m.stage = stageDone
		}
		return m, nil
	}

	return m, nil
}

func (m model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("lasbbox"))
	b.WriteString("\n\n")

	switch m.stage {
	case stageScanning:
		b.WriteString(subtitleStyle.Render("Scanning"))
		b.WriteString("\n\n")
		b.WriteString(m.spinner.View() + " Looking for point cloud files...\n")

	case stageProcessing:
		b.WriteString(subtitleStyle.Render("Processing"))
		b.WriteString("\n\n")
		b.WriteString(fmt.Sprintf("%s Reading headers [%d/%d]\n\n", m.spinner.View(), m.processed, m.total))
		b.WriteString(m.progress.ViewAs(m.progressPercent))

	case stageDone:
		b.WriteString(renderSummary(m))

	case stageFailed:
		b.WriteString(errorStyle.Render(fmt.Sprintf("✗ Run failed: %v", m.err)))
	}

	if len(m.warnings) > 0 && m.stage != stageDone {
		b.WriteString("\n\n")
		b.WriteString(dimStyle.Render("Skipped files:"))
		b.WriteString("\n")
		for _, w := range m.warnings {
			b.WriteString(warnStyle.Render("• " + w))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n\n")
	b.WriteString(dimStyle.Render("Press 'q' to quit"))

	return b.String()
}

func renderSummary(m model) string {
	r := m.result
	content := fmt.Sprintf(
		"✓ Files found: %s\n"+
			"✓ Features written: %s\n"+
			"✓ Files skipped: %s\n"+
			"✓ Total extent: %s\n"+
			"✓ Elapsed: %s\n"+
			"✓ Dataset: %s\n"+
			"✓ CRS: %s",
		statStyle.Render(fmt.Sprintf("%d", r.Total)),
		statStyle.Render(fmt.Sprintf("%d", r.Written)),
		statStyle.Render(fmt.Sprintf("%d", r.Skipped)),
		statStyle.Render(fmt.Sprintf("[%.3f %.3f %.3f %.3f]",
			r.Extent.MinX, r.Extent.MinY, r.Extent.MaxX, r.Extent.MaxY)),
		statStyle.Render(m.elapsed.Round(time.Millisecond).String()),
		statStyle.Render(r.DatasetPath),
		statStyle.Render(r.CRS),
	)

	return boxStyle.Render(successStyle.Render("Inventory Complete!\n\n") + content)
}

var (
	program *tea.Program

	inputDir  string
	outputDir string
	crs       string
)

func runPipeline(inputDir, outputDir, crs string) {
	start := time.Now()
	result, err := inventory.Run(inventory.Options{
		InputDir:  inputDir,
		OutputDir: outputDir,
		CRS:       crs,
		Out:       io.Discard,
		Quiet:     true,
		OnFile: func(e inventory.Event) {
			program.Send(fileMsg(e))
		},
	})
	program.Send(doneMsg{result: result, err: err, elapsed: time.Since(start)})
}

func main() {
	flag.StringVar(&outputDir, "output", "", "Output folder (default <input>/PointCloud_laz_BBOX)")
	flag.StringVar(&crs, "crs", inventory.DefaultCRS, "Coordinate reference system for the output dataset")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: demo [flags] <input-folder>")
		flag.PrintDefaults()
		os.Exit(1)
	}
	inputDir = flag.Arg(0)

	program = tea.NewProgram(initialModel())
	if _, err := program.Run(); err != nil {
		log.Fatal(err)
	}
}
