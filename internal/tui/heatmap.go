// SPDX-License-Identifier: MIT
package tui

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"soundcam/internal/audio"
	"soundcam/internal/camera"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// DefaultRefresh is how often the view polls the engine for a new frame.
const DefaultRefresh = 50 * time.Millisecond

const (
	thresholdStep  = 1
	thresholdJump  = 10
	sparklineWidth = 64
)

var sparkLevels = []rune("▁▂▃▄▅▆▇█")

var (
	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#A8A8A8"))

	gatedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5F87")).
			Bold(true)
)

type heatMapKeys struct {
	Up, Down, PageUp, PageDown key.Binding
	Mode, Reset, Channel       key.Binding
	Help, Quit                 key.Binding
}

func (k heatMapKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Mode, k.Reset, k.Help, k.Quit}
}

func (k heatMapKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.PageUp, k.PageDown},
		{k.Mode, k.Reset, k.Channel},
		{k.Help, k.Quit},
	}
}

var defaultHeatMapKeys = heatMapKeys{
	Up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "threshold +1 dB")),
	Down:     key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "threshold -1 dB")),
	PageUp:   key.NewBinding(key.WithKeys("pgup"), key.WithHelp("pgup", "threshold +10 dB")),
	PageDown: key.NewBinding(key.WithKeys("pgdown"), key.WithHelp("pgdn", "threshold -10 dB")),
	Mode:     key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "time/frequency")),
	Reset:    key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reset smoothing")),
	Channel:  key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "spectrum channel")),
	Help:     key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "more keys")),
	Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

type tickMsg time.Time

// HeatMapModel is the live acoustic camera view.
type HeatMapModel struct {
	pipeline *audio.Pipeline
	engine   *camera.Engine
	refresh  time.Duration

	keys heatMapKeys
	help help.Model

	frame    camera.Frame
	hasFrame bool
	status   string
}

// NewHeatMapModel returns a view over the pipeline's engine. A non-positive
// refresh uses DefaultRefresh.
func NewHeatMapModel(p *audio.Pipeline, refresh time.Duration) HeatMapModel {
	if refresh <= 0 {
		refresh = DefaultRefresh
	}
	return HeatMapModel{
		pipeline: p,
		engine:   p.Engine(),
		refresh:  refresh,
		keys:     defaultHeatMapKeys,
		help:     help.New(),
	}
}

func (m HeatMapModel) tick() tea.Cmd {
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Init starts polling.
func (m HeatMapModel) Init() tea.Cmd {
	return m.tick()
}

// Update handles polling ticks and key presses.
func (m HeatMapModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.help.Width = msg.Width

	case tickMsg:
		if f, ok := m.engine.Snapshot(); ok && (!m.hasFrame || f.Sequence != m.frame.Sequence) {
			m.frame, m.hasFrame = f, true
		}
		return m, m.tick()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Up):
			m.adjustThreshold(thresholdStep)
		case key.Matches(msg, m.keys.Down):
			m.adjustThreshold(-thresholdStep)
		case key.Matches(msg, m.keys.PageUp):
			m.adjustThreshold(thresholdJump)
		case key.Matches(msg, m.keys.PageDown):
			m.adjustThreshold(-thresholdJump)
		case key.Matches(msg, m.keys.Mode):
			m.status = fmt.Sprintf("%s-domain beamforming", m.pipeline.ToggleMode())
		case key.Matches(msg, m.keys.Reset):
			m.engine.Reset()
			m.status = "smoothing reset"
		case key.Matches(msg, m.keys.Channel):
			next := (m.engine.SpectrumChannel() + 1) % m.engine.Channels()
			if err := m.engine.SetSpectrumChannel(next); err != nil {
				m.status = err.Error()
			} else {
				m.status = "spectrum: " + m.channelName(next)
			}
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
		}
	}
	return m, nil
}

// adjustThreshold moves the threshold by delta dB, saturating at the uint16 range.
func (m *HeatMapModel) adjustThreshold(delta int) {
	level := int(m.engine.Threshold()) + delta
	level = max(0, min(level, math.MaxUint16))
	m.engine.SetThreshold(uint16(level))
	m.status = fmt.Sprintf("threshold %d dB", level)
}

func (m HeatMapModel) channelName(ch int) string {
	if ch == m.engine.Mics() {
		return "beam"
	}
	return fmt.Sprintf("mic %d", ch)
}

// View renders the heat map, colour scale, spectrum and key help.
func (m HeatMapModel) View() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Acoustic Camera"))
	sb.WriteString("\n\n")

	if !m.hasFrame {
		sb.WriteString(infoStyle.Render("Waiting for audio..."))
		sb.WriteString("\n\n")
		sb.WriteString(m.help.View(m.keys))
		return sb.String()
	}

	f := m.frame
	sb.WriteString(statusStyle.Render(fmt.Sprintf("frame %d │ %s │ threshold %d dB │ max %.1f dB at (%.1f°, %.1f°)",
		f.Sequence, f.Mode, m.engine.Threshold(), f.Max, f.MaxAzimuth, f.MaxPolar)))
	sb.WriteString("\n\n")

	lo, hi := f.DisplayRange()
	sb.WriteString(RenderGrid(f, lo, hi))
	sb.WriteString(renderScale(lo, hi, f.BelowThreshold))
	sb.WriteString("\n\n")

	sb.WriteString(infoStyle.Render(fmt.Sprintf("spectrum (%s)", m.channelName(f.SpectrumChannel))))
	sb.WriteString("\n")
	sb.WriteString(highlightStyle.Render(Sparkline(f.Spectrum, sparklineWidth)))
	if n := len(f.Frequencies); n > 0 {
		sb.WriteString(statusStyle.Render(fmt.Sprintf("\n%.0f Hz … %.0f Hz", f.Frequencies[0], f.Frequencies[n-1])))
	}
	sb.WriteString("\n\n")

	if m.status != "" {
		sb.WriteString(statusStyle.Render(m.status))
		sb.WriteString("\n")
	}
	sb.WriteString(m.help.View(m.keys))
	return sb.String()
}

// RenderGrid draws one two-character block per cell, highest polar angle on
// top and azimuth increasing to the right.
func RenderGrid(f camera.Frame, lo, hi float64) string {
	var sb strings.Builder
	for pol := f.Polars - 1; pol >= 0; pol-- {
		for az := range f.Azimuths {
			c := Colour(f.Cell(az, pol), lo, hi)
			sb.WriteString(lipgloss.NewStyle().Background(c).Render("  "))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func renderScale(lo, hi float64, gated bool) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%5.1f dB ", lo))
	const steps = 16
	for i := range steps {
		v := lo + (hi-lo)*float64(i)/(steps-1)
		sb.WriteString(lipgloss.NewStyle().Foreground(Colour(v, lo, hi)).Render("█"))
	}
	sb.WriteString(fmt.Sprintf(" %5.1f dB", hi))
	if gated {
		sb.WriteString("  ")
		sb.WriteString(gatedStyle.Render("below threshold"))
	}
	return sb.String()
}

// Colour maps v in [lo, hi] onto a blue-cyan-green-yellow-red ramp.
// Values outside the range are clamped.
func Colour(v, lo, hi float64) lipgloss.Color {
	t := 0.0
	if hi > lo {
		t = (v - lo) / (hi - lo)
	}
	if math.IsNaN(t) {
		t = 0
	}
	t = max(0, min(t, 1))

	var r, g, b float64
	switch {
	case t < 0.25:
		r, g, b = 0, 4*t, 1
	case t < 0.5:
		r, g, b = 0, 1, 1-4*(t-0.25)
	case t < 0.75:
		r, g, b = 4*(t-0.5), 1, 0
	default:
		r, g, b = 1, 1-4*(t-0.75), 0
	}
	return lipgloss.Color(fmt.Sprintf("#%02X%02X%02X",
		uint8(math.Round(255*r)), uint8(math.Round(255*g)), uint8(math.Round(255*b))))
}

// Sparkline compresses values into at most width columns (the maximum of
// each group) scaled between their own minimum and maximum.
func Sparkline(values []float64, width int) string {
	if len(values) == 0 || width <= 0 {
		return ""
	}
	cols := min(width, len(values))
	peaks := make([]float64, cols)
	for c := range peaks {
		start, end := c*len(values)/cols, (c+1)*len(values)/cols
		peaks[c] = math.Inf(-1)
		for _, v := range values[start:end] {
			peaks[c] = max(peaks[c], v)
		}
	}

	lo, hi := peaks[0], peaks[0]
	for _, v := range peaks {
		lo, hi = min(lo, v), max(hi, v)
	}

	out := make([]rune, cols)
	top := len(sparkLevels) - 1
	for i, v := range peaks {
		level := 0
		if hi > lo {
			level = int(math.Round((v - lo) / (hi - lo) * float64(top)))
		}
		out[i] = sparkLevels[level]
	}
	return string(out)
}

// RunHeatMap runs the live view until the user quits or ctx is done.
func RunHeatMap(ctx context.Context, p *audio.Pipeline, refresh time.Duration) error {
	prog := tea.NewProgram(NewHeatMapModel(p, refresh), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := prog.Run()
	if ctx.Err() != nil {
		return nil
	}
	return err
}
