// Command demo embeds the lattice runtime in a bubbletea host: the
// program loop supplies frame ticks and key events, the redraw waker maps
// to a bubbletea message, and recorded draw ops render as lipgloss-styled
// terminal lines.
//
// Keys: space increments the counter, r rotates the keyed list,
// q quits.
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lattice-ui/lattice/pkg/lattice"
	"github.com/lattice-ui/lattice/pkg/lattice/observability"
)

// textOp is the demo's one draw op: a styled line of text at the node's
// origin.
type textOp struct {
	text  string
	style lipgloss.Style
	at    lattice.Position
}

func (textOp) OpTypeID() uint64 { return 1 }

// lineSpec sizes a node to one text line.
type lineSpec struct {
	width int
}

func (s lineSpec) SpecName() string { return "line" }

func (s lineSpec) Measure(in *lattice.LayoutInput) (lattice.ComputedSize, error) {
	return in.Constraints.Clamp(lattice.ComputedSize{Width: s.width, Height: 1}), nil
}

func (s lineSpec) DynEq(other lattice.LayoutSpec) bool {
	o, ok := other.(lineSpec)
	return ok && o == s
}

func (s lineSpec) CloneSpec() lattice.LayoutSpec { return s }

// columnSpec stacks children vertically.
type columnSpec struct{}

func (columnSpec) SpecName() string { return "column" }

func (columnSpec) Measure(in *lattice.LayoutInput) (lattice.ComputedSize, error) {
	var size lattice.ComputedSize
	y := 0
	for i := 0; i < in.ChildCount(); i++ {
		childSize, err := in.MeasureChild(i, in.Constraints)
		if err != nil {
			return lattice.ComputedSize{}, err
		}
		in.PlaceChild(i, 0, y)
		y += childSize.Height
		size.Height += childSize.Height
		size.Width = max(size.Width, childSize.Width)
	}
	return in.Constraints.Clamp(size), nil
}

func (columnSpec) DynEq(other lattice.LayoutSpec) bool {
	_, ok := other.(columnSpec)
	return ok
}

func (c columnSpec) CloneSpec() lattice.LayoutSpec { return c }

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	counterStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	dotStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	itemStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("249"))
)

type labelProps struct {
	Text  string
	Style lipgloss.Style
}

func (p labelProps) PropsEqual(other any) bool {
	o, ok := other.(labelProps)
	return ok && o.Text == p.Text
}

var label = lattice.Define("label", func(p labelProps) {
	lattice.Layout(lineSpec{width: len(p.Text)})
	style := p.Style
	text := p.Text
	lattice.OnRecord(func(rc *lattice.RecordContext) {
		rc.EmitDraw(textOp{text: text, style: style, at: rc.Origin})
	})
})

type counterProps struct{}

func (counterProps) PropsEqual(other any) bool {
	_, ok := other.(counterProps)
	return ok
}

var counterRow = lattice.Define("counterRow", func(counterProps) {
	clicks := lattice.Remember(func() int { return 0 })
	lattice.Layout(columnSpec{})
	lattice.OnInput(func(in *lattice.InputHandlerInput) {
		for _, ev := range in.Events {
			if key, ok := ev.(tea.KeyMsg); ok && key.String() == " " {
				clicks.WithMut(func(v *int) { *v++ })
			}
		}
	})
	label.Call(labelProps{
		Text:  fmt.Sprintf("clicks: %d (space)", clicks.Get()),
		Style: counterStyle,
	})
})

type springProps struct{}

func (springProps) PropsEqual(other any) bool {
	_, ok := other.(springProps)
	return ok
}

// springRow animates a dot with a frame-nanos receiver; the receiver
// writes the phase slot, which rebuilds only this row.
var springRow = lattice.Define("springRow", func(springProps) {
	phase := lattice.Remember(func() int { return 0 })
	lattice.ReceiveFrameNanos(func(nanos uint64) lattice.FrameControl {
		phase.Set(int(nanos / uint64(120*time.Millisecond)))
		return lattice.Continue
	})
	width := 24
	pos := phase.Get() % (2 * width)
	if pos >= width {
		pos = 2*width - pos - 1
	}
	line := strings.Repeat(" ", pos) + "●"
	label.Call(labelProps{Text: line, Style: dotStyle})
})

type listProps struct {
	Items []string
}

func (p listProps) PropsEqual(other any) bool {
	o, ok := other.(listProps)
	if !ok || len(o.Items) != len(p.Items) {
		return false
	}
	for i := range p.Items {
		if o.Items[i] != p.Items[i] {
			return false
		}
	}
	return true
}

// keyedList shows identity stability under reorder: each item row
// remembers how often its own body ran, keyed by item id, so the counts
// travel with the items when the list rotates.
var keyedList = lattice.Define("keyedList", func(p listProps) {
	lattice.Layout(columnSpec{})
	for _, item := range p.Items {
		lattice.Key(item, func() {
			itemRow.Call(labelProps{Text: item, Style: itemStyle})
		})
	}
})

var itemRow = lattice.Define("itemRow", func(p labelProps) {
	builds := lattice.Remember(func() int { return 0 })
	var n int
	builds.WithMut(func(v *int) { *v++; n = *v })
	label.Call(labelProps{
		Text:  fmt.Sprintf("%s (built %d times)", p.Text, n),
		Style: p.Style,
	})
})

type appProps struct {
	Items []string
}

func (p appProps) PropsEqual(other any) bool {
	o, ok := other.(appProps)
	return ok && listProps{Items: p.Items}.PropsEqual(listProps{Items: o.Items})
}

var app = lattice.Define("app", func(p appProps) {
	lattice.Layout(columnSpec{})
	label.Call(labelProps{Text: "lattice demo — q quits, r rotates", Style: titleStyle})
	counterRow.Call(counterProps{})
	springRow.Call(springProps{})
	keyedList.Call(listProps{Items: p.Items})
})

// redrawMsg is sent by the runtime's waker and by the frame pacer.
type redrawMsg struct{}

type model struct {
	items []string
	view  string
}

func pace() tea.Cmd {
	return tea.Tick(33*time.Millisecond, func(time.Time) tea.Msg { return redrawMsg{} })
}

func (m *model) Init() tea.Cmd {
	return pace()
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		lattice.SetWindowSize(msg.Width, msg.Height)
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			m.items = append(m.items[1:], m.items[0])
		}
		lattice.DispatchInput([]lattice.InputEvent{msg})
		m.renderFrame()
		return m, nil
	case redrawMsg:
		m.renderFrame()
		return m, pace()
	}
	return m, nil
}

func (m *model) renderFrame() {
	items := append([]string(nil), m.items...)
	result, err := lattice.Tick(time.Now(), func() {
		app.Call(appProps{Items: items})
	})
	if err != nil {
		// The previous view stays on screen; the waker retries.
		return
	}
	m.view = renderOps(result.Ops)
}

// renderOps is the demo's "GPU": draw ops become positioned terminal
// lines.
func renderOps(ops lattice.FrameOps) string {
	lines := make(map[int]string)
	maxY := 0
	for _, op := range ops.Draws {
		t, ok := op.(textOp)
		if !ok {
			continue
		}
		rendered := strings.Repeat(" ", t.at.X) + t.style.Render(t.text)
		lines[t.at.Y] = rendered
		maxY = max(maxY, t.at.Y)
	}
	var b strings.Builder
	for y := 0; y <= maxY; y++ {
		b.WriteString(lines[y])
		b.WriteByte('\n')
	}
	return b.String()
}

func (m *model) View() string { return m.view }

func main() {
	observability.SetErrorReporter(observability.NewConsoleReporter(false))
	observability.Install()

	m := &model{items: []string{"alpha", "beta", "gamma"}}
	p := tea.NewProgram(m, tea.WithAltScreen())
	lattice.InstallRedrawWaker(func() {
		go p.Send(redrawMsg{})
	})

	if _, err := p.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "demo:", err)
		os.Exit(1)
	}
}
