package viz

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"

	"github.com/san-kum/hybridsim/internal/dynamo"
	"github.com/san-kum/hybridsim/internal/trajectory"
)

type SampleMsg struct {
	Traj int
	T    float64
	X    []float64
}

type TrajectoryDoneMsg struct {
	Traj  int
	Stats dynamo.TrajectoryStats
}

type RunFinishedMsg struct {
	Store *trajectory.Store
	Err   error
}

// Progress is a solver observer that forwards progress to a bubbletea
// program. Samples are dropped when the program falls behind; trajectory
// completions and the final result are always delivered unless Stop was
// called.
type Progress struct {
	ch   chan tea.Msg
	quit chan struct{}
	once sync.Once
}

func NewProgress(buffer int) *Progress {
	return &Progress{
		ch:   make(chan tea.Msg, buffer),
		quit: make(chan struct{}),
	}
}

func (p *Progress) OnSample(traj int, t float64, x dynamo.State) {
	msg := SampleMsg{Traj: traj, T: t, X: append([]float64(nil), x...)}
	select {
	case p.ch <- msg:
	default:
	}
}

func (p *Progress) OnTrajectoryDone(traj int, stats dynamo.TrajectoryStats) {
	p.send(TrajectoryDoneMsg{Traj: traj, Stats: stats})
}

// Finish delivers the outcome of the run.
func (p *Progress) Finish(store *trajectory.Store, err error) {
	p.send(RunFinishedMsg{Store: store, Err: err})
}

// Stop releases any sender blocked on a program that has exited.
func (p *Progress) Stop() {
	p.once.Do(func() { close(p.quit) })
}

func (p *Progress) send(msg tea.Msg) {
	select {
	case p.ch <- msg:
	case <-p.quit:
	}
}

// Next waits for the next progress message.
func (p *Progress) Next() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-p.ch:
			return msg
		case <-p.quit:
			return nil
		}
	}
}

// WatchModel shows a running ensemble: completed trajectories, solver work
// and a sparkline of one species in the trajectory currently sampling.
type WatchModel struct {
	title    string
	species  []string
	total    int
	progress *Progress
	cancel   context.CancelFunc

	shown   int
	current int
	history []float64
	lastT   float64

	done    int
	totals  dynamo.TrajectoryStats
	start   time.Time
	elapsed time.Duration

	finished bool
	store    *trajectory.Store
	err      error
	width    int
}

func NewWatch(title string, species []string, total int, p *Progress, cancel context.CancelFunc) WatchModel {
	return WatchModel{
		title:    title,
		species:  species,
		total:    total,
		progress: p,
		cancel:   cancel,
		current:  -1,
		start:    time.Now(),
		width:    80,
	}
}

func (m WatchModel) Init() tea.Cmd { return m.progress.Next() }

func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if m.cancel != nil {
				m.cancel()
			}
			m.progress.Stop()
			return m, tea.Quit
		case "tab", "right", "l":
			if len(m.species) > 0 {
				m.shown = (m.shown + 1) % len(m.species)
				m.history = m.history[:0]
			}
		case "shift+tab", "left", "h":
			if len(m.species) > 0 {
				m.shown = (m.shown + len(m.species) - 1) % len(m.species)
				m.history = m.history[:0]
			}
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case SampleMsg:
		if msg.Traj != m.current {
			m.current = msg.Traj
			m.history = m.history[:0]
		}
		if m.shown < len(msg.X) {
			m.history = append(m.history, msg.X[m.shown])
		}
		m.lastT = msg.T
		return m, m.progress.Next()

	case TrajectoryDoneMsg:
		m.done++
		m.totals.Steps += msg.Stats.Steps
		m.totals.Retries += msg.Stats.Retries
		m.totals.Firings += msg.Stats.Firings
		m.totals.Elapsed += msg.Stats.Elapsed
		return m, m.progress.Next()

	case RunFinishedMsg:
		m.finished = true
		m.store = msg.Store
		m.err = msg.Err
		m.elapsed = time.Since(m.start)
		return m, nil
	}
	return m, nil
}

func (m WatchModel) Finished() bool { return m.finished }

// Result returns the store and error delivered by Finish.
func (m WatchModel) Result() (*trajectory.Store, error) {
	return m.store, m.err
}

func (m WatchModel) View() string {
	var b strings.Builder
	barWidth := max(m.width-20, 10)

	b.WriteString(Title.Render(m.title))
	b.WriteString("  ")
	b.WriteString(m.status())
	b.WriteString("\n\n")

	frac := 0.0
	if m.total > 0 {
		frac = float64(m.done) / float64(m.total)
	}
	b.WriteString(ProgressBar(frac, barWidth))
	b.WriteString(fmt.Sprintf(" %d/%d\n\n", m.done, m.total))

	b.WriteString(MetricLabel.Render("steps   "))
	b.WriteString(MetricValue.Render(humanize.Comma(int64(m.totals.Steps))))
	b.WriteString(MetricLabel.Render("  retries "))
	b.WriteString(MetricValue.Render(humanize.Comma(int64(m.totals.Retries))))
	b.WriteString(MetricLabel.Render("  firings "))
	b.WriteString(MetricValue.Render(humanize.Comma(int64(m.totals.Firings))))
	b.WriteString("\n")

	if len(m.species) > 0 {
		name := m.species[m.shown]
		b.WriteString(MetricLabel.Render(fmt.Sprintf("%s (traj %d, t=%.3g) ", name, max(m.current, 0), m.lastT)))
		b.WriteString(SparklineChart(m.history, barWidth))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(KeyHint.Render("tab: species  q: stop"))
	return b.String()
}

func (m WatchModel) status() string {
	switch {
	case !m.finished:
		return StatusRunning.Render("running")
	case m.err != nil:
		return StatusFailed.Render("failed: " + m.err.Error())
	case m.store != nil && m.store.Canceled:
		return StatusCanceled.Render("canceled")
	default:
		return StatusDone.Render("done in " + m.elapsed.Round(time.Millisecond).String())
	}
}
