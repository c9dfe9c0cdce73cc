package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// spinnerFrames defines the spinner animation frames
var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// StageStatus represents the status of a pipeline stage
type StageStatus int

const (
	StagePending StageStatus = iota
	StageRunning
	StageDone
	StageFailed
	StageSkipped
)

// Stage is one step of a fusion run (acquire, fuse, write, ...).
type Stage struct {
	Name     string
	Status   StageStatus
	Message  string
	Details  string // shown once the stage is done
	Started  time.Time
	Finished time.Time
}

// Pipeline renders the stages of a run with a spinner on the running stage.
// Without animation only the final state is written, which keeps output
// stable when stdout is not a terminal.
type Pipeline struct {
	writer     io.Writer
	animate    bool
	stages     []*Stage
	mu         sync.Mutex
	spinnerIdx int
	stopChan   chan struct{}
	doneChan   chan struct{}
	running    bool
	lastRender string
	now        func() time.Time
}

// NewPipeline creates a new stage tracker
func NewPipeline(w io.Writer, animate bool) *Pipeline {
	return &Pipeline{
		writer:   w,
		animate:  animate,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
		now:      time.Now,
	}
}

// AddStage adds a pending stage and returns its index
func (p *Pipeline) AddStage(name string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stages = append(p.stages, &Stage{Name: name, Status: StagePending})
	return len(p.stages) - 1
}

func (p *Pipeline) update(idx int, fn func(s *Stage)) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if idx >= 0 && idx < len(p.stages) {
		fn(p.stages[idx])
	}
}

// StartStage marks a stage as running
func (p *Pipeline) StartStage(idx int, message string) {
	p.update(idx, func(s *Stage) {
		s.Status = StageRunning
		s.Message = message
		s.Started = p.now()
	})
}

// CompleteStage marks a stage as done
func (p *Pipeline) CompleteStage(idx int, details string) {
	p.update(idx, func(s *Stage) {
		s.Status = StageDone
		s.Details = details
		s.Finished = p.now()
	})
}

// FailStage marks a stage as failed
func (p *Pipeline) FailStage(idx int, errMsg string) {
	p.update(idx, func(s *Stage) {
		s.Status = StageFailed
		s.Message = errMsg
		s.Finished = p.now()
	})
}

// SkipStage marks a stage as skipped
func (p *Pipeline) SkipStage(idx int, reason string) {
	p.update(idx, func(s *Stage) {
		s.Status = StageSkipped
		s.Message = reason
	})
}

// UpdateMessage updates the message of a running stage
func (p *Pipeline) UpdateMessage(idx int, message string) {
	p.update(idx, func(s *Stage) { s.Message = message })
}

// Stages returns a snapshot of the stages.
func (p *Pipeline) Stages() []Stage {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Stage, len(p.stages))
	for i, s := range p.stages {
		out[i] = *s
	}
	return out
}

// Start begins the display
func (p *Pipeline) Start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.mu.Unlock()

	if !p.animate {
		close(p.doneChan)
		return
	}

	go func() {
		defer close(p.doneChan)
		ticker := time.NewTicker(80 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-p.stopChan:
				return
			case <-ticker.C:
				p.mu.Lock()
				p.spinnerIdx = (p.spinnerIdx + 1) % len(spinnerFrames)
				p.mu.Unlock()
				p.render()
			}
		}
	}()
}

// Stop ends the display and writes the final state
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	close(p.stopChan)
	<-p.doneChan
	p.renderFinal()
}

// clearLast moves the cursor over the previous frame.
func (p *Pipeline) clearLast(b *strings.Builder) {
	if p.lastRender == "" {
		return
	}
	lineCount := strings.Count(p.lastRender, "\n") + 1
	for i := 0; i < lineCount; i++ {
		b.WriteString("\033[A\033[K")
	}
}

func (p *Pipeline) render() {
	p.mu.Lock()
	defer p.mu.Unlock()

	var frame strings.Builder
	for _, s := range p.stages {
		frame.WriteString(p.renderStage(s))
		frame.WriteString("\n")
	}

	var b strings.Builder
	p.clearLast(&b)
	b.WriteString(frame.String())
	p.lastRender = strings.TrimSuffix(frame.String(), "\n")
	fmt.Fprint(p.writer, b.String())
}

func (p *Pipeline) renderFinal() {
	p.mu.Lock()
	defer p.mu.Unlock()

	var b strings.Builder
	p.clearLast(&b)
	for _, s := range p.stages {
		b.WriteString(renderStageFinal(s))
		b.WriteString("\n")
	}
	p.lastRender = ""
	fmt.Fprint(p.writer, b.String())
}

func (p *Pipeline) renderStage(s *Stage) string {
	var icon string
	var nameStyle styleWrapper
	var msgStyle styleWrapper

	switch s.Status {
	case StagePending:
		icon = Muted.Render("○")
		nameStyle = StepPending
		msgStyle = Dim
	case StageRunning:
		icon = Secondary.Render(spinnerFrames[p.spinnerIdx])
		nameStyle = StepRunning
		msgStyle = Secondary
	case StageDone:
		icon = GetCheckMark()
		nameStyle = StepComplete
		msgStyle = Dim
	case StageFailed:
		icon = GetCrossMark()
		nameStyle = StepFailed
		msgStyle = Error
	case StageSkipped:
		icon = Warning.Render("⊘")
		nameStyle = StepSkipped
		msgStyle = Warning
	}

	line := fmt.Sprintf("%s %s", icon, nameStyle.Render(s.Name))
	if s.Message != "" {
		line += " " + msgStyle.Render(s.Message)
	}
	return line
}

func renderStageFinal(s *Stage) string {
	var icon string
	var nameStyle styleWrapper

	switch s.Status {
	case StageDone:
		icon = GetCheckMark()
		nameStyle = StepComplete
	case StageFailed:
		icon = GetCrossMark()
		nameStyle = StepFailed
	case StageSkipped:
		icon = Warning.Render("⊘")
		nameStyle = StepSkipped
	default:
		// A stage still running at Stop never finished.
		icon = Muted.Render("○")
		nameStyle = StepPending
	}

	line := fmt.Sprintf("%s %s", icon, nameStyle.Render(s.Name))

	switch {
	case s.Status == StageDone && s.Details != "":
		detail := s.Details
		if !s.Started.IsZero() && !s.Finished.IsZero() {
			detail += fmt.Sprintf(" (%s)", s.Finished.Sub(s.Started).Round(time.Millisecond))
		}
		line += " " + Dim.Render("→ "+detail)
	case s.Status == StageFailed && s.Message != "":
		line += " " + Error.Render("→ "+s.Message)
	case s.Status == StageSkipped && s.Message != "":
		line += " " + Warning.Render("→ "+s.Message)
	}
	return line
}
