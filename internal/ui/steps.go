package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
)

// StepStatus represents the current state of a step
type StepStatus int

const (
	StepPending  StepStatus = iota // Not yet started
	StepRunning                    // Currently executing
	StepComplete                   // Successfully completed
	StepFailed                     // Failed
	StepSkipped                    // Skipped
)

// Step markers
const (
	StepMarkerPending = "○"
	StepMarkerRunning = "●"
	StepMarkerSkipped = "⊘"
)

// Step styles
var (
	stepCompleteStyle = lipgloss.NewStyle().Foreground(SuccessColor)
	stepRunningStyle  = lipgloss.NewStyle().Foreground(PrimaryColor).Bold(true)
	stepPendingStyle  = lipgloss.NewStyle().Foreground(MutedColor)
	stepNoteStyle     = lipgloss.NewStyle().Foreground(MutedColor).Italic(true)
)

// Step represents a single step in a multi-step operation
type Step struct {
	Number  int        // Step number (1-based)
	Name    string     // Step description
	Status  StepStatus // Current status
	Message string     // Optional status message (e.g., "4 devices", "3s")
}

// StepCallback is the function signature for step progress updates.
// Operations call this to report progress.
type StepCallback func(stepNumber int, status StepStatus, message string)

// Steps tracks a fixed list of named steps and prints each transition.
type Steps struct {
	out   io.Writer
	steps []Step
	bar   progress.Model
	start time.Time
}

// NewSteps creates a step tracker for names. If w is nil, os.Stdout is used.
func NewSteps(w io.Writer, names ...string) *Steps {
	if w == nil {
		w = os.Stdout
	}
	steps := make([]Step, len(names))
	for i, name := range names {
		steps[i] = Step{Number: i + 1, Name: name}
	}
	return &Steps{
		out:   w,
		steps: steps,
		bar:   progress.New(progress.WithDefaultGradient(), progress.WithWidth(30)),
		start: time.Now(),
	}
}

// Update records a step transition and prints the step line. Running steps
// are printed with a carriage return so the final status overwrites them.
func (s *Steps) Update(stepNumber int, status StepStatus, message string) {
	if stepNumber < 1 || stepNumber > len(s.steps) {
		return
	}
	step := &s.steps[stepNumber-1]
	step.Status = status
	step.Message = message

	line := s.renderStepLine(*step)
	if status == StepRunning {
		_, _ = fmt.Fprint(s.out, line+"\r")
		return
	}
	_, _ = fmt.Fprintln(s.out, line)
}

// Callback returns Update as a StepCallback.
func (s *Steps) Callback() StepCallback {
	return s.Update
}

// Percent returns the fraction of steps that are complete or skipped.
func (s *Steps) Percent() float64 {
	if len(s.steps) == 0 {
		return 0
	}
	done := 0
	for _, step := range s.steps {
		if step.Status == StepComplete || step.Status == StepSkipped {
			done++
		}
	}
	return float64(done) / float64(len(s.steps))
}

// Elapsed returns the time since the tracker was created.
func (s *Steps) Elapsed() time.Duration {
	return time.Since(s.start)
}

// Steps returns a copy of the tracked steps.
func (s *Steps) Steps() []Step {
	return append([]Step(nil), s.steps...)
}

// RenderBar renders the overall progress bar with a percentage.
func (s *Steps) RenderBar() string {
	pct := s.Percent()
	return lipgloss.NewStyle().
		PaddingLeft(2).
		Render(fmt.Sprintf("%s  %3.0f%%", s.bar.ViewAs(pct), pct*100))
}

// renderStepLine renders a single step line
func (s *Steps) renderStepLine(step Step) string {
	var marker string
	var style lipgloss.Style

	switch step.Status {
	case StepComplete:
		marker, style = SuccessMarker, stepCompleteStyle
	case StepRunning:
		marker, style = StepMarkerRunning, stepRunningStyle
	case StepFailed:
		marker, style = FailureMarker, ErrorTitleStyle
	case StepSkipped:
		marker, style = StepMarkerSkipped, stepPendingStyle
	default:
		marker, style = StepMarkerPending, stepPendingStyle
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("  [%d/%d] ", step.Number, len(s.steps)))
	b.WriteString(style.Render(step.Name))

	// Align markers in one column
	padding := 36 - lipgloss.Width(step.Name)
	if padding < 1 {
		padding = 1
	}
	b.WriteString(strings.Repeat(" ", padding))
	b.WriteString(style.Render(marker))

	if step.Message != "" {
		b.WriteString("  ")
		b.WriteString(stepNoteStyle.Render("(" + step.Message + ")"))
	}
	return b.String()
}
