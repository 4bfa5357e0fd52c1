package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/Veraticus/recurrent/internal/model"
)

// ErrInputTerminated is returned when input ends before a choice is made.
var ErrInputTerminated = errors.New("input terminated")

// Decision is the user's answer for one detected candidate.
type Decision int

// Review decisions.
const (
	DecisionSkip Decision = iota
	DecisionAccept
	DecisionQuit
)

// ReviewStats summarizes an interactive review session.
type ReviewStats struct {
	Duration time.Duration
	Reviewed int
	Accepted int
	Skipped  int
}

// Prompter walks the user through detected candidates one at a time.
type Prompter struct {
	startTime time.Time
	writer    io.Writer
	reader    *LineReader
	stats     ReviewStats
	acceptAll bool
	mu        sync.Mutex
}

// NewPrompter creates a prompter reading answers from r and writing to w.
func NewPrompter(r io.Reader, w io.Writer) *Prompter {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	return &Prompter{
		reader:    NewLineReader(r),
		writer:    w,
		startTime: time.Now(),
	}
}

// ReviewCandidate shows one candidate and asks whether to accept it. After the
// user picks "accept all", every later candidate is accepted without asking.
func (p *Prompter) ReviewCandidate(ctx context.Context, position, total int, c model.RecurringCandidate) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return DecisionQuit, err
	}

	if p.acceptAll {
		p.record(DecisionAccept)
		return DecisionAccept, nil
	}

	title := fmt.Sprintf("Candidate %d of %d: %s", position, total, c.Title)
	if _, err := fmt.Fprintln(p.writer, RenderBox(title, formatCandidate(c))); err != nil {
		return DecisionQuit, fmt.Errorf("failed to write candidate: %w", err)
	}
	if _, err := fmt.Fprintln(p.writer, "  [A] Accept as a recurring series\n  [S] Skip\n  [E] Accept this and every remaining candidate\n  [Q] Quit"); err != nil {
		return DecisionQuit, fmt.Errorf("failed to write options: %w", err)
	}

	choice, err := p.promptChoice(ctx, "Choice [A/S/E/Q]", []string{"a", "s", "e", "q"})
	if err != nil {
		return DecisionQuit, err
	}

	decision := DecisionSkip
	switch choice {
	case "a":
		decision = DecisionAccept
	case "e":
		p.acceptAll = true
		decision = DecisionAccept
	case "q":
		return DecisionQuit, nil
	}
	p.record(decision)
	return decision, nil
}

// Stats returns the session counters so far.
func (p *Prompter) Stats() ReviewStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := p.stats
	stats.Duration = time.Since(p.startTime)
	return stats
}

// ShowCompletion prints the session summary.
func (p *Prompter) ShowCompletion() {
	stats := p.Stats()
	msg := FormatSuccess(fmt.Sprintf("Reviewed %d candidates: %d accepted, %d skipped (%s)",
		stats.Reviewed, stats.Accepted, stats.Skipped, stats.Duration.Round(time.Second)))
	if _, err := fmt.Fprintln(p.writer, msg); err != nil {
		slog.Warn("Failed to write review summary", "error", err)
	}
}

func (p *Prompter) record(d Decision) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats.Reviewed++
	if d == DecisionAccept {
		p.stats.Accepted++
	} else {
		p.stats.Skipped++
	}
}

func (p *Prompter) promptChoice(ctx context.Context, prompt string, valid []string) (string, error) {
	for {
		if _, err := fmt.Fprint(p.writer, FormatPrompt(prompt)); err != nil {
			return "", fmt.Errorf("failed to write prompt: %w", err)
		}

		input, err := p.reader.ReadLine(ctx)
		if errors.Is(err, io.EOF) {
			return "", ErrInputTerminated
		}
		if err != nil {
			return "", err
		}

		choice := strings.ToLower(input)
		for _, v := range valid {
			if choice == v {
				return choice, nil
			}
		}

		if _, err := fmt.Fprintln(p.writer, FormatError("Invalid choice. Please try again.")); err != nil {
			slog.Warn("Failed to write error message", "error", err)
		}
	}
}

func formatCandidate(c model.RecurringCandidate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Amount:     %s", FormatAmount(c.Amount, ""))
	if c.IsVariable {
		b.WriteString(SubtleStyle.Render(" (varies)"))
	}
	fmt.Fprintf(&b, "\nSchedule:   %s", describeSchedule(c.Frequency, c.Interval))
	fmt.Fprintf(&b, "\nSeen:       %d times, %s to %s", c.Occurrences,
		c.StartDate.Format(time.DateOnly), c.LastDate.Format(time.DateOnly))
	fmt.Fprintf(&b, "\nEvery:      %.1f days (±%.1f)", c.AverageInterval, c.IntervalStdDev)
	fmt.Fprintf(&b, "\nConfidence: %.0f%%", c.ConfidenceScore*100)
	fmt.Fprintf(&b, "\nNext:       %s", c.NextScheduledDate.Format(time.DateOnly))
	return b.String()
}
