package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// InterruptHandler cancels a long-running command on SIGINT or SIGTERM and tells
// the user what state was left behind.
type InterruptHandler struct {
	writer      io.Writer
	cancel      context.CancelFunc
	signals     chan os.Signal
	message     string
	interrupted bool
	mu          sync.Mutex
}

// NewInterruptHandler creates a handler that prints message when interrupted.
func NewInterruptHandler(writer io.Writer, message string) *InterruptHandler {
	if writer == nil {
		writer = os.Stderr
	}
	return &InterruptHandler{
		writer:  writer,
		message: message,
	}
}

// HandleInterrupts returns a context that is cancelled on the first interrupt.
// Call Stop when the command finishes.
func (h *InterruptHandler) HandleInterrupts(ctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.signals = make(chan os.Signal, 1)
	signal.Notify(h.signals, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case _, ok := <-h.signals:
			if ok {
				h.trigger()
			}
		case <-ctx.Done():
		}
	}()

	return ctx
}

// Stop releases the signal subscription and the derived context.
func (h *InterruptHandler) Stop() {
	if h.signals != nil {
		signal.Stop(h.signals)
	}
	if h.cancel != nil {
		h.cancel()
	}
}

func (h *InterruptHandler) trigger() {
	h.mu.Lock()
	first := !h.interrupted
	h.interrupted = true
	h.mu.Unlock()

	if first {
		msg := "\n" + FormatWarning("Interrupted")
		if h.message != "" {
			msg += "\n" + FormatInfo(h.message)
		}
		if _, err := fmt.Fprintln(h.writer, msg); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write interrupt message: %v\n", err)
		}
	}
	if h.cancel != nil {
		h.cancel()
	}
}

// WasInterrupted reports whether an interrupt was received.
func (h *InterruptHandler) WasInterrupted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.interrupted
}
