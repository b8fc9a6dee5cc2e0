// Package notify shows transient success and error messages. The two kinds are
// independent channels; each new message replaces the current one of its kind
// and clears itself after a fixed duration.
package notify

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"
)

// DefaultDuration is how long a message stays visible.
const DefaultDuration = 9 * time.Second

// Kind selects the message channel.
type Kind int

const (
	KindSuccess Kind = iota
	KindError
)

func (k Kind) String() string {
	if k == KindError {
		return "error"
	}
	return "success"
}

// Sink receives every message when it is shown.
type Sink func(kind Kind, message string)

// Messages is the currently visible message of each kind; empty when none.
type Messages struct {
	Success string
	Error   string
}

type channel struct {
	message string
	seq     uint64
	timer   *time.Timer
}

// Notifier tracks the visible message of each kind.
type Notifier struct {
	duration time.Duration
	sink     Sink

	mu       sync.Mutex
	channels [2]channel
}

// New creates a notifier. A non-positive duration uses DefaultDuration; sink may be nil.
func New(duration time.Duration, sink Sink) *Notifier {
	if duration <= 0 {
		duration = DefaultDuration
	}
	return &Notifier{duration: duration, sink: sink}
}

// Success shows a success message.
func (n *Notifier) Success(message string) {
	n.show(KindSuccess, message)
}

// Error shows an error message.
func (n *Notifier) Error(message string) {
	n.show(KindError, message)
}

// Successf formats and shows a success message.
func (n *Notifier) Successf(format string, args ...any) {
	n.show(KindSuccess, fmt.Sprintf(format, args...))
}

// Errorf formats and shows an error message.
func (n *Notifier) Errorf(format string, args ...any) {
	n.show(KindError, fmt.Sprintf(format, args...))
}

// Active returns the messages that have not expired yet.
func (n *Notifier) Active() Messages {
	n.mu.Lock()
	defer n.mu.Unlock()
	return Messages{
		Success: n.channels[KindSuccess].message,
		Error:   n.channels[KindError].message,
	}
}

// Clear hides both channels at once and cancels their expiry timers.
func (n *Notifier) Clear() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := range n.channels {
		ch := &n.channels[i]
		if ch.timer != nil {
			ch.timer.Stop()
			ch.timer = nil
		}
		ch.message = ""
		ch.seq++
	}
}

// Close stops pending expiry timers and clears both channels.
func (n *Notifier) Close() {
	n.Clear()
}

func (n *Notifier) show(kind Kind, message string) {
	n.mu.Lock()
	ch := &n.channels[kind]
	ch.seq++
	seq := ch.seq
	if ch.timer != nil {
		ch.timer.Stop()
	}
	ch.message = message
	ch.timer = time.AfterFunc(n.duration, func() { n.expire(kind, seq) })
	n.mu.Unlock()

	if kind == KindError {
		slog.Warn("notify_error", "message", message)
	} else {
		slog.Info("notify_success", "message", message)
	}
	if n.sink != nil {
		n.sink(kind, message)
	}
}

func (n *Notifier) expire(kind Kind, seq uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	ch := &n.channels[kind]
	// A newer message owns the channel.
	if ch.seq != seq {
		return
	}
	ch.message = ""
	ch.timer = nil
}

// WriterSink prints messages as single lines, coloured when colorize is set.
func WriterSink(w io.Writer, colorize bool) Sink {
	var mu sync.Mutex
	return func(kind Kind, message string) {
		mu.Lock()
		defer mu.Unlock()
		prefix, colors := "✔", text.Colors{text.FgGreen}
		if kind == KindError {
			prefix, colors = "✘", text.Colors{text.FgRed}
		}
		line := fmt.Sprintf("%s %s", prefix, message)
		if colorize {
			line = colors.Sprint(line)
		}
		fmt.Fprintln(w, line)
	}
}
