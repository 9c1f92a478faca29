// Package session tracks the exchange clock: session resets and the end of
// the trading window.
package session

import (
	"context"

	"ritbot-go/internal/exchange"
	"ritbot-go/internal/metrics"
)

// Event classifies what a poll observed.
type Event int

const (
	// EventNone is an ordinary in-window tick.
	EventNone Event = iota
	// EventNewSession marks a session reset: derived flags have been cleared.
	EventNewSession
	// EventWindowClosed fires once, on the first tick past the cutoff.
	EventWindowClosed
	// EventPastWindow is every later tick past the cutoff until the next reset.
	EventPastWindow
)

func (e Event) String() string {
	switch e {
	case EventNewSession:
		return "new_session"
	case EventWindowClosed:
		return "window_closed"
	case EventPastWindow:
		return "past_window"
	default:
		return "none"
	}
}

// CaseSource is the slice of the gateway the poller needs.
type CaseSource interface {
	Case(ctx context.Context) (exchange.Session, error)
}

// Poller is driven by a single loop and is not safe for concurrent use.
type Poller struct {
	src     CaseSource
	cutoff  int
	shared  *Shared
	handled bool
	seen    bool
	last    exchange.Session
}

// NewPoller builds a poller for a window that closes after cutoff. shared may be nil.
func NewPoller(src CaseSource, cutoff int, shared *Shared) *Poller {
	if shared != nil {
		shared.SetCutoff(cutoff)
	}
	return &Poller{src: src, cutoff: cutoff, shared: shared}
}

// Poll fetches the session and classifies the tick. Errors are returned
// untouched so the caller can back off and poll again.
func (p *Poller) Poll(ctx context.Context) (exchange.Session, Event, error) {
	sess, err := p.src.Case(ctx)
	if err != nil {
		return exchange.Session{}, EventNone, err
	}
	reset := p.isReset(sess)
	p.last, p.seen = sess, true
	metrics.TicksTotal.Inc()
	metrics.SessionTick.Set(float64(sess.Tick))
	if p.shared != nil {
		p.shared.SetTick(sess.Tick)
	}

	if reset {
		p.handled = false
		if sess.Tick <= p.cutoff {
			return sess, EventNewSession, nil
		}
	}
	switch {
	case sess.Tick > p.cutoff:
		if p.handled {
			return sess, EventPastWindow, nil
		}
		p.handled = true
		return sess, EventWindowClosed, nil
	default:
		return sess, EventNone, nil
	}
}

// isReset reports a new session: tick 0, or a clock that went backwards or
// changed period since the last poll, for when tick 0 itself was missed.
func (p *Poller) isReset(sess exchange.Session) bool {
	if sess.Tick == 0 {
		return true
	}
	if !p.seen {
		return false
	}
	return sess.Tick < p.last.Tick || (p.last.Period != 0 && sess.Period != p.last.Period)
}

// Last is the most recent successfully polled session.
func (p *Poller) Last() exchange.Session { return p.last }

// Cutoff is the last tick on which trading is allowed.
func (p *Poller) Cutoff() int { return p.cutoff }

// WindowHandled reports whether end-of-window actions already fired this session.
func (p *Poller) WindowHandled() bool { return p.handled }
