// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/siemens/prewarm/types"

	"github.com/muesli/termenv"
)

var (
	resolvingStyle   = termenv.Style{}.Foreground(termenv.ANSIYellow)
	warmStyle        = termenv.Style{}.Foreground(termenv.ANSIGreen)
	failedStyle      = termenv.Style{}.Foreground(termenv.ANSIRed)
	originLabelStyle = termenv.Style{}.Bold()
)

// warmupState is the coarse per-origin progress shown in the live display.
type warmupState int

const (
	stateQueued       warmupState = iota // waiting for admission
	stateResolving                       // name resolution in flight
	stateResolved                        // resolved, no preconnect (requested or suppressed)
	statePreconnected                    // resolved and preconnect issued
	stateFailed                          // name resolution failed
)

// originStatus is one row of the live display.
type originStatus struct {
	origin types.Origin
	state  warmupState
}

// statusBoard tracks per-origin warm-up progress, fed by scheduler observer
// events from the manager's control goroutine and drained by the rendering
// goroutine.
type statusBoard struct {
	mu     sync.Mutex
	order  []string                 // origins in announcement order
	states map[string]*originStatus // keyed by serialized origin
}

func newStatusBoard() *statusBoard {
	return &statusBoard{
		states: map[string]*originStatus{},
	}
}

// Expect announces an origin that warm-up work is about to be scheduled for,
// so it shows up as queued right from the start.
func (b *statusBoard) Expect(origin types.Origin) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := origin.String()
	if _, ok := b.states[key]; ok {
		return
	}
	b.order = append(b.order, key)
	b.states[key] = &originStatus{origin: origin, state: stateQueued}
}

// OnPreresolveOrigin implements [preconnect.Observer].
func (b *statusBoard) OnPreresolveOrigin(origin types.Origin) {
	b.update(origin, stateResolving)
}

// OnPreresolveFinished implements [preconnect.Observer].
func (b *statusBoard) OnPreresolveFinished(origin types.Origin, found bool) {
	if found {
		b.update(origin, stateResolved)
		return
	}
	b.update(origin, stateFailed)
}

// OnPreconnectOrigin implements [preconnect.Observer].
func (b *statusBoard) OnPreconnectOrigin(origin types.Origin, numSockets int, allowCredentials bool) {
	b.update(origin, statePreconnected)
}

func (b *statusBoard) update(origin types.Origin, state warmupState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := origin.String()
	status, ok := b.states[key]
	if !ok {
		b.order = append(b.order, key)
		status = &originStatus{origin: origin}
		b.states[key] = status
	}
	// Never regress: a preconnect event may only upgrade a resolved origin.
	if state > status.state {
		status.state = state
	}
}

// Snapshot returns the current per-origin statuses in announcement order.
func (b *statusBoard) Snapshot() []originStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	snapshot := make([]originStatus, 0, len(b.order))
	for _, key := range b.order {
		snapshot = append(snapshot, *b.states[key])
	}
	return snapshot
}

// renderer renders the live terminal display from status board snapshots.
type renderer struct {
	w       io.Writer
	spinner *spinner
}

// newRenderer returns a renderer writing to the specified io.Writer.
func newRenderer(w io.Writer) *renderer {
	sp := newSpinner()
	sp.Start(*spinnerInterval)
	return &renderer{
		w:       w,
		spinner: sp,
	}
}

// Stop the renderer's background ticker.
func (r *renderer) Stop() {
	r.spinner.Stop()
}

// Render one snapshot of per-origin warm-up statuses.
func (r *renderer) Render(statuses []originStatus) {
	if len(statuses) == 0 {
		fmt.Fprintln(r.w, "warming up...")
		return
	}
	// For neat display, determine the length of the longest origin so the
	// status column doesn't zig-zag around.
	maxlen := 0
	for _, status := range statuses {
		if l := len(status.origin.String()); l > maxlen {
			maxlen = l
		}
	}
	for _, status := range statuses {
		fmt.Fprintf(r.w, "%s ", originLabelStyle.Styled(fmt.Sprintf("%-*s", maxlen, status.origin)))
		switch status.state {
		case stateQueued:
			fmt.Fprintln(r.w, "· queued")
		case stateResolving:
			fmt.Fprintln(r.w, resolvingStyle.Styled(r.spinner.Spinner()+"resolving"))
		case stateResolved:
			fmt.Fprintln(r.w, warmStyle.Styled("✔ resolved"))
		case statePreconnected:
			fmt.Fprintln(r.w, warmStyle.Styled("✔ preconnected"))
		case stateFailed:
			fmt.Fprintln(r.w, failedStyle.Styled("× failed"))
		}
	}
}

// spinner cycles through a handful of braille frames on a fixed interval;
// just enough animation for the resolving rows.
type spinner struct {
	frames []string
	frame  atomic.Uint32
	ticker *time.Ticker
	done   chan struct{}
}

// newSpinner returns a spinner that doesn't spin yet; Start sets it in
// motion and Stop releases its background ticker again.
func newSpinner() *spinner {
	s := &spinner{done: make(chan struct{})}
	for _, r := range "⠉⠘⠰⠤⠆⠃" {
		s.frames = append(s.frames, string(r)+" ")
	}
	return s
}

// Spinner returns the current spinner frame.
func (s *spinner) Spinner() string {
	return s.frames[int(s.frame.Load())%len(s.frames)]
}

// Start advancing the spinner frame every interval.
func (s *spinner) Start(interval time.Duration) {
	s.ticker = time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-s.ticker.C:
				s.frame.Add(1)
			case <-s.done:
				s.ticker.Stop()
				return
			}
		}
	}()
}

// Stop the spinner's background ticker.
func (s *spinner) Stop() {
	close(s.done)
}
