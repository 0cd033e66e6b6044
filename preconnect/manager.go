// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package preconnect

import (
	"fmt"
	"net/url"
	"sync"

	"github.com/siemens/prewarm/gateway"
	"github.com/siemens/prewarm/types"

	"github.com/apex/log"
)

// DefaultMaxInflight is the global cap on concurrently outstanding name
// resolutions, protecting the network layer from being overwhelmed by
// speculative work.
const DefaultMaxInflight = 3

// Delegate receives the aggregated outcome of a navigation's warm-up work,
// exactly once per navigation, as soon as the last of its jobs has been
// dropped or completed.
type Delegate interface {
	PreconnectFinished(stats *types.PreconnectStats)
}

// Observer optionally receives fine-grained warm-up events for diagnostics
// and tracing. All methods are called from the manager's control goroutine,
// so implementations must not call back into the manager and should return
// quickly.
type Observer interface {
	// OnPreresolveOrigin fires when a job's name resolution is submitted to
	// the network layer.
	OnPreresolveOrigin(origin types.Origin)
	// OnPreresolveFinished fires when the network layer delivered its
	// resolution verdict.
	OnPreresolveFinished(origin types.Origin, found bool)
	// OnPreconnectOrigin fires when a preconnect is issued.
	OnPreconnectOrigin(origin types.Origin, numSockets int, allowCredentials bool)
}

// Manager schedules speculative warm-up work: it accepts hints about origins
// a navigation is about to need, coalesces duplicate hints per host, queues
// the resulting jobs, admits them against a global in-flight cap, and
// reports per-navigation outcomes to its delegate.
//
// All scheduler state is owned by a single control goroutine; the public
// entry points merely post operations into it, and gateway completions
// re-enter it the same way. There is deliberately no lock around the job
// table, the queue, or the group map.
type Manager struct {
	network     gateway.Network
	delegate    Delegate
	observer    Observer
	maxInflight int
	log         log.Interface

	ops      chan func()
	done     chan struct{}
	finished chan struct{}
	stopOnce sync.Once

	// Control-goroutine-owned state; never touched from anywhere else.
	jobs     *jobTable
	queue    jobQueue
	groups   map[string]*group // navigation host -> group
	inflight int
}

// ManagerOption can be passed to New when creating new [Manager] objects.
type ManagerOption func(*Manager)

// New returns a Manager scheduling warm-up work against the given network
// gateway and reporting finished navigations to the given delegate. Both a
// nil delegate and a nil observer are fine; the corresponding reports and
// events then simply go nowhere.
//
// Call [Manager.Shutdown] to release the manager's control goroutine when
// done.
func New(network gateway.Network, delegate Delegate, options ...ManagerOption) *Manager {
	m := &Manager{
		network:     network,
		delegate:    delegate,
		maxInflight: DefaultMaxInflight,
		log:         log.Log,
		ops:         make(chan func(), 16),
		done:        make(chan struct{}),
		finished:    make(chan struct{}),
		jobs:        newJobTable(),
		groups:      map[string]*group{},
	}
	for _, opt := range options {
		opt(m)
	}
	go m.run()
	return m
}

// WithMaxInflight overrides the global cap on concurrently outstanding name
// resolutions.
func WithMaxInflight(max int) ManagerOption {
	return func(m *Manager) {
		m.maxInflight = max
	}
}

// WithObserver attaches an [Observer] for fine-grained event tracing.
func WithObserver(o Observer) ManagerOption {
	return func(m *Manager) {
		m.observer = o
	}
}

// WithLogger routes the manager's debug logging to the given logger instead
// of the package-global apex/log logger.
func WithLogger(l log.Interface) ManagerOption {
	return func(m *Manager) {
		m.log = l
	}
}

// Start schedules warm-up jobs for a navigation to rawurl needing the given
// origins. While a navigation for the same host is still being worked on,
// further Start calls for that host are ignored. The requests join at the
// back of the admission queue, behind explicitly requested warm-ups.
//
// Request origins must already be normalized (see [types.ParseOrigin]);
// requests violating that contract are rejected and logged.
func (m *Manager) Start(rawurl string, requests []types.PreconnectRequest) {
	m.post(func() { m.start(rawurl, requests) })
}

// StartSingleHost schedules a resolve-only warm-up of rawurl's origin, ahead
// of all predicted work. Non-http(s) URLs are ignored. The job belongs to no
// navigation, so no delegate report will follow.
func (m *Manager) StartSingleHost(rawurl string) {
	m.post(func() { m.startSingleHost(rawurl) })
}

// StartSingleHostBatch schedules resolve-only warm-ups of the given
// hostnames, ahead of all predicted work but preserving their relative
// order. The jobs belong to no navigation, so no delegate report will
// follow.
func (m *Manager) StartSingleHostBatch(hostnames []string) {
	m.post(func() { m.startSingleHostBatch(hostnames) })
}

// StartPreconnect schedules a resolve-plus-single-socket warm-up of rawurl's
// origin, ahead of all predicted work. Non-http(s) URLs are ignored. The job
// belongs to no navigation, so no delegate report will follow.
func (m *Manager) StartPreconnect(rawurl string, allowCredentials bool) {
	m.post(func() { m.startPreconnect(rawurl, allowCredentials) })
}

// Stop cancels the navigation for rawurl's host, if any: queued jobs get
// dropped at admission time and in-flight resolves run to completion with
// their preconnect side effect suppressed. The delegate report still
// arrives once the group has drained.
func (m *Manager) Stop(rawurl string) {
	m.post(func() { m.stop(rawurl) })
}

// Shutdown terminates the manager's control goroutine. Queued and in-flight
// work is abandoned: late gateway verdicts are discarded and no further
// delegate reports are delivered. Shutdown is idempotent and returns only
// after the control goroutine exited.
func (m *Manager) Shutdown() {
	m.stopOnce.Do(func() { close(m.done) })
	<-m.finished
}

// post hands an operation to the control goroutine, unless the manager has
// already been shut down.
func (m *Manager) post(op func()) {
	select {
	case m.ops <- op:
	case <-m.done:
	}
}

// run is the manager's control goroutine: it executes posted operations
// strictly one after another, which is what makes all the lock-free state
// mutation in this package sound.
func (m *Manager) run() {
	defer close(m.finished)
	for {
		select {
		case op := <-m.ops:
			op()
		case <-m.done:
			return
		}
	}
}

func (m *Manager) start(rawurl string, requests []types.PreconnectRequest) {
	u, err := url.Parse(rawurl)
	if err != nil || u.Hostname() == "" {
		m.log.Debugf("preconnect: ignoring navigation with unusable URL %q", rawurl)
		return
	}
	host := u.Hostname()
	if _, ok := m.groups[host]; ok {
		// Warm-up for this host is already underway; don't double up.
		return
	}
	g := newGroup(rawurl)
	m.groups[host] = g
	for _, request := range requests {
		if request.Origin.IsZero() || request.NumSockets < 0 {
			m.log.Errorf("preconnect: rejecting malformed warm-up request %+v for %q",
				request, rawurl)
			continue
		}
		id := m.jobs.Add(&job{
			origin:           request.Origin,
			numSockets:       request.NumSockets,
			allowCredentials: request.AllowCredentials,
			groupHost:        host,
		})
		m.queue.PushBack(id)
		g.queued++
	}
	m.tryAdmitMore()
	if g.done() {
		// Nothing to do for this navigation (empty or all-rejected request
		// list); report right away instead of leaking the group.
		m.finalize(host, g)
	}
}

func (m *Manager) startSingleHost(rawurl string) {
	origin, err := types.OriginOf(rawurl)
	if err != nil || !origin.IsHTTP() {
		return
	}
	id := m.jobs.Add(&job{
		origin:           origin,
		allowCredentials: types.AllowCredentialsByDefault,
	})
	m.queue.PushFront(id)
	m.tryAdmitMore()
}

func (m *Manager) startSingleHostBatch(hostnames []string) {
	// Front-insertion reverses, so walk the batch back to front to keep the
	// caller's relative order intact.
	for i := len(hostnames) - 1; i >= 0; i-- {
		origin, err := types.OriginOf("http://" + hostnames[i])
		if err != nil {
			m.log.Debugf("preconnect: ignoring unusable hostname %q", hostnames[i])
			continue
		}
		id := m.jobs.Add(&job{
			origin:           origin,
			allowCredentials: types.AllowCredentialsByDefault,
		})
		m.queue.PushFront(id)
	}
	m.tryAdmitMore()
}

func (m *Manager) startPreconnect(rawurl string, allowCredentials bool) {
	origin, err := types.OriginOf(rawurl)
	if err != nil || !origin.IsHTTP() {
		return
	}
	id := m.jobs.Add(&job{
		origin:           origin,
		numSockets:       1,
		allowCredentials: allowCredentials,
	})
	m.queue.PushFront(id)
	m.tryAdmitMore()
}

func (m *Manager) stop(rawurl string) {
	u, err := url.Parse(rawurl)
	if err != nil {
		return
	}
	g, ok := m.groups[u.Hostname()]
	if !ok {
		return
	}
	g.cancelled = true
}

// group returns the navigation group a job belongs to, or nil for ad-hoc
// jobs. Groups are always re-looked-up by host key at use time instead of
// caching a pointer in the job.
func (m *Manager) group(j *job) *group {
	if j.groupHost == "" {
		return nil
	}
	return m.groups[j.groupHost]
}

// tryAdmitMore pulls jobs off the front of the admission queue for as long
// as there is queued work and in-flight capacity left, so no freed capacity
// ever lingers unused between turns. Jobs of cancelled groups are dropped
// here without ever contacting the network layer.
func (m *Manager) tryAdmitMore() {
	for m.queue.Len() > 0 && m.inflight < m.maxInflight {
		id, _ := m.queue.PopFront()
		j := m.jobs.Lookup(id)
		g := m.group(j)

		if g != nil && g.cancelled {
			m.jobs.Remove(id)
			g.queued--
			m.log.Debugf("preconnect: dropped queued warm-up of %s (navigation cancelled)", j.origin)
			if g.done() {
				// The group's last job just got dropped before ever being
				// admitted, so no resolve verdict will come around to
				// finalize the group; do it here.
				m.finalize(j.groupHost, g)
			}
			continue
		}

		m.preresolve(id, j)
		m.inflight++
		if g != nil {
			g.inflight++
			g.queued--
		}
	}
}

// preresolve submits a job's name resolution to the network gateway; the
// verdict re-enters the control goroutine via onPreresolveFinished.
func (m *Manager) preresolve(id jobID, j *job) {
	if m.observer != nil {
		m.observer.OnPreresolveOrigin(j.origin)
	}
	j.resolving = true
	m.network.Preresolve(j.origin, func(found, cached bool) {
		m.post(func() { m.onPreresolveFinished(id, found, cached) })
	})
}

// onPreresolveFinished correlates a resolve verdict back to its job and
// group. The ordering below is load-bearing: the job must leave the table
// and its stats be appended before the group's done check, and admitting
// more work must come last so the freed in-flight slot gets refilled within
// the same turn.
func (m *Manager) onPreresolveFinished(id jobID, found, cached bool) {
	j := m.jobs.Lookup(id)
	if !j.resolving {
		// A verdict for a merely queued job means the gateway invented a
		// completion; that's a logic bug, just like a dead handle.
		panic(fmt.Sprintf("preconnect: resolve verdict for job %d that was never submitted", id))
	}
	j.resolving = false
	g := m.group(j)

	if m.observer != nil {
		m.observer.OnPreresolveFinished(j.origin, found)
	}

	m.inflight--
	if g != nil {
		g.inflight--
	}

	needPreconnect := found && j.numSockets > 0 && (g == nil || !g.cancelled)
	if needPreconnect {
		m.preconnect(j.origin, j.numSockets, j.allowCredentials)
	}
	if g != nil && found {
		g.stats.Requests = append(g.stats.Requests, types.RequestStats{
			Origin:          j.origin,
			WasCached:       cached,
			WasPreconnected: needPreconnect,
		})
	}
	m.jobs.Remove(id)

	if g != nil && g.done() {
		m.finalize(j.groupHost, g)
	}
	m.tryAdmitMore()
}

// preconnect issues the fire-and-forget preconnect for a successfully
// resolved origin, mapping the job's credentials mode onto load flags.
func (m *Manager) preconnect(origin types.Origin, numSockets int, allowCredentials bool) {
	if m.observer != nil {
		m.observer.OnPreconnectOrigin(origin, numSockets, allowCredentials)
	}
	m.network.Preconnect(origin, numSockets, types.PreconnectLoadFlags(allowCredentials))
}

// finalize reports a drained navigation group to the delegate and erases it,
// re-arming the host for future Start calls.
func (m *Manager) finalize(host string, g *group) {
	delete(m.groups, host)
	m.log.Debugf("preconnect: navigation %s finished, %d origins warmed up",
		g.stats.URL, len(g.stats.Requests))
	if m.delegate != nil {
		m.delegate.PreconnectFinished(g.stats)
	}
}
