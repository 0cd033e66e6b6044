// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package preconnect

import (
	"fmt"
	"sync"
	"time"

	"github.com/siemens/prewarm/types"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	. "github.com/onsi/gomega/gleak"
	. "github.com/thediveo/success"
)

// fakeNetwork implements gateway.Network, recording all calls and holding on
// to resolve callbacks so the specs control exactly when and how each
// resolve completes.
type fakeNetwork struct {
	mu          sync.Mutex
	resolves    []resolveCall
	fired       int
	preconnects []preconnectCall
}

type resolveCall struct {
	origin types.Origin
	fn     func(found, cached bool)
}

type preconnectCall struct {
	origin     types.Origin
	numSockets int
	flags      types.LoadFlags
}

func (f *fakeNetwork) Preresolve(origin types.Origin, fn func(found, cached bool)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolves = append(f.resolves, resolveCall{origin: origin, fn: fn})
}

func (f *fakeNetwork) Preconnect(origin types.Origin, numSockets int, flags types.LoadFlags) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.preconnects = append(f.preconnects, preconnectCall{
		origin: origin, numSockets: numSockets, flags: flags,
	})
}

// ResolveCount returns how many resolves were submitted so far.
func (f *fakeNetwork) ResolveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.resolves)
}

// Outstanding returns how many submitted resolves haven't completed yet.
func (f *fakeNetwork) Outstanding() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.resolves) - f.fired
}

// ResolvedHosts returns the hosts of all submitted resolves, in submission
// order.
func (f *fakeNetwork) ResolvedHosts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	hosts := make([]string, 0, len(f.resolves))
	for _, r := range f.resolves {
		hosts = append(hosts, r.origin.Host)
	}
	return hosts
}

// Preconnects returns all preconnect calls seen so far.
func (f *fakeNetwork) Preconnects() []preconnectCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]preconnectCall(nil), f.preconnects...)
}

// Fire completes the oldest still-outstanding resolve with the given
// verdict.
func (f *fakeNetwork) Fire(found, cached bool) {
	f.mu.Lock()
	Expect(f.fired).To(BeNumerically("<", len(f.resolves)), "no outstanding resolve to fire")
	fn := f.resolves[f.fired].fn
	f.fired++
	f.mu.Unlock()
	fn(found, cached)
}

// recordingDelegate collects the delegate reports.
type recordingDelegate struct {
	mu      sync.Mutex
	reports []*types.PreconnectStats
}

func (d *recordingDelegate) PreconnectFinished(stats *types.PreconnectStats) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reports = append(d.reports, stats)
}

func (d *recordingDelegate) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.reports)
}

func (d *recordingDelegate) Reports() []*types.PreconnectStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*types.PreconnectStats(nil), d.reports...)
}

// recordingObserver collects observer events.
type recordingObserver struct {
	mu          sync.Mutex
	preresolves []types.Origin
	verdicts    []string
	preconnects []string
}

func (o *recordingObserver) OnPreresolveOrigin(origin types.Origin) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.preresolves = append(o.preresolves, origin)
}

func (o *recordingObserver) OnPreresolveFinished(origin types.Origin, found bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.verdicts = append(o.verdicts, fmt.Sprintf("%s/%t", origin, found))
}

func (o *recordingObserver) OnPreconnectOrigin(origin types.Origin, numSockets int, allowCredentials bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.preconnects = append(o.preconnects, fmt.Sprintf("%s/%d/%t", origin, numSockets, allowCredentials))
}

func (o *recordingObserver) Events() (preresolves []types.Origin, verdicts, preconnects []string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]types.Origin(nil), o.preresolves...),
		append([]string(nil), o.verdicts...),
		append([]string(nil), o.preconnects...)
}

func somerequests(count int, numSockets int) []types.PreconnectRequest {
	requests := make([]types.PreconnectRequest, 0, count)
	for i := 0; i < count; i++ {
		requests = append(requests, types.PreconnectRequest{
			Origin:           Successful(types.ParseOrigin(fmt.Sprintf("https://asset%d.example", i))),
			NumSockets:       numSockets,
			AllowCredentials: true,
		})
	}
	return requests
}

var _ = Describe("warm-up manager", func() {

	var network *fakeNetwork
	var delegate *recordingDelegate

	BeforeEach(func() {
		network = &fakeNetwork{}
		delegate = &recordingDelegate{}
		goodgos := Goroutines()
		DeferCleanup(func() {
			Eventually(Goroutines).WithTimeout(3 * time.Second).WithPolling(250 * time.Millisecond).
				ShouldNot(HaveLeaked(goodgos))
		})
	})

	It("never exceeds the global in-flight cap", func() {
		m := New(network, delegate, WithMaxInflight(2))
		DeferCleanup(m.Shutdown)

		m.Start("https://www.example", somerequests(5, 0))
		Eventually(network.ResolveCount).Should(Equal(2))
		Consistently(network.Outstanding).Should(BeNumerically("<=", 2))

		for fired := 0; fired < 5; fired++ {
			Eventually(network.Outstanding).Should(BeNumerically(">", 0))
			network.Fire(true, false)
			Consistently(network.Outstanding).Should(BeNumerically("<=", 2))
		}
		Eventually(network.ResolveCount).Should(Equal(5))
		Eventually(delegate.Count).Should(Equal(1))
	})

	It("ignores duplicate navigations while the first is active, re-arming afterwards", func() {
		m := New(network, delegate, WithMaxInflight(4))
		DeferCleanup(m.Shutdown)

		m.Start("https://www.example", somerequests(2, 0))
		Eventually(network.ResolveCount).Should(Equal(2))
		m.Start("https://www.example", somerequests(2, 0))
		Consistently(network.ResolveCount).Should(Equal(2), "duplicate navigation must not double the jobs")

		network.Fire(true, false)
		network.Fire(true, false)
		Eventually(delegate.Count).Should(Equal(1))
		Expect(delegate.Reports()[0].Requests).To(HaveLen(2))

		// With the first navigation finished and reported, the host is fair
		// game again.
		m.Start("https://www.example", somerequests(1, 0))
		Eventually(network.ResolveCount).Should(Equal(3))
		network.Fire(true, false)
		Eventually(delegate.Count).Should(Equal(2))
	})

	It("suppresses preconnects and drops queued jobs after Stop, still reporting once", func() {
		m := New(network, delegate, WithMaxInflight(1))
		DeferCleanup(m.Shutdown)

		m.Start("https://www.example", somerequests(2, 1))
		Eventually(network.ResolveCount).Should(Equal(1))

		m.Stop("https://www.example/landing?page=1")
		network.Fire(true, false) // resolves fine, but the navigation is cancelled

		Eventually(delegate.Count).Should(Equal(1))
		Expect(network.Preconnects()).To(BeEmpty(), "cancelled navigations must not preconnect")
		Expect(network.ResolveCount()).To(Equal(1), "queued job must be dropped, not admitted")

		report := delegate.Reports()[0]
		Expect(report.Requests).To(HaveLen(1))
		Expect(report.Requests[0].WasPreconnected).To(BeFalse())
	})

	It("admits explicitly requested hosts ahead of the queue, batches in order", func() {
		m := New(network, delegate, WithMaxInflight(1))
		DeferCleanup(m.Shutdown)

		// Occupy the single in-flight slot so everything that follows has
		// to queue up and we get to see the pure queue order.
		m.StartSingleHost("http://blocker.example")
		Eventually(network.ResolveCount).Should(Equal(1))

		m.StartSingleHostBatch([]string{"a.example", "b.example", "c.example"})
		m.StartSingleHost("http://d.example")

		for fired := 1; fired <= 4; fired++ {
			network.Fire(true, false)
			Eventually(network.ResolveCount).Should(Equal(fired + 1))
		}
		network.Fire(true, false)

		Expect(network.ResolvedHosts()).To(Equal([]string{
			"blocker.example", "d.example", "a.example", "b.example", "c.example",
		}))
	})

	It("preconnects after a successful resolve and refills the freed slot", func() {
		m := New(network, delegate, WithMaxInflight(1))
		DeferCleanup(m.Shutdown)

		reqA := types.PreconnectRequest{
			Origin:           Successful(types.ParseOrigin("https://cdn.example")),
			NumSockets:       1,
			AllowCredentials: true,
		}
		reqB := types.PreconnectRequest{
			Origin: Successful(types.ParseOrigin("https://fonts.example")),
		}
		m.Start("https://www.example", []types.PreconnectRequest{reqA, reqB})
		Eventually(network.ResolveCount).Should(Equal(1))

		network.Fire(true, false)
		Eventually(network.Preconnects).Should(HaveLen(1))
		Expect(network.Preconnects()[0].origin).To(Equal(reqA.Origin))
		Expect(network.Preconnects()[0].numSockets).To(Equal(1))
		Eventually(network.ResolveCount).Should(Equal(2), "freed slot must admit the next queued job")

		network.Fire(true, false)
		Eventually(delegate.Count).Should(Equal(1))
		report := delegate.Reports()[0]
		Expect(report.Requests).To(HaveLen(2))
		Expect(report.Requests[0].WasPreconnected).To(BeTrue())
		Expect(report.Requests[1].WasPreconnected).To(BeFalse(), "resolve-only job must not preconnect")
	})

	It("maps disallowed credentials onto restrictive load flags", func() {
		observer := &recordingObserver{}
		m := New(network, delegate, WithObserver(observer))
		DeferCleanup(m.Shutdown)

		m.StartPreconnect("https://login.example/form?user=x", false)
		Eventually(network.ResolveCount).Should(Equal(1))
		network.Fire(true, false)

		Eventually(network.Preconnects).Should(HaveLen(1))
		preconnect := network.Preconnects()[0]
		Expect(preconnect.flags).To(Equal(
			types.LoadDoNotSendCookies | types.LoadDoNotSaveCookies | types.LoadDoNotSendAuthData))

		m.StartPreconnect("https://public.example", true)
		Eventually(network.ResolveCount).Should(Equal(2))
		network.Fire(true, false)
		Eventually(network.Preconnects).Should(HaveLen(2))
		Expect(network.Preconnects()[1].flags).To(Equal(types.LoadNormal))

		_, _, preconnects := observer.Events()
		Expect(preconnects).To(Equal([]string{
			"https://login.example/1/false",
			"https://public.example/1/true",
		}))
	})

	It("records no stats for failed resolves, yet completes the navigation", func() {
		m := New(network, delegate, WithMaxInflight(2))
		DeferCleanup(m.Shutdown)

		m.Start("https://www.example", somerequests(2, 1))
		Eventually(network.ResolveCount).Should(Equal(2))

		network.Fire(false, false)
		network.Fire(true, true)

		Eventually(delegate.Count).Should(Equal(1))
		report := delegate.Reports()[0]
		Expect(report.Requests).To(HaveLen(1), "failed resolve must not leave a stats record")
		Expect(report.Requests[0].WasCached).To(BeTrue())
		Expect(network.Preconnects()).To(HaveLen(1), "only the successful resolve preconnects")
	})

	It("reports an empty navigation immediately", func() {
		m := New(network, delegate)
		DeferCleanup(m.Shutdown)

		m.Start("https://www.example", nil)
		Eventually(delegate.Count).Should(Equal(1))
		Expect(delegate.Reports()[0].Requests).To(BeEmpty())
		Expect(network.ResolveCount()).To(BeZero())
	})

	It("finalizes a cancelled navigation whose jobs never got admitted", func() {
		m := New(network, delegate, WithMaxInflight(1))
		DeferCleanup(m.Shutdown)

		m.StartSingleHost("http://blocker.example")
		Eventually(network.ResolveCount).Should(Equal(1))

		m.Start("https://www.example", somerequests(2, 1))
		m.Stop("https://www.example")

		// Freeing the slot admits... nothing: the cancelled navigation's
		// jobs get dropped at admission time, and that must still produce
		// the navigation's report.
		network.Fire(true, false)
		Eventually(delegate.Count).Should(Equal(1))
		Expect(delegate.Reports()[0].Requests).To(BeEmpty())
		Expect(network.ResolveCount()).To(Equal(1))
	})

	It("ignores non-http(s) URLs for single-host and direct-preconnect warm-ups", func() {
		m := New(network, delegate)
		DeferCleanup(m.Shutdown)

		m.StartSingleHost("ftp://mirror.example")
		m.StartPreconnect("file:///etc/hosts", true)
		Consistently(network.ResolveCount).Should(BeZero())
	})

	It("rejects resolve verdicts for jobs that were never submitted", func() {
		m := New(network, delegate, WithMaxInflight(1))
		DeferCleanup(m.Shutdown)

		m.StartSingleHost("http://blocker.example")
		Eventually(network.ResolveCount).Should(Equal(1))
		m.StartSingleHost("http://waiting.example") // queues up behind the blocker

		// The waiting job got handle 2; fabricate a verdict for it from
		// inside the control goroutine, as a buggy gateway would.
		recovered := make(chan string, 1)
		m.post(func() {
			defer func() { recovered <- fmt.Sprint(recover()) }()
			m.onPreresolveFinished(jobID(2), true, false)
		})
		Eventually(recovered).Should(Receive(ContainSubstring("never submitted")))
	})

	It("fires observer events at the documented points", func() {
		observer := &recordingObserver{}
		m := New(network, delegate, WithObserver(observer))
		DeferCleanup(m.Shutdown)

		m.StartPreconnect("https://cdn.example", true)
		Eventually(network.ResolveCount).Should(Equal(1))
		preresolves, _, _ := observer.Events()
		Expect(preresolves).To(ConsistOf(Successful(types.ParseOrigin("https://cdn.example"))))

		network.Fire(true, false)
		Eventually(func() []string { _, verdicts, _ := observer.Events(); return verdicts }).
			Should(Equal([]string{"https://cdn.example/true"}))
		_, _, preconnects := observer.Events()
		Expect(preconnects).To(Equal([]string{"https://cdn.example/1/true"}))
	})

})
