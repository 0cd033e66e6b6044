// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/siemens/prewarm/gateway"
	"github.com/siemens/prewarm/preconnect"
	"github.com/siemens/prewarm/types"

	"github.com/apex/log"
	"github.com/gosuri/uilive"
	"github.com/miekg/dns"
)

// WarmAndReport warms up the given hostnames: every hostname becomes its own
// navigation with a single warm-up request, so the scheduler pre-resolves
// all of them (and preconnects, unless --sockets is 0) under its global
// in-flight cap. Progress is rendered live; once the last navigation's
// report came in, a summary is printed.
func WarmAndReport(ctx context.Context, hostnames []string) error {
	resolver := *resolverAddr
	if resolver == "" {
		config, err := dns.ClientConfigFromFile("/etc/resolv.conf")
		if err != nil || len(config.Servers) == 0 {
			return fmt.Errorf("cannot determine the system resolver, please use --resolver: %w", err)
		}
		resolver = net.JoinHostPort(config.Servers[0], config.Port)
	}

	// Weed out unusable hostnames first, so the report countdown matches
	// the navigations we actually kick off.
	board := newStatusBoard()
	origins := make([]types.Origin, 0, len(hostnames))
	seen := map[string]bool{}
	for _, hostname := range hostnames {
		origin, err := types.OriginOf("http://" + hostname)
		if err != nil {
			log.Warnf("skipping unusable hostname %q", hostname)
			continue
		}
		if seen[origin.Host] {
			// The scheduler coalesces navigations per host, so a second
			// origin on an already-warming host would never produce a report
			// of its own and the countdown below would never finish.
			log.Warnf("skipping %q: host %q is already being warmed up",
				hostname, origin.Host)
			continue
		}
		seen[origin.Host] = true
		board.Expect(origin)
		origins = append(origins, origin)
	}
	if len(origins) == 0 {
		return fmt.Errorf("no usable hostnames given")
	}

	dnsclnt := &dns.Client{Net: "udp", Timeout: 5 * time.Second}
	gw, err := gateway.New(ctx, int(*workerNumber), dnsclnt, resolver,
		gateway.WithDialTimeout(*dialTimeout))
	if err != nil {
		return fmt.Errorf("cannot set up the network gateway: %w", err)
	}

	collector := newReportCollector(len(origins))
	mgr := preconnect.New(gw, collector, preconnect.WithObserver(board))
	defer func() {
		mgr.Shutdown()
		gw.StopWait()
	}()

	// Fire off the rendering goroutine before feeding the scheduler; as
	// with mobydig, uilive's background updating mode is avoided in favor
	// of explicit flushes after each complete rendering pass.
	renderingDone := make(chan struct{})
	go func() {
		term := uilive.New()
		renderer := newRenderer(term)
		defer func() {
			renderData(term, renderer, board)
			renderer.Stop()
			close(renderingDone)
		}()
		renderData(term, renderer, board)
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				renderData(term, renderer, board)
			case <-collector.Done():
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	for _, origin := range origins {
		mgr.Start(origin.String(), []types.PreconnectRequest{{
			Origin:           origin,
			NumSockets:       int(*socketCount),
			AllowCredentials: *allowCreds,
		}})
	}

	select {
	case <-collector.Done():
	case <-ctx.Done():
		<-renderingDone
		return ctx.Err()
	}
	<-renderingDone

	printSummary(collector.Reports())
	return nil
}

// renderData gets the current warm-up state and then renders (and flushes)
// it to the terminal.
func renderData(term *uilive.Writer, r *renderer, board *statusBoard) {
	r.Render(board.Snapshot())
	term.Flush()
}

// printSummary prints the per-navigation delegate reports after all warm-up
// work finished.
func printSummary(reports []*types.PreconnectStats) {
	for _, report := range reports {
		for _, request := range report.Requests {
			details := "resolved"
			if request.WasCached {
				details = "resolved from cache"
			}
			if request.WasPreconnected {
				details += ", preconnected"
			}
			fmt.Printf("%s: %s\n", request.Origin, details)
		}
		if len(report.Requests) == 0 {
			fmt.Printf("%s: could not be resolved\n", report.URL)
		}
	}
}

// reportCollector is the scheduler delegate: it collects the per-navigation
// reports and signals once the expected number of reports came in.
type reportCollector struct {
	mu      sync.Mutex
	want    int
	reports []*types.PreconnectStats
	done    chan struct{}
}

func newReportCollector(want int) *reportCollector {
	return &reportCollector{
		want: want,
		done: make(chan struct{}),
	}
}

// PreconnectFinished implements [preconnect.Delegate].
func (c *reportCollector) PreconnectFinished(stats *types.PreconnectStats) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reports = append(c.reports, stats)
	if len(c.reports) == c.want {
		close(c.done)
	}
}

// Done returns a channel that closes once all expected reports came in.
func (c *reportCollector) Done() <-chan struct{} {
	return c.done
}

// Reports returns the reports collected so far.
func (c *reportCollector) Reports() []*types.PreconnectStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*types.PreconnectStats(nil), c.reports...)
}
