// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package gateway

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/siemens/prewarm/dnsworker"
	"github.com/siemens/prewarm/types"

	"github.com/apex/log"
	"github.com/gammazero/workerpool"
	"github.com/miekg/dns"
)

// DefaultDialTimeout bounds how long a single speculative connection attempt
// may take unless configured otherwise via [WithDialTimeout].
const DefaultDialTimeout = 10 * time.Second

// DNSGateway implements [Network] on top of a [dnsworker.DnsPool] for name
// pre-resolution and a second goroutine-limited pool of plain TCP dials for
// socket pre-connection. TLS and connection reuse are the business of
// whatever network layer sits behind the warmed-up sockets; by default a
// pre-connected socket is closed right after the handshake, unless a
// connection sink takes it over (see [WithConnSink]).
type DNSGateway struct {
	ctx         context.Context
	resolvers   *dnsworker.DnsPool
	dialers     *workerpool.WorkerPool
	dialTimeout time.Duration
	connSink    func(types.Origin, net.Conn)
	log         log.Interface

	mu      sync.Mutex
	stopped bool
}

var _ Network = (*DNSGateway)(nil)

// DNSGatewayOption can be passed to New when creating new [DNSGateway]
// objects.
type DNSGatewayOption func(*DNSGateway)

// New returns a DNSGateway resolving against the DNS resolver at addr with
// at most size concurrent resolutions, and pre-connecting with at most size
// concurrent dials.
//
// The passed context covers the gateway's lifetime: it is used for dialing
// the DNS client connections and bounds all later speculative dials.
func New(ctx context.Context, size int, dnsclnt *dns.Client, addr string, options ...DNSGatewayOption) (*DNSGateway, error) {
	gw := &DNSGateway{
		ctx:         ctx,
		dialers:     workerpool.New(size),
		dialTimeout: DefaultDialTimeout,
		log:         log.Log,
	}
	for _, opt := range options {
		opt(gw)
	}
	resolvers, err := dnsworker.New(ctx, size, dnsclnt, addr)
	if err != nil {
		gw.dialers.Stop()
		return nil, err
	}
	gw.resolvers = resolvers
	return gw, nil
}

// WithDialTimeout sets the per-connection timeout for speculative dials.
func WithDialTimeout(timeout time.Duration) DNSGatewayOption {
	return func(gw *DNSGateway) {
		gw.dialTimeout = timeout
	}
}

// WithConnSink hands successfully pre-connected sockets over to the given
// sink instead of closing them; the sink takes over ownership of the
// connection and is called from a dialer worker goroutine.
func WithConnSink(sink func(types.Origin, net.Conn)) DNSGatewayOption {
	return func(gw *DNSGateway) {
		gw.connSink = sink
	}
}

// WithLogger routes the gateway's debug logging to the given logger instead
// of the package-global apex/log logger.
func WithLogger(l log.Interface) DNSGatewayOption {
	return func(gw *DNSGateway) {
		gw.log = l
	}
}

// Preresolve implements [Network]: it asks the resolver pool for the A/AAAA
// records of the origin's host. A stopped gateway still delivers its
// found=false verdict asynchronously, so a callback that mutates scheduler
// state never runs re-entrantly on the submitter's stack.
func (gw *DNSGateway) Preresolve(origin types.Origin, fn func(found, cached bool)) {
	// The stopped check and the pool submission have to happen under the
	// same lock: submitting to an already stopped worker pool panics.
	gw.mu.Lock()
	defer gw.mu.Unlock()
	if gw.stopped {
		go fn(false, false)
		return
	}
	gw.resolvers.PreresolveHost(gw.ctx, origin.Host,
		func(addrs []string, cached bool, err error) {
			if err != nil {
				gw.log.Debugf("gateway: preresolve %s failed: %s", origin, err.Error())
			}
			fn(err == nil && len(addrs) > 0, cached)
		})
}

// Preconnect implements [Network]: it enqueues numSockets speculative TCP
// dials to the origin. The load flags are passed through to the connection
// sink's network layer by way of the sink itself; the dial as such doesn't
// carry credentials, so there is nothing to suppress at this level.
func (gw *DNSGateway) Preconnect(origin types.Origin, numSockets int, flags types.LoadFlags) {
	if numSockets <= 0 {
		return
	}
	gw.mu.Lock()
	defer gw.mu.Unlock()
	if gw.stopped {
		return
	}
	hostport := origin.HostPort()
	for i := 0; i < numSockets; i++ {
		gw.dialers.Submit(func() {
			ctx, cancel := context.WithTimeout(gw.ctx, gw.dialTimeout)
			defer cancel()
			var dialer net.Dialer
			conn, err := dialer.DialContext(ctx, "tcp", hostport)
			if err != nil {
				gw.log.Debugf("gateway: preconnect %s (flags %d) failed: %s",
					origin, int(flags), err.Error())
				return
			}
			if gw.connSink != nil {
				gw.connSink(origin, conn)
				return
			}
			// The TCP handshake has done its warm-up job; without a sink
			// there's nobody to keep the socket for.
			conn.Close()
		})
	}
}

// StopWait waits for all enqueued resolutions and dials to finish and then
// shuts the gateway down. Preresolves submitted afterwards report failure
// (asynchronously, as always); preconnects become no-ops.
func (gw *DNSGateway) StopWait() {
	gw.mu.Lock()
	if gw.stopped {
		gw.mu.Unlock()
		return
	}
	gw.stopped = true
	gw.mu.Unlock()
	gw.dialers.StopWait()
	gw.resolvers.StopWait()
}
