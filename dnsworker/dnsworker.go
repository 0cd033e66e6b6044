// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package dnsworker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gammazero/workerpool"
	"github.com/miekg/dns"
)

// DnsPool is a (size-limited) pool of DNS client connections talking with the
// same DNS resolver address. It keeps a small positive-answer cache so that
// repeated pre-resolves of the same host within the cache TTL are answered
// locally, without going out on the wire again.
type DnsPool struct {
	workers *workerpool.WorkerPool
	cache   *answerCache
	mu      sync.Mutex // protects the pool of DNS connections
	free    []*dns.Conn
}

// DnsPoolOption can be passed to New when creating new [DnsPool] objects.
type DnsPoolOption func(*DnsPool)

// New returns a pool of the specified size of DNS client connections, with
// each connection using the specified context and talking to the same DNS
// resolver address.
//
// DNS tasks are submitted using [DnsPool.Submit] in form of task functions
// receiving a concrete [dns.Conn]; [DnsPool.PreresolveHost] is the high-level
// convenience for speculative A/AAAA lookups.
//
// The passed context is used for creating (dialing) the DNS client
// connections only. It is not passed to the submitted DNS tasks, so task
// submitters are themselves responsible for capturing the necessary context
// in their task function closure.
func New(ctx context.Context, size int, dnsclnt *dns.Client, addr string, options ...DnsPoolOption) (*DnsPool, error) {
	dnspool := &DnsPool{
		workers: workerpool.New(size),
		cache:   newAnswerCache(DefaultCacheTTL),
	}
	for _, opt := range options {
		opt(dnspool)
	}
	free := make([]*dns.Conn, 0, size)
	for i := 0; i < size; i++ {
		conn, err := dnsclnt.DialContext(ctx, addr)
		if err != nil {
			// Immediately release all connections created so far.
			for _, conn := range free {
				conn.Close()
			}
			return nil, err
		}
		free = append(free, conn)
	}
	dnspool.free = free
	return dnspool, nil
}

// WithCacheTTL sets for how long positive answers are served from the pool's
// cache before hitting the resolver again.
func WithCacheTTL(ttl time.Duration) DnsPoolOption {
	return func(p *DnsPool) {
		p.cache = newAnswerCache(ttl)
	}
}

// Submit a task to the DNS client connection pool, where it gets enqueued to
// be executed on an available DNS client connection.
func (p *DnsPool) Submit(task func(conn *dns.Conn)) {
	p.workers.Submit(func() { p.task(task) })
}

// PreresolveHost speculatively resolves the A and AAAA records of the given
// host and passes the resolved addresses (in textual format) to the
// specified callback function fn, or an error if resolution failed. cached
// tells whether the answer came from the pool's cache instead of the wire.
//
// fn is always called asynchronously from a pool worker, never on the
// caller's stack, and it is called exactly once, after both the A and AAAA
// queries completed.
//
// Please note that when the passed context gets cancelled this will cancel
// scheduled as well as in-flight resolution jobs; their callbacks then
// report the context's error.
func (p *DnsPool) PreresolveHost(ctx context.Context, host string, fn func(addrs []string, cached bool, err error)) {
	if addrs, ok := p.cache.lookup(host); ok {
		// Answer from the cache, but still strictly asynchronously through
		// the worker pool, keeping the callback contract intact.
		p.workers.Submit(func() { fn(addrs, true, nil) })
		return
	}
	p.Submit(func(conn *dns.Conn) {
		var addrs []string
		var err error
		defer func() { fn(addrs, false, err) }() // ...ensure triggering the result callback on our way out

		dnsclnt := dns.Client{}
		nadanothing := true
		for _, addrType := range []uint16{dns.TypeA, dns.TypeAAAA} {
			// don't try to resolve the name if the context has been
			// cancelled; trigger the callback immediately with the context
			// error.
			select {
			case <-ctx.Done():
				err = ctx.Err()
				return
			default:
			}

			msg := dns.Msg{
				MsgHdr: dns.MsgHdr{Id: dns.Id()},
			}
			name := dns.Fqdn(host)
			msg.SetQuestion(name, addrType)
			var r *dns.Msg
			r, _, err = dnsclnt.ExchangeWithConn(&msg, conn)
			if err != nil {
				return
			}
			for _, rr := range r.Answer {
				if addrRR, ok := rr.(*dns.A); ok {
					nadanothing = false
					addrs = append(addrs, addrRR.A.String())
					continue
				}
				if addrRR, ok := rr.(*dns.AAAA); ok {
					nadanothing = false
					addrs = append(addrs, addrRR.AAAA.String())
				}
			}
		}
		// If we neither got A nor AAAA answers then we consider this to be
		// an error. This ensures to send an error to the callback together
		// with the nil list of resolved IP addresses.
		if nadanothing {
			err = fmt.Errorf("PreresolveHost: query for %q yields no answers", host)
			return
		}
		p.cache.store(host, addrs)
	})
}

// task grabs the next free DNS client and passes it to the specified
// function. After the function returns, the connection is put back into the
// free list.
func (p *DnsPool) task(task func(conn *dns.Conn)) {
	// pop off a free DNS client connection,
	// https://ueokande.github.io/go-slice-tricks/,
	p.mu.Lock()
	if len(p.free) == 0 {
		panic("no free DNS client connection available")
	}
	last := len(p.free) - 1
	conn := p.free[last]
	p.free = p.free[:last]
	p.mu.Unlock()
	// run the task with its assigned DNS client connection...
	task(conn)
	// ...and push the DNS client connection back into the free list.
	p.mu.Lock()
	p.free = append(p.free, conn)
	p.mu.Unlock()
}

// StopWait waits for all enqueued pre-resolves and generic DNS request tasks
// to finish, and then shuts down the pool.
func (p *DnsPool) StopWait() {
	p.workers.StopWait()
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, conn := range p.free {
		conn.Close()
	}
	p.free = nil
}
