/*
Package dnsworker implements a simple limiting DNS client-request execution
pool. Prewarm uses [DnsPool] with a pool of “DNS workers” for speculative
A/AAAA pre-resolves. Please note that the A/AAAA queries for a single host
are not concurrent.

Positive answers are kept in a small TTL cache, so repeated pre-resolves of
the same host within a short time are answered locally; such answers are
flagged as cache hits to the submitter's callback.

Usage

	dnsclnt := dns.Client{}
	workers, _ := dnsworker.New(
	    context.Background(),
	    4,                    // number of parallel DNS connections and thus workers
	    &dnsclnt,             // DNS client
	    "127.0.0.1:53",       // address of server/resolver
	)
	workers.PreresolveHost(ctx,
	    "foobar.example.org",
	    func(addrs []string, cached bool, err error) {
	        // do something with addrs, unless there's an error reported
	    })
	workers.Submit(func(conn *dns.Conn) {
	    // do something with the DNS connection
	})

# Acknowledgements

Under its hood, [DnsPool] leverages [github.com/gammazero/workerpool] as
the limiting goroutine pool.

[github.com/gammazero/workerpool]: https://github.com/gammazero/workerpool
*/
package dnsworker
