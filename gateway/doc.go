/*
Package gateway adapts the warm-up scheduler to an actual network layer. The
[Network] interface is all the scheduler ever sees; [DNSGateway] is the stock
implementation, pre-resolving names through a goroutine-limited pool of DNS
client connections (package [github.com/siemens/prewarm/dnsworker]) and
pre-connecting sockets through an equally limited pool of plain TCP dials.

Two contracts matter more than anything else here:

  - Preresolve verdicts are always delivered asynchronously, even when the
    gateway is already stopped and the verdict is a foregone failure. A
    synchronous callback would re-enter the scheduler while it is still
    iterating over the very structures the callback mutates.
  - Preconnect is fire and forget. Nobody learns about failed speculative
    dials except the debug log; the worst outcome is a page load without
    the benefit of a warm connection.
*/
package gateway
