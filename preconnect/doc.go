/*
Package preconnect implements prewarm's scheduling engine: callers hint that
a navigation is about to need certain origins, and the [Manager] turns these
hints into bounded, prioritized warm-up jobs against a network gateway,
pre-resolving names and optionally pre-connecting sockets before the real
requests arrive.

# Scheduling model

Jobs wait in a single FIFO admission queue. Predicted navigation work joins
at the back; explicitly requested warm-ups ([Manager.StartSingleHost],
[Manager.StartSingleHostBatch], [Manager.StartPreconnect]) join at the
front, so user-triggered work overtakes speculation without starving it.
At most [DefaultMaxInflight] resolutions are outstanding at the network
layer at any time; a completing resolve immediately refills the freed slot
from the queue.

All jobs of one navigation form a group, keyed by the navigation's host.
Duplicate [Manager.Start] calls for a host with an active group are ignored.
Once the last job of a group has completed or been dropped, the group's
aggregated [github.com/siemens/prewarm/types.PreconnectStats] go to the
[Delegate], exactly once.

Cancellation via [Manager.Stop] is cooperative: nothing in flight is
aborted. Queued jobs of a cancelled navigation are dropped at admission
time, and resolves still in flight merely lose their preconnect side
effect.

# Concurrency model

A single control goroutine owns the job table, the queue, and the group
map. Public entry points post operations into that goroutine, and gateway
verdicts re-enter it the same way, so there is no parallel mutation and no
locking. The only suspension points are at the gateway boundary, which by
contract calls back asynchronously, never on the submitting stack.
*/
package preconnect
