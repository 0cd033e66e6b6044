// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package gateway

import "github.com/siemens/prewarm/types"

// Network is the boundary between the warm-up scheduler and whatever
// actually talks to the wire. Implementations perform speculative name
// resolution and socket pre-connection on behalf of the scheduler without
// keeping any per-job state beyond the duration of a single call.
type Network interface {
	// Preresolve asks the network layer to speculatively resolve the name
	// of the given origin. fn is invoked exactly once, asynchronously, and
	// never on the caller's stack: found tells whether resolution
	// succeeded, cached whether the answer came from a resolver cache
	// instead of the wire. An unavailable network layer degrades to an
	// asynchronous found=false, it never swallows the callback.
	Preresolve(origin types.Origin, fn func(found, cached bool))

	// Preconnect asks the network layer to speculatively open numSockets
	// connections to the given origin, qualified by the given load flags.
	// Preconnection is best effort, fire and forget: failures are not
	// reported back.
	Preconnect(origin types.Origin, numSockets int, flags types.LoadFlags)
}
