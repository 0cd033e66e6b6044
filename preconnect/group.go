// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package preconnect

import "github.com/siemens/prewarm/types"

// group tracks all warm-up jobs spawned for one navigation to a given host.
// A cancelled group still drains: queued jobs get dropped at admission time
// and in-flight resolves run to completion, with only their preconnect side
// effect suppressed.
type group struct {
	queued    int  // jobs still waiting in the admission queue
	inflight  int  // jobs currently submitted to the network layer
	cancelled bool // Stop was called for this navigation
	stats     *types.PreconnectStats
}

func newGroup(url string) *group {
	return &group{stats: types.NewPreconnectStats(url)}
}

// done is true once no job of this group is queued or in flight anymore;
// the group then gets finalized and reported exactly once.
func (g *group) done() bool {
	return g.queued == 0 && g.inflight == 0
}
