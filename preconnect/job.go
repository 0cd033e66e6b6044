// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package preconnect

import (
	"fmt"

	"github.com/siemens/prewarm/types"
)

// jobID is a stable handle to a warm-up job. Handles are valid only between
// jobTable.Add and jobTable.Remove and are never reused, so a stale handle
// surfacing from an asynchronous callback can only ever fail a lookup, never
// silently alias another job.
type jobID uint64

// job is a single speculative unit of work: pre-resolve one origin and
// optionally pre-connect to it.
type job struct {
	origin           types.Origin
	numSockets       int    // 0 requests resolve-only
	allowCredentials bool   // credentials mode for the later preconnect
	groupHost        string // key into the manager's group map; "" for ad-hoc jobs
	resolving        bool   // a resolve is outstanding at the gateway
}

// jobTable is the owning registry of all queued and in-flight jobs, handing
// out stable identifiers instead of pointers.
type jobTable struct {
	next jobID
	jobs map[jobID]*job
}

func newJobTable() *jobTable {
	return &jobTable{jobs: map[jobID]*job{}}
}

// Add inserts the job and returns its freshly minted handle.
func (t *jobTable) Add(j *job) jobID {
	t.next++
	t.jobs[t.next] = j
	return t.next
}

// Lookup returns the job for the given handle. Looking up a removed or
// otherwise unknown handle is a logic bug, not a runtime condition, and thus
// panics.
func (t *jobTable) Lookup(id jobID) *job {
	j, ok := t.jobs[id]
	if !ok {
		panic(fmt.Sprintf("preconnect: lookup of dead job handle %d", id))
	}
	return j
}

// Remove deletes the job for the given handle, invalidating the handle.
func (t *jobTable) Remove(id jobID) {
	delete(t.jobs, id)
}

// Len returns the number of jobs currently registered.
func (t *jobTable) Len() int {
	return len(t.jobs)
}
