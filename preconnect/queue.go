// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package preconnect

// jobQueue is the FIFO of not-yet-admitted job handles. Predicted work joins
// at the back; explicitly requested work (single-host warm-ups, direct
// preconnects) jumps the queue via PushFront, but still queues in arrival
// order behind earlier front-insertions.
type jobQueue struct {
	ids []jobID
}

// PushBack appends a job handle at the back of the queue.
func (q *jobQueue) PushBack(id jobID) {
	q.ids = append(q.ids, id)
}

// PushFront prepends a job handle at the front of the queue.
func (q *jobQueue) PushFront(id jobID) {
	q.ids = append([]jobID{id}, q.ids...)
}

// PopFront removes and returns the frontmost job handle, if any.
func (q *jobQueue) PopFront() (jobID, bool) {
	if len(q.ids) == 0 {
		return 0, false
	}
	id := q.ids[0]
	q.ids = q.ids[1:]
	return id, true
}

// Len returns the number of queued job handles.
func (q *jobQueue) Len() int {
	return len(q.ids)
}
