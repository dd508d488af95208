package survey

import "github.com/google/uuid"

// measurementRequest is a validated click waiting for a signal read
type measurementRequest struct {
	ID string
	X  int
	Y  int
}

func newMeasurementRequest(x, y int) measurementRequest {
	return measurementRequest{ID: uuid.NewString(), X: x, Y: y}
}

// measurementQueue serializes measurement requests: one in flight and at most
// one pending behind it. The caller that started the in-flight request owns
// the queue until Done returns nil, so no background worker is involved.
// It is not safe for concurrent use; SessionController guards it.
type measurementQueue struct {
	inFlight *measurementRequest
	pending  *measurementRequest
}

// Offer enqueues a request. start is true when the caller became the owner and
// must run the request itself. ErrQueueFull is returned when both slots are taken.
func (q *measurementQueue) Offer(r measurementRequest) (start bool, err error) {
	switch {
	case q.inFlight == nil:
		q.inFlight = &r
		return true, nil
	case q.pending == nil:
		q.pending = &r
		return false, nil
	default:
		return false, ErrQueueFull
	}
}

// Done completes the in-flight request and promotes the pending one, which
// the owner must run next. It returns nil when the queue is drained.
func (q *measurementQueue) Done() *measurementRequest {
	q.inFlight, q.pending = q.pending, nil
	return q.inFlight
}

// Busy reports whether a request is in flight
func (q *measurementQueue) Busy() bool {
	return q.inFlight != nil
}

// Len returns the number of requests in flight or pending
func (q *measurementQueue) Len() int {
	n := 0
	if q.inFlight != nil {
		n++
	}
	if q.pending != nil {
		n++
	}
	return n
}
