package relay

import "github.com/eapache/queue"

// outbox is the FIFO of envelopes waiting for the session's writer. It is
// not safe for concurrent use; Session guards it with its own mutex.
type outbox struct {
	q     *queue.Queue
	limit int
}

func newOutbox(limit int) *outbox {
	return &outbox{q: queue.New(), limit: limit}
}

// add enqueues env. Text envelopes are refused once the limit is reached;
// close envelopes always fit.
func (o *outbox) add(env Envelope) bool {
	if env.Kind == KindText && o.limit > 0 && o.q.Length() >= o.limit {
		return false
	}
	o.q.Add(env)
	return true
}

// drain removes and returns everything queued, oldest first.
func (o *outbox) drain() []Envelope {
	n := o.q.Length()
	if n == 0 {
		return nil
	}
	out := make([]Envelope, 0, n)
	for o.q.Length() > 0 {
		out = append(out, o.q.Remove().(Envelope))
	}
	return out
}

func (o *outbox) len() int {
	return o.q.Length()
}
