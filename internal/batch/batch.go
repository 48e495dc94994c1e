package batch

import (
	"time"

	"helicase/internal/events"
)

// Collect turns a stream of envelopes into a stream of batches. A batch
// is completed when size messages have accumulated or when timeout has
// elapsed since the batch's first message, whichever comes first. Empty
// batches are never emitted. When in closes, any partial batch is
// flushed and the output channel is closed.
//
// Completed batches queue internally rather than blocking the intake:
// the consumer publishes back onto the same bus that feeds this
// collector, so stalling the intake while the consumer works would
// wedge the whole cycle.
func Collect(in <-chan events.Envelope, size int, timeout time.Duration) <-chan []events.Envelope {
	if size <= 0 {
		size = 1
	}
	out := make(chan []events.Envelope)
	go func() {
		defer close(out)

		var ready [][]events.Envelope
		var pending []events.Envelope
		var timer *time.Timer
		var expired <-chan time.Time

		stopTimer := func() {
			if timer != nil {
				timer.Stop()
				timer = nil
				expired = nil
			}
		}
		complete := func() {
			if len(pending) == 0 {
				return
			}
			ready = append(ready, pending)
			pending = nil
			stopTimer()
		}

		for {
			var deliver chan<- []events.Envelope
			var head []events.Envelope
			if len(ready) > 0 {
				deliver = out
				head = ready[0]
			}

			select {
			case env, ok := <-in:
				if !ok {
					complete()
					for _, batch := range ready {
						out <- batch
					}
					return
				}
				pending = append(pending, env)
				if len(pending) == 1 {
					timer = time.NewTimer(timeout)
					expired = timer.C
				}
				if len(pending) >= size {
					complete()
				}
			case <-expired:
				timer = nil
				expired = nil
				complete()
			case deliver <- head:
				ready = ready[1:]
			}
		}
	}()
	return out
}
