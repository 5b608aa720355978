package hsc

import (
	"runtime"
	"time"
)

// windowSize bounds how many buffers a worker pulls from its input
// before releasing the window and re-acquiring: acquire a window,
// process until either input or the window is exhausted, release, and
// repeat.
const windowSize = 256

// Dispatch is one classified buffer paired with its verdict, handed to
// the downstream node chosen by Next.
type Dispatch struct {
	Buffer  Buffer
	Verdict Verdict
}

// Worker runs one packet-graph worker thread. Go has no portable hard CPU pin; Run calls
// runtime.LockOSThread to keep the goroutine on one OS thread for the
// life of the worker, the closest idiomatic approximation.
type Worker struct {
	classifier *Classifier
	input      <-chan Buffer
	output     chan<- Dispatch
}

// NewWorker builds a worker reading buffers from input and publishing
// classified dispatches to output. Multiple workers may share the same
// Classifier (its shared state is safe for concurrent use) while each
// owns a disjoint input channel, so buffers from one interface are never
// split across workers and reordered.
func NewWorker(c *Classifier, input <-chan Buffer, output chan<- Dispatch) *Worker {
	return &Worker{classifier: c, input: input, output: output}
}

// Run processes windows of buffers until input is closed. Within one
// window, buffers are classified and dispatched strictly in arrival
// order — this holds whether every buffer in the window lands on the
// same next node or each lands on a different one; both are the same
// sequential loop here, since Go's slice/channel processing is
// order-preserving by construction and there is no vectorized fast path
// to special-case at the language level.
func (w *Worker) Run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	window := make([]Buffer, 0, windowSize)
	for {
		window = window[:0]
		buf, ok := <-w.input
		if !ok {
			return
		}
		window = append(window, buf)

	fill:
		for len(window) < windowSize {
			select {
			case buf, ok := <-w.input:
				if !ok {
					break fill
				}
				window = append(window, buf)
			default:
				break fill
			}
		}

		now := time.Now()
		for _, b := range window {
			var v Verdict
			if w.classifier.ifaces.Enabled(b.RxIfaceIndex) {
				v = w.classifier.Classify(b, now)
			} else {
				// Disabled interfaces skip classification, not dispatch:
				// the buffer still has to land on a next-index, same as
				// original_source/vpp/plugins/hello_acl.c's
				// goto skip_processing path forwarding untouched to
				// HELLO_ACL_NEXT_INTERFACE_OUTPUT rather than dropping it.
				v = Verdict{Next: NextEthernetInput}
				w.classifier.ifaces.Accumulate(b.RxIfaceIndex, v.Next)
			}
			w.output <- Dispatch{Buffer: b, Verdict: v}
		}
	}
}
