// queue.go: Unbounded FIFO channel pairs for pipeline plumbing
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package pupman

// newQueue returns the two ends of an unbounded FIFO queue. Sends on
// the in end never block on a slow consumer: a goroutine buffers
// pending values in memory until the out end drains them. Closing the
// in end drains the buffer and then closes the out end; a queue whose
// in end is never closed lives until the process exits.
func newQueue[T any]() (chan<- T, <-chan T) {
	in := make(chan T)
	out := make(chan T)

	go func() {
		var buffer []T
		for in != nil || len(buffer) > 0 {
			var (
				sendCh chan T
				next   T
			)
			if len(buffer) > 0 {
				sendCh = out
				next = buffer[0]
			}

			select {
			case value, ok := <-in:
				if !ok {
					in = nil
					continue
				}
				buffer = append(buffer, value)
			case sendCh <- next:
				buffer = buffer[1:]
				if len(buffer) == 0 {
					buffer = nil
				}
			}
		}
		close(out)
	}()

	return in, out
}
