// Package ring provides the bounded sample buffer between the receiver and the channelizer.
package ring

import (
	"context"
	"io"
	"sync"
)

// OverflowPolicy decides which samples are lost when a push does not fit into the ring.
type OverflowPolicy int

// All overflow policies.
const (
	// DropOldest discards the oldest buffered samples to make room for the new ones.
	DropOldest OverflowPolicy = iota
	// RejectNewest keeps the buffered samples and discards the part of the push that does not fit.
	RejectNewest
)

func (p OverflowPolicy) String() string {
	switch p {
	case DropOldest:
		return "drop-oldest"
	case RejectNewest:
		return "reject-newest"
	default:
		return "unknown"
	}
}

// ParseOverflowPolicy returns the policy with the given name. The empty name selects DropOldest.
func ParseOverflowPolicy(name string) (OverflowPolicy, bool) {
	switch name {
	case "", "drop-oldest":
		return DropOldest, true
	case "reject-newest":
		return RejectNewest, true
	default:
		return DropOldest, false
	}
}

// New returns a ring with the given fixed capacity.
func New(capacity int, policy OverflowPolicy) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{
		buffer: make([]complex128, capacity),
		policy: policy,
		ready:  make(chan struct{}, 1),
	}
}

// Ring is a bounded FIFO of complex samples for one producer and one consumer.
type Ring struct {
	lock      sync.Mutex
	buffer    []complex128
	policy    OverflowPolicy
	readIndex int
	length    int
	closed    bool
	ready     chan struct{}

	overflows uint64
	dropped   uint64
}

// Push the given samples into the ring. Push never blocks. The result is false if samples were lost
// due to the overflow policy.
func (r *Ring) Push(samples []complex128) bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.closed || len(samples) == 0 {
		return len(samples) == 0
	}

	capacity := len(r.buffer)
	lost := 0
	free := capacity - r.length
	if len(samples) > free {
		r.overflows++
		switch r.policy {
		case RejectNewest:
			lost = len(samples) - free
			samples = samples[:free]
		default:
			if len(samples) > capacity {
				lost += len(samples) - capacity
				samples = samples[len(samples)-capacity:]
			}
			discard := len(samples) - (capacity - r.length)
			if discard > 0 {
				r.readIndex = (r.readIndex + discard) % capacity
				r.length -= discard
				lost += discard
			}
		}
		r.dropped += uint64(lost)
	}

	writeIndex := (r.readIndex + r.length) % capacity
	written := copy(r.buffer[writeIndex:], samples)
	copy(r.buffer, samples[written:])
	r.length += len(samples)

	r.signal()
	return lost == 0
}

// Pop up to max samples from the ring. Pop never blocks, the result is empty if there are no samples.
func (r *Ring) Pop(max int) []complex128 {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.pop(max)
}

// PopWait pops up to max samples from the ring. If the ring is empty, PopWait waits until samples become
// available, the ring is closed or the context is done. A closed and drained ring returns io.EOF. Once the context
// is done, PopWait returns its error even if samples are left in the ring.
func (r *Ring) PopWait(ctx context.Context, max int) ([]complex128, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r.lock.Lock()
		if r.length > 0 {
			result := r.pop(max)
			r.lock.Unlock()
			return result, nil
		}
		closed := r.closed
		r.lock.Unlock()
		if closed {
			return nil, io.EOF
		}

		select {
		case <-r.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (r *Ring) pop(max int) []complex128 {
	n := r.length
	if max < n {
		n = max
	}
	if n <= 0 {
		return []complex128{}
	}

	result := make([]complex128, n)
	read := copy(result, r.buffer[r.readIndex:])
	copy(result[read:], r.buffer)
	r.readIndex = (r.readIndex + n) % len(r.buffer)
	r.length -= n
	return result
}

func (r *Ring) signal() {
	select {
	case r.ready <- struct{}{}:
	default:
	}
}

// Close the ring. Further pushes are ignored, buffered samples can still be popped.
func (r *Ring) Close() {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.closed = true
	r.signal()
}

// Reset discards all buffered samples, reopens the ring and clears the counters.
func (r *Ring) Reset() {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.readIndex = 0
	r.length = 0
	r.closed = false
	r.overflows = 0
	r.dropped = 0
	select {
	case <-r.ready:
	default:
	}
}

// Len returns the number of buffered samples.
func (r *Ring) Len() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.length
}

// Cap returns the capacity of the ring.
func (r *Ring) Cap() int {
	return len(r.buffer)
}

// Overflows returns the number of pushes that lost samples.
func (r *Ring) Overflows() uint64 {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.overflows
}

// Dropped returns the number of samples lost due to overflows.
func (r *Ring) Dropped() uint64 {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.dropped
}
