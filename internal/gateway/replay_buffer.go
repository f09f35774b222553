package gateway

import "sync"

// frame is one broadcast envelope retained for backfill, tagged with the
// hub sequence number it was sent under.
type frame struct {
	seq  int64
	data []byte
}

// ReplayBuffer keeps the newest broadcast frames in a fixed-size ring so a
// client that detects a sequence gap can request the envelopes it missed
// instead of reconnecting cold. Sequence numbers are assigned by the hub
// and strictly increase, so the ring is always ordered oldest to newest.
type ReplayBuffer struct {
	mu     sync.RWMutex
	frames []frame
	head   int // index of the oldest frame
	n      int
}

// NewReplayBuffer creates a buffer holding up to capacity frames.
func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity <= 0 {
		capacity = 500
	}
	return &ReplayBuffer{frames: make([]frame, capacity)}
}

// Push stores an envelope under seq, evicting the oldest frame when the
// ring is full. The data is copied so the caller may reuse its slice.
func (rb *ReplayBuffer) Push(seq int64, data []byte) {
	cp := make([]byte, len(data))
	copy(cp, data)

	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.n < len(rb.frames) {
		rb.frames[(rb.head+rb.n)%len(rb.frames)] = frame{seq: seq, data: cp}
		rb.n++
		return
	}
	rb.frames[rb.head] = frame{seq: seq, data: cp}
	rb.head = (rb.head + 1) % len(rb.frames)
}

// Range returns the envelopes with seq in [fromSeq, toSeq], oldest first.
// Frames that have already been evicted are silently absent.
func (rb *ReplayBuffer) Range(fromSeq, toSeq int64) [][]byte {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	var out [][]byte
	for i := 0; i < rb.n; i++ {
		f := rb.frames[(rb.head+i)%len(rb.frames)]
		if f.seq < fromSeq {
			continue
		}
		if f.seq > toSeq {
			break
		}
		out = append(out, f.data)
	}
	return out
}

// OldestSeq returns the lowest sequence number still buffered, or 0 when
// the buffer is empty.
func (rb *ReplayBuffer) OldestSeq() int64 {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	if rb.n == 0 {
		return 0
	}
	return rb.frames[rb.head].seq
}

// Len returns the number of buffered frames.
func (rb *ReplayBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.n
}
