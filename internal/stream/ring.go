package stream

import (
	"io"
	"sync"
)

// ringBuffer is a bounded byte FIFO between the transcoder's stdout and the
// sink. Write blocks while the buffer is full, Read blocks while it is empty.
type ringBuffer struct {
	mu       sync.Mutex
	data     []byte
	readPos  int
	used     int
	closed   bool  // released by the reader side
	eos      bool  // writer finished
	eosErr   error // reported once drained; nil means io.EOF
	notEmpty *sync.Cond
	notFull  *sync.Cond
}

func newRingBuffer(size int) *ringBuffer {
	if size <= 0 {
		size = DefaultBufferSize
	}
	rb := &ringBuffer{data: make([]byte, size)}
	rb.notEmpty = sync.NewCond(&rb.mu)
	rb.notFull = sync.NewCond(&rb.mu)
	return rb
}

func (rb *ringBuffer) Write(p []byte) (int, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	written := 0
	for written < len(p) {
		for rb.used == len(rb.data) && !rb.closed {
			rb.notFull.Wait()
		}
		if rb.closed {
			return written, ErrCanceled
		}
		if rb.eos {
			return written, io.ErrClosedPipe
		}

		writePos := (rb.readPos + rb.used) % len(rb.data)
		end := len(rb.data)
		if writePos < rb.readPos {
			end = rb.readPos
		}
		n := copy(rb.data[writePos:end], p[written:])
		rb.used += n
		written += n
		rb.notEmpty.Signal()
	}
	return written, nil
}

func (rb *ringBuffer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	rb.mu.Lock()
	defer rb.mu.Unlock()

	for rb.used == 0 && !rb.eos && !rb.closed {
		rb.notEmpty.Wait()
	}
	if rb.closed {
		return 0, ErrCanceled
	}
	if rb.used == 0 {
		if rb.eosErr != nil {
			return 0, rb.eosErr
		}
		return 0, io.EOF
	}

	end := rb.readPos + rb.used
	if end > len(rb.data) {
		end = len(rb.data)
	}
	n := copy(p, rb.data[rb.readPos:end])
	rb.readPos = (rb.readPos + n) % len(rb.data)
	rb.used -= n
	if rb.used == 0 {
		rb.readPos = 0
	}
	rb.notFull.Signal()
	return n, nil
}

// CloseWrite marks the end of input. Buffered bytes stay readable; after
// them Read returns err, or io.EOF when err is nil.
func (rb *ringBuffer) CloseWrite(err error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	if rb.eos {
		return
	}
	rb.eos = true
	rb.eosErr = err
	rb.notEmpty.Broadcast()
	rb.notFull.Broadcast()
}

// Close discards buffered data and unblocks both sides.
func (rb *ringBuffer) Close() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.closed = true
	rb.used = 0
	rb.notEmpty.Broadcast()
	rb.notFull.Broadcast()
}

func (rb *ringBuffer) Buffered() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.used
}

func (rb *ringBuffer) Cap() int { return len(rb.data) }
