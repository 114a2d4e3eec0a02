package supervise

import (
	"bytes"
	"sync"
)

// capture is an io.Writer that keeps at most limit bytes. It is safe for the
// exec copy goroutine to keep writing while Run reads a snapshot, which
// happens when a group survives SIGKILL.
type capture struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	limit     int64
	truncated bool
}

func newCapture(limit int64) *capture {
	return &capture{limit: limit}
}

func (c *capture) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(p)
	if c.limit > 0 {
		room := c.limit - int64(c.buf.Len())
		if room <= 0 {
			c.truncated = true
			return n, nil
		}
		if int64(len(p)) > room {
			p = p[:room]
			c.truncated = true
		}
	}
	c.buf.Write(p)
	// Report the full length so the copier never sees a short write.
	return n, nil
}

func (c *capture) Bytes() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return bytes.Clone(c.buf.Bytes())
}

func (c *capture) Truncated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.truncated
}
