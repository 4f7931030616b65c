package tinytls

import (
	"io"
	"sync"
)

// SocketCarrier adapts a pooled *Socket into the Carrier contract,
// translating its blocking Read into the (data, err) callback contract
// TlsTransport expects, plus a pause/resume gate for the deadlock-avoidance
// override in spec.md §5.
type SocketCarrier struct {
	socket *Socket
	onData func(data []byte, err error)

	mu      sync.Mutex
	cond    *sync.Cond
	paused  bool
	stopped bool
}

const carrierReadBufSize = 32 * 1024

// NewSocketCarrier wraps socket. The read-pump goroutine does not start
// until Start is called, so a caller can finish wiring the consumer of
// onData (typically a *TlsTransport, which needs the carrier to exist
// first) before any data can possibly arrive. onData is invoked once per
// chunk read, and exactly once more with a non-nil err (io.EOF or a
// broken-pipe style error) when the read side ends; it must not block,
// since it runs on the carrier's only read-pump goroutine.
func NewSocketCarrier(socket *Socket, onData func(data []byte, err error)) *SocketCarrier {
	c := &SocketCarrier{
		socket: socket,
		onData: onData,
	}
	c.cond = sync.NewCond(&c.mu)

	socket.OnClose(func(CloseReason) {
		c.mu.Lock()
		c.stopped = true
		c.cond.Broadcast()
		c.mu.Unlock()
	})

	return c
}

// Start launches the read-pump goroutine. Must be called exactly once,
// after onData's consumer is ready to receive callbacks.
func (c *SocketCarrier) Start() {
	go c.pump()
}

func (c *SocketCarrier) pump() {
	buf := make([]byte, carrierReadBufSize)
	for {
		c.mu.Lock()
		for c.paused && !c.stopped {
			c.cond.Wait()
		}
		stopped := c.stopped
		c.mu.Unlock()

		if stopped {
			return
		}

		n, err := c.socket.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			c.onData(chunk, nil)
		}
		if err != nil {
			if err == io.EOF {
				c.onData(nil, io.EOF)
			} else {
				c.onData(nil, err)
			}
			return
		}
	}
}

// Write implements Carrier.
func (c *SocketCarrier) Write(p []byte) (int, error) {
	return c.socket.Write(p)
}

// PauseReading implements Carrier: the pump goroutine parks before its next
// Read call instead of consuming the socket further.
func (c *SocketCarrier) PauseReading() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = true
}

// ResumeReading implements Carrier.
func (c *SocketCarrier) ResumeReading() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = false
	c.cond.Broadcast()
}

// Close implements Carrier.
func (c *SocketCarrier) Close() error {
	c.mu.Lock()
	c.stopped = true
	c.cond.Broadcast()
	c.mu.Unlock()

	return c.socket.Close(CloseReasonServer)
}
