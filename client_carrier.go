package tinytls

import (
	"crypto/tls"
	"io"
	"sync"
)

// ClientCarrier adapts a dialed *Client into the Carrier contract, mirroring
// SocketCarrier's read-pump/pause-gate shape but over a plain outbound
// connection instead of a pooled *Socket.
type ClientCarrier struct {
	client *Client
	onData func(data []byte, err error)

	mu      sync.Mutex
	cond    *sync.Cond
	paused  bool
	stopped bool
}

// NewClientCarrier wraps client. As with NewSocketCarrier, the read-pump
// goroutine does not start until Start is called, so the caller can finish
// wiring the *TlsTransport that onData closes over first.
func NewClientCarrier(client *Client, onData func(data []byte, err error)) *ClientCarrier {
	c := &ClientCarrier{
		client: client,
		onData: onData,
	}
	c.cond = sync.NewCond(&c.mu)

	client.OnClose(func() {
		c.mu.Lock()
		c.stopped = true
		c.cond.Broadcast()
		c.mu.Unlock()
	})

	return c
}

// Start launches the read-pump goroutine. Must be called exactly once,
// after onData's consumer is ready to receive callbacks.
func (c *ClientCarrier) Start() {
	go c.pump()
}

func (c *ClientCarrier) pump() {
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

		n, err := c.client.Read(buf)
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
func (c *ClientCarrier) Write(p []byte) (int, error) {
	return c.client.Write(p)
}

// PauseReading implements Carrier.
func (c *ClientCarrier) PauseReading() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = true
}

// ResumeReading implements Carrier.
func (c *ClientCarrier) ResumeReading() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = false
	c.cond.Broadcast()
}

// Close implements Carrier.
func (c *ClientCarrier) Close() error {
	c.mu.Lock()
	c.stopped = true
	c.cond.Broadcast()
	c.mu.Unlock()

	return c.client.Close()
}

// DialTlsTransport dials address over plain TCP and wires the connection
// into a fresh client-role TlsTransport, the client-side counterpart of
// NewTlsSocketHandler. With config.DoHandshakeOnConnect (true by default)
// the handshake is started inside NewTlsTransport, before the carrier's
// read pump starts; if protocol implements TransportAware, SetTransport is
// called after that and before the read pump starts.
func DialTlsTransport(address string, tlsConfig *tls.Config, serverName string, config *TlsTransportConfig, protocol Protocol) (*TlsTransport, error) {
	client, err := Dial(address)
	if err != nil {
		return nil, err
	}

	var transport *TlsTransport

	carrier := NewClientCarrier(client, func(data []byte, err error) {
		transport.OnCarrierData(data, err)
	})

	transport = NewTlsTransport(carrier, protocol, RoleClient, tlsConfig, serverName, config)

	if aware, ok := protocol.(TransportAware); ok {
		aware.SetTransport(transport)
	}

	carrier.Start()

	return transport, nil
}
