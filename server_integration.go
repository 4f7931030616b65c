package tinytls

import "crypto/tls"

// ProtocolFactory builds a fresh Protocol for each accepted connection.
type ProtocolFactory func() Protocol

// TransportAware is an optional interface a Protocol can implement to
// receive the Transport driving it, once it exists. NewTlsSocketHandler
// calls SetTransport before any other Protocol method.
type TransportAware interface {
	SetTransport(transport Transport)
}

// NewTlsSocketHandler adapts a ProtocolFactory into a plain SocketHandler,
// so a TLS-terminating service plugs into the teacher's existing
// Server/ForkingStrategy/StartAndBlock machinery without those components
// needing to know anything about TlsTransport or SocketCarrier:
//
//	server := tinytls.NewServer(":8443", &tinytls.ServerConfig{...})
//	server.ForkingStrategy(tinytls.GoroutinePerConnection(
//	    tinytls.NewTlsSocketHandler(tinytls.RoleServer, tlsConfig, "", nil, newEchoProtocol),
//	))
//	tinytls.StartAndBlock(server)
//
// The handshake runs with DoHandshakeOnConnect (the TlsTransportConfig
// default), so by the time the Protocol's transport is usable the session
// may still be mid-handshake; application writes issued immediately are
// simply queued in the backlog until it completes.
func NewTlsSocketHandler(role Role, tlsConfig *tls.Config, serverName string, config *TlsTransportConfig, factory ProtocolFactory) SocketHandler {
	return func(socket *Socket) {
		done := make(chan struct{})

		var transport *TlsTransport

		protocol := factory()
		bridgingProtocol := &connectionLostSignal{inner: protocol, done: done}

		carrier := NewSocketCarrier(socket, func(data []byte, err error) {
			transport.OnCarrierData(data, err)
		})

		transport = NewTlsTransport(carrier, bridgingProtocol, role, tlsConfig, serverName, config)

		if aware, ok := protocol.(TransportAware); ok {
			aware.SetTransport(transport)
		}

		carrier.Start()

		<-done
	}
}

// connectionLostSignal wraps a Protocol so the blocking SocketHandler
// goroutine can park until ConnectionLost fires, keeping the Socket (and
// therefore the pooled resources behind it) alive for exactly as long as
// the TLS session is.
type connectionLostSignal struct {
	inner Protocol
	done  chan struct{}
	fired bool
}

func (c *connectionLostSignal) DataReceived(data []byte) { c.inner.DataReceived(data) }
func (c *connectionLostSignal) EOFReceived() bool         { return c.inner.EOFReceived() }
func (c *connectionLostSignal) PauseWriting()             { c.inner.PauseWriting() }
func (c *connectionLostSignal) ResumeWriting()            { c.inner.ResumeWriting() }

func (c *connectionLostSignal) ConnectionLost(err error) {
	c.inner.ConnectionLost(err)
	if !c.fired {
		c.fired = true
		close(c.done)
	}
}
