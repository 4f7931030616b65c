package tinytls

import (
	"crypto/tls"
	"testing"

	"github.com/stretchr/testify/assert"
)

// pumpPipes drives records between two TlsPipes until both sides stop
// producing new output, mirroring what TlsTransport does over a real
// carrier. Returns every chunk of appdata each side surfaced along the way.
func pumpPipes(client, server *TlsPipe, clientOut, serverOut [][]byte) (clientIn, serverIn [][]byte) {
	for len(clientOut) > 0 || len(serverOut) > 0 {
		var nextClientOut, nextServerOut [][]byte

		for _, rec := range clientOut {
			records, appdata, _ := server.FeedRecords(rec)
			nextServerOut = append(nextServerOut, records...)
			serverIn = append(serverIn, appdata...)
		}
		for _, rec := range serverOut {
			records, appdata, _ := client.FeedRecords(rec)
			nextClientOut = append(nextClientOut, records...)
			clientIn = append(clientIn, appdata...)
		}

		clientOut, serverOut = nextClientOut, nextServerOut
	}
	return clientIn, serverIn
}

func newTestPipePair(t *testing.T) (client, server *TlsPipe) {
	t.Helper()
	cert, key := generateTestCertPEM("pipe-test.local")
	tlsCert, err := tls.X509KeyPair(cert, key)
	assert.NoError(t, err)

	client = NewTlsPipe(RoleClient, &tls.Config{InsecureSkipVerify: true}, "")
	server = NewTlsPipe(RoleServer, &tls.Config{Certificates: []tls.Certificate{tlsCert}}, "")
	return client, server
}

func handshakePipePair(t *testing.T) (client, server *TlsPipe) {
	t.Helper()
	client, server = newTestPipePair(t)

	clientOut, err := client.StartHandshake(nil)
	assert.NoError(t, err)
	serverOut, err := server.StartHandshake(nil)
	assert.NoError(t, err)

	pumpPipes(client, server, clientOut, serverOut)

	assert.Equal(t, StateWrapped, client.State(), "client should reach wrapped state")
	assert.Equal(t, StateWrapped, server.State(), "server should reach wrapped state")
	return client, server
}

func TestTlsPipeHandshakeCompletes(t *testing.T) {
	// given/when
	client, server := handshakePipePair(t)
	defer client.Close()
	defer server.Close()

	// then
	assert.NotNil(t, client.SessionInfo(), "client should have session info after handshake")
	assert.NotNil(t, server.SessionInfo(), "server should have session info after handshake")
}

func TestTlsPipeApplicationDataRoundTrips(t *testing.T) {
	// given
	client, server := handshakePipePair(t)
	defer client.Close()
	defer server.Close()

	message := []byte("the quick brown fox")

	// when
	records, _, newOffset, err := client.FeedPlaintext(message, 0)
	assert.NoError(t, err)
	assert.Equal(t, len(message), newOffset, "the whole message should be consumed")

	var received [][]byte
	for _, rec := range records {
		_, appdata, ferr := server.FeedRecords(rec)
		assert.NoError(t, ferr)
		received = append(received, appdata...)
	}

	// then
	assert.Len(t, received, 1)
	assert.Equal(t, message, received[0], "server should decrypt exactly what the client sent")
}

func TestTlsPipeGracefulShutdownSignalsCleanEOF(t *testing.T) {
	// given
	client, server := handshakePipePair(t)
	defer client.Close()

	// when: the client starts a clean shutdown and the server observes both
	// the close_notify and the carrier EOF that follows it
	clientOut, err := client.StartShutdown(nil)
	assert.NoError(t, err)

	var serverAppdata [][]byte
	for _, rec := range clientOut {
		_, appdata, ferr := server.FeedRecords(rec)
		assert.NoError(t, ferr)
		serverAppdata = append(serverAppdata, appdata...)
	}

	feedErr := server.FeedEOF()

	// then
	assert.Len(t, serverAppdata, 1, "the server should observe exactly one close_notify chunk")
	assert.Empty(t, serverAppdata[0])
	assert.NoError(t, feedErr, "a carrier EOF following an observed close_notify is not unexpected")
}

func TestTlsPipeFeedEOFWithoutCloseNotifyIsUnexpected(t *testing.T) {
	// given
	_, server := handshakePipePair(t)

	// when: the carrier vanishes with no close_notify ever having arrived
	err := server.FeedEOF()

	// then
	assert.ErrorIs(t, err, ErrUnexpectedEOF)
}

func TestTlsPipeOperationsFailAfterClose(t *testing.T) {
	// given
	client, server := handshakePipePair(t)
	defer server.Close()
	assert.NoError(t, client.Close())

	// when
	_, _, err := client.FeedRecords([]byte("anything"))

	// then
	assert.ErrorIs(t, err, ErrPipeClosed)
}

// mockEngine is a hand-written Engine double for deterministic short-write /
// WANT_READ scenarios that are awkward to force through real crypto/tls.
type mockEngine struct {
	handshakeDone  bool
	wantHandshakes int

	writeBudget int // bytes still accepted, across Write calls, before Write returns errWantWrite
	written     []byte

	readQueue []readResult

	records     [][]byte
	incoming    []byte
	wantsRecord bool
	closed      bool
}

func (m *mockEngine) Handshake() error {
	if m.wantHandshakes > 0 {
		m.wantHandshakes--
		m.wantsRecord = true
		return errWantRead
	}
	m.handshakeDone = true
	m.wantsRecord = false
	return nil
}

func (m *mockEngine) Shutdown() error {
	return nil
}

func (m *mockEngine) Read(max int) ([]byte, error) {
	if len(m.readQueue) == 0 {
		m.wantsRecord = true
		return nil, errWantRead
	}
	res := m.readQueue[0]
	m.readQueue = m.readQueue[1:]
	m.wantsRecord = false
	if res.err != nil {
		return nil, res.err
	}
	if len(res.data) > max {
		res.data = res.data[:max]
	}
	return res.data, nil
}

func (m *mockEngine) Write(p []byte) (int, error) {
	if m.writeBudget <= 0 {
		return 0, errWantWrite
	}
	n := len(p)
	if n > m.writeBudget {
		n = m.writeBudget
	}
	m.written = append(m.written, p[:n]...)
	m.writeBudget -= n
	if n < len(p) {
		return n, errWantWrite
	}
	return n, nil
}

func (m *mockEngine) FeedRecords(p []byte) { m.incoming = append(m.incoming, p...) }
func (m *mockEngine) CloseIncoming()       {}

func (m *mockEngine) DrainRecords() []byte {
	if len(m.records) == 0 {
		return nil
	}
	rec := m.records[0]
	m.records = m.records[1:]
	return rec
}

func (m *mockEngine) WantsRecords() bool { return m.wantsRecord }
func (m *mockEngine) Session() SessionState {
	return SessionState{Negotiated: m.handshakeDone, Cipher: "MOCK"}
}
func (m *mockEngine) Close() error { m.closed = true; return nil }

func newMockEnginePipe(engine *mockEngine) *TlsPipe {
	p := NewTlsPipe(RoleServer, &tls.Config{}, "")
	p.newEngine = func(Role, *tls.Config) Engine { return engine }
	return p
}

func TestTlsPipeShortWriteLeavesRemainderForRetry(t *testing.T) {
	// given: a write budget smaller than the payload, forcing a short write
	engine := &mockEngine{handshakeDone: true, writeBudget: 5}
	p := newMockEnginePipe(engine)
	_, err := p.StartHandshake(nil)
	assert.NoError(t, err)

	payload := []byte("0123456789")

	// when
	_, _, newOffset, werr := p.FeedPlaintext(payload, 0)

	// then
	assert.NoError(t, werr, "a WANT_WRITE must not surface as an error")
	assert.Equal(t, 5, newOffset, "only the budgeted prefix should have been consumed")
	assert.Equal(t, payload[:5], engine.written)

	// and when the caller retries with the SAME slice at the reported offset
	engine.writeBudget = 5
	_, _, newOffset2, werr2 := p.FeedPlaintext(payload, newOffset)

	// then
	assert.NoError(t, werr2)
	assert.Equal(t, len(payload), newOffset2, "the retry should consume the remainder")
	assert.Equal(t, payload, engine.written)
}
