package tinytls

import (
	"bytes"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"sync"
	"time"
)

// Role denotes which side of the handshake a TlsPipe plays.
type Role int

const (
	// RoleClient instantiates the engine as a TLS client.
	RoleClient Role = iota

	// RoleServer instantiates the engine as a TLS server.
	RoleServer
)

// Engine is the external TLS state machine a TlsPipe drives. It consumes and
// produces record bytes and plaintext bytes through its own incoming and
// outgoing buffers; see SPEC_FULL.md §4.0 for the concrete binding shipped
// with this module (cryptoEngine, built on crypto/tls).
//
// Handshake, Shutdown, Read and Write return errWantRead/errWantWrite to
// signal that the operation made no (or partial) progress because the
// engine needs more incoming records, or room in the outgoing buffer. These
// two sentinels never leave TlsPipe.
type Engine interface {
	// Handshake drives the handshake forward. Returns nil once complete.
	Handshake() error

	// Shutdown drives the close_notify exchange forward. Returns nil once
	// the local close_notify has been sent.
	Shutdown() error

	// Read returns up to max bytes of decrypted application data. A nil
	// slice with a nil error denotes a received close_notify.
	Read(max int) ([]byte, error)

	// Write encrypts p, returning the number of plaintext bytes consumed.
	// On a short write (n < len(p)), the caller MUST retry with the exact
	// same slice.
	Write(p []byte) (int, error)

	// FeedRecords appends ciphertext received from the carrier so the
	// engine can consume it on its next Handshake/Read/Write call.
	FeedRecords(p []byte)

	// CloseIncoming marks the incoming record stream as EOF without
	// touching the outgoing side, mirroring a half-closed carrier read
	// side. Used by TlsPipe.FeedEOF to let the engine react (e.g. raise
	// an unexpected-EOF failure) without losing its ability to still
	// flush buffered output.
	CloseIncoming()

	// DrainRecords removes and returns any ciphertext the engine has
	// produced and not yet been collected.
	DrainRecords() []byte

	// WantsRecords reports whether the engine's last operation ended
	// because it is waiting on more incoming records.
	WantsRecords() bool

	// Session returns the negotiated session parameters. Only meaningful
	// once Handshake has completed.
	Session() SessionState

	// Close releases engine resources. Idempotent.
	Close() error
}

// SessionState is the set of negotiated parameters SessionInfo exposes.
// It is captured from the underlying engine rather than queried live,
// since engines commonly forbid calls once the connection is torn down.
type SessionState struct {
	Cipher          string
	Version         uint16
	Compressed      bool
	PeerCertificate []byte
	PeerCertDER     [][]byte
	TLSUnique       []byte
	Negotiated      bool
}

// bioConn is a minimal duplex in-memory net.Conn: an unbounded incoming
// buffer that Read drains (blocking, cooperatively, until fed or closed)
// and an unbounded outgoing buffer that Write appends to. It stands in for
// the memory BIO that crypto/tls does not expose directly — see the note in
// spec.md §9 about the source's own socketpair-based stand-in.
type bioConn struct {
	mu   sync.Mutex
	cond *sync.Cond

	// changed is pinged (non-blocking, depth 1) on every state transition a
	// pump() select loop might care about: bytes fed, bytes consumed, bytes
	// written, or closed.
	changed chan struct{}

	incoming       bytes.Buffer
	outgoing       bytes.Buffer
	closed         bool
	incomingClosed bool
	readParked     bool
}

func newBioConn() *bioConn {
	b := &bioConn{changed: make(chan struct{}, 1)}
	b.cond = sync.NewCond(&b.mu)
	return b
}

func (b *bioConn) notify() {
	select {
	case b.changed <- struct{}{}:
	default:
	}
}

func (b *bioConn) Read(p []byte) (int, error) {
	b.mu.Lock()
	for b.incoming.Len() == 0 && !b.closed && !b.incomingClosed {
		b.readParked = true
		b.cond.Broadcast()
		b.notify()
		b.cond.Wait()
	}
	b.readParked = false
	if b.incoming.Len() == 0 && (b.closed || b.incomingClosed) {
		b.mu.Unlock()
		return 0, io.EOF
	}
	n, _ := b.incoming.Read(p)
	b.mu.Unlock()
	b.notify()
	return n, nil
}

// CloseIncoming marks the incoming side as EOF without touching the
// outgoing buffer, matching a half-closed carrier read side.
func (b *bioConn) CloseIncoming() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.incomingClosed = true
	b.cond.Broadcast()
	b.notify()
}

func (b *bioConn) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, net.ErrClosed
	}
	n, _ := b.outgoing.Write(p)
	b.notify()
	return n, nil
}

func (b *bioConn) Feed(p []byte) {
	b.mu.Lock()
	b.incoming.Write(p)
	b.cond.Broadcast()
	b.mu.Unlock()
	b.notify()
}

func (b *bioConn) Drain() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.outgoing.Len() == 0 {
		return nil
	}
	out := make([]byte, b.outgoing.Len())
	_, _ = b.outgoing.Read(out)
	return out
}

func (b *bioConn) Parked() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.readParked && b.incoming.Len() == 0
}

func (b *bioConn) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	b.cond.Broadcast()
	b.notify()
	return nil
}

func (b *bioConn) LocalAddr() net.Addr               { return bioAddr{} }
func (b *bioConn) RemoteAddr() net.Addr              { return bioAddr{} }
func (b *bioConn) SetDeadline(_ time.Time) error     { return nil }
func (b *bioConn) SetReadDeadline(_ time.Time) error { return nil }
func (b *bioConn) SetWriteDeadline(_ time.Time) error {
	return nil
}

type bioAddr struct{}

func (bioAddr) Network() string { return "memory" }
func (bioAddr) String() string  { return "memory-bio" }

// cryptoEngine implements Engine on top of crypto/tls. One goroutine is
// spawned per blocking operation (handshake, a read pump, a write), and
// the public methods block until that goroutine either completes or parks
// waiting for more records in bioConn — the latter is reported as
// errWantRead, exactly mirroring an OpenSSL-style engine's WANT_READ.
type cryptoEngine struct {
	conn   *tls.Conn
	bio    *bioConn
	role   Role
	config *tls.Config

	mu           sync.Mutex
	handshakeJob *engineJob
	shutdownJob  *engineJob
	writeJob     *writeJob
	readResults  chan readResult
	readTerminal *readResult
	session      SessionState
}

// engineReadBufSize bounds each chunk produced by the background read pump.
const engineReadBufSize = 32 * 1024

type engineJob struct {
	done chan struct{}
	err  error
}

type writeJob struct {
	done chan struct{}
	n    int
	err  error
}

func newCryptoEngine(role Role, config *tls.Config) *cryptoEngine {
	bio := newBioConn()

	var conn *tls.Conn
	if role == RoleServer {
		conn = tls.Server(bio, config)
	} else {
		conn = tls.Client(bio, config)
	}

	return &cryptoEngine{
		conn:   conn,
		bio:    bio,
		role:   role,
		config: config,
	}
}

// pump waits until either job.done fires, or the bio parks waiting for more
// records with nothing left to give it. It never returns until one of those
// is true, so it cannot busy-loop.
func (e *cryptoEngine) pump(job *engineJob) error {
	for {
		select {
		case <-job.done:
			return job.err
		case <-e.bio.changed:
			if e.bio.Parked() {
				select {
				case <-job.done:
					return job.err
				default:
					return errWantRead
				}
			}
		}
	}
}

func (e *cryptoEngine) Handshake() error {
	e.mu.Lock()
	if e.handshakeJob == nil {
		job := &engineJob{done: make(chan struct{})}
		e.handshakeJob = job
		go func() {
			defer close(job.done)
			job.err = e.conn.Handshake()
			if job.err == nil {
				e.captureSession()
			}
		}()
	}
	job := e.handshakeJob
	e.mu.Unlock()

	return e.pump(job)
}

func (e *cryptoEngine) captureSession() {
	state := e.conn.ConnectionState()

	var peerDER [][]byte
	for _, cert := range state.PeerCertificates {
		peerDER = append(peerDER, cert.Raw)
	}

	e.mu.Lock()
	e.session = SessionState{
		Cipher:      tls.CipherSuiteName(state.CipherSuite),
		Version:     state.Version,
		Compressed:  false,
		PeerCertDER: peerDER,
		TLSUnique:   state.TLSUnique,
		Negotiated:  true,
	}
	e.mu.Unlock()
}

func (e *cryptoEngine) Shutdown() error {
	e.mu.Lock()
	if e.shutdownJob == nil {
		job := &engineJob{done: make(chan struct{})}
		e.shutdownJob = job
		go func() {
			defer close(job.done)
			job.err = e.conn.CloseWrite()
		}()
	}
	job := e.shutdownJob
	e.mu.Unlock()

	return e.pump(job)
}

// readResult is one decoded application-data chunk (or the terminal error)
// produced by the background read pump.
type readResult struct {
	data []byte
	err  error
}

// Read hands back the next decrypted chunk. A persistent background pump
// goroutine is started on first use and kept running across WANT_READ
// returns — crypto/tls forbids two goroutines calling Read concurrently, so
// Read must never spawn a second one while the first is still parked inside
// the engine waiting for records. Once the pump has hit its terminal result
// (close_notify or a read error) it exits for good, so that same result is
// cached and replayed on every later call instead of blocking forever
// waiting on a goroutine that is never coming back.
func (e *cryptoEngine) Read(max int) ([]byte, error) {
	e.mu.Lock()
	if e.readTerminal != nil {
		res := *e.readTerminal
		e.mu.Unlock()
		return clampRead(res, max)
	}
	if e.readResults == nil {
		e.readResults = make(chan readResult, 1)
		go e.readPump()
	}
	ch := e.readResults
	e.mu.Unlock()

	for {
		select {
		case res := <-ch:
			e.storeReadTerminal(res)
			return clampRead(res, max)
		case <-e.bio.changed:
			if e.bio.Parked() {
				select {
				case res := <-ch:
					e.storeReadTerminal(res)
					return clampRead(res, max)
				default:
					return nil, errWantRead
				}
			}
		}
	}
}

func clampRead(res readResult, max int) ([]byte, error) {
	if res.err != nil {
		return nil, res.err
	}
	if len(res.data) > max {
		// TlsPipe reads with pipeReadBufSize, the same size as
		// engineReadBufSize, so this does not truncate in practice; with
		// a smaller max the tail of the chunk is dropped.
		res.data = res.data[:max]
	}
	return res.data, nil
}

// storeReadTerminal remembers a close_notify (nil data, nil err) or error
// result once seen, since readPump never produces another one afterwards.
func (e *cryptoEngine) storeReadTerminal(res readResult) {
	if len(res.data) != 0 && res.err == nil {
		return
	}
	e.mu.Lock()
	if e.readTerminal == nil {
		e.readTerminal = &res
	}
	e.mu.Unlock()
}

func (e *cryptoEngine) readPump() {
	buf := make([]byte, engineReadBufSize)
	for {
		n, err := e.conn.Read(buf)
		if err == io.EOF {
			// crypto/tls also reports a record stream that simply ended
			// (CloseIncoming with no close_notify) as io.EOF.
			e.bio.mu.Lock()
			bare := e.bio.incomingClosed
			e.bio.mu.Unlock()
			if bare {
				e.readResults <- readResult{err: ErrUnexpectedEOF}
				return
			}
			// close_notify: surfaced as a nil chunk, not an error.
			e.readResults <- readResult{}
			return
		}
		if err != nil {
			e.readResults <- readResult{err: err}
			return
		}
		chunk := make([]byte, n)
		copy(chunk, buf[:n])
		e.readResults <- readResult{data: chunk}
	}
}

// Write encrypts p. Because a short write must be retried with the exact
// same buffer identity, the in-flight job is cached and reused across
// WANT_READ returns instead of spawning a second concurrent Write call.
func (e *cryptoEngine) Write(p []byte) (int, error) {
	e.mu.Lock()
	if e.writeJob == nil {
		job := &writeJob{done: make(chan struct{})}
		e.writeJob = job
		go func() {
			defer close(job.done)
			job.n, job.err = e.conn.Write(p)
		}()
	}
	job := e.writeJob
	e.mu.Unlock()

	err := e.pumpWrite(job)
	if err != errWantRead && err != errWantWrite {
		e.mu.Lock()
		e.writeJob = nil
		e.mu.Unlock()
	}
	return job.n, err
}

func (e *cryptoEngine) pumpWrite(job *writeJob) error {
	for {
		select {
		case <-job.done:
			return job.err
		case <-e.bio.changed:
			if e.bio.Parked() {
				select {
				case <-job.done:
					return job.err
				default:
					return errWantRead
				}
			}
		}
	}
}

func (e *cryptoEngine) FeedRecords(p []byte) {
	if len(p) == 0 {
		return
	}
	e.bio.Feed(p)
}

// CloseIncoming marks the record stream as EOF without tearing down the
// outgoing side, mirroring a half-closed carrier socket.
func (e *cryptoEngine) CloseIncoming() {
	e.bio.CloseIncoming()
}

func (e *cryptoEngine) DrainRecords() []byte {
	return e.bio.Drain()
}

func (e *cryptoEngine) WantsRecords() bool {
	return e.bio.Parked()
}

func (e *cryptoEngine) Session() SessionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session
}

func (e *cryptoEngine) Close() error {
	return e.bio.Close()
}

// asEngineError classifies a crypto/tls failure. Want conditions are
// returned unchanged, for the drive loop to recover; anything else is
// wrapped as a fatal *EngineError.
func asEngineError(err error) error {
	if err == nil {
		return nil
	}
	if isWantCondition(err) {
		return err
	}

	var alertErr tls.AlertError
	if errors.As(err, &alertErr) {
		return &EngineError{Reason: alertErr.Error(), Err: err}
	}

	return &EngineError{Err: err}
}
