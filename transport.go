package tinytls

import (
	"crypto/tls"
	"sync"
)

// Transport is the upward contract TlsTransport exposes to a Protocol,
// mirroring spec.md §6's "standard transport contract" plus the two
// TLS-specific extensions (DoHandshake, Unwrap).
type Transport interface {
	// Write enqueues data for encryption and eventual delivery to the
	// carrier. It always accepts the full buffer; backpressure is
	// signalled through Protocol.PauseWriting/ResumeWriting rather than
	// a short return, matching spec.md §8's backpressure invariant.
	Write(data []byte) (int, error)

	// PauseReading/ResumeReading request the carrier stop/resume
	// delivering new records. Per spec.md §5's deadlock-avoidance rule,
	// a pause is silently overridden while the engine still wants
	// records to unblock a stalled write.
	PauseReading()
	ResumeReading()

	// Close drains the backlog by sending close_notify first, then
	// closes the carrier. See spec.md §5 "Cancellation".
	Close() error

	// GetExtraInfo exposes transport metadata; "tlsinfo" returns
	// *SessionInfo once the handshake has completed.
	GetExtraInfo(name string) (interface{}, bool)

	// DoHandshake starts the handshake and returns a channel that receives
	// exactly once: nil on success, or the failure. If the pipe has left
	// the Unwrapped state already, the channel receives ErrAlreadyWrapped.
	DoHandshake() <-chan error

	// Unwrap starts a clean shutdown of the TLS layer while leaving the
	// carrier itself open (unless CloseOnUnwrap was configured),
	// returning a channel that fires exactly once.
	Unwrap() <-chan error

	// CanWriteEOF reports whether the transport can half-close. Always
	// false: half-close on TLS is an explicit Non-goal.
	CanWriteEOF() bool
}

// Protocol is the upward callback contract implemented by the application,
// analogous to the teacher's SocketHandler but with the TLS-aware
// vocabulary from spec.md §6.
type Protocol interface {
	// DataReceived delivers one chunk of decrypted application data, in
	// exact session order.
	DataReceived(data []byte)

	// EOFReceived is invoked once when the carrier's read side ends after
	// a clean TLS shutdown, and only when CloseOnUnwrap is false. Returning
	// true keeps the transport open (matching asyncio's eof_received
	// contract); false causes the transport to close. A peer's
	// close_notify alone does not invoke it.
	EOFReceived() bool

	// PauseWriting/ResumeWriting bracket a period during which the
	// backlog has crossed the high/low write-buffer watermark.
	PauseWriting()
	ResumeWriting()

	// ConnectionLost is invoked exactly once, with a nil error on a
	// clean local Close, or the failure that tore the transport down.
	ConnectionLost(err error)
}

// Carrier is the downward contract: an arbitrary reliable byte-stream
// carrier, referenced only by contract in spec.md §2/§6. SocketCarrier is
// the concrete binding onto the teacher's pooled Socket.
type Carrier interface {
	Write(p []byte) (int, error)
	PauseReading()
	ResumeReading()
	Close() error
}

// TransportMetrics is a point-in-time snapshot of a TlsTransport's activity,
// consumed by prommetrics.NewHandler.
type TransportMetrics struct {
	BytesSent       uint64
	BytesReceived   uint64
	HandshakeCount  uint64
	BacklogBytes    int
	BacklogEntries  int
	CurrentState    PipeState
}

type backlogKind int

const (
	backlogAppWrite backlogKind = iota
	backlogDoHandshake
	backlogUnwrap
)

type backlogEntry struct {
	kind   backlogKind
	data   []byte
	offset int
	done   chan error
}

// TlsTransport adapts a TlsPipe to a Carrier/Protocol pair, implementing the
// FIFO backlog, write-buffer watermark backpressure, and pause_reading
// override from spec.md §4.2/§5.
type TlsTransport struct {
	mu sync.Mutex

	pipe     *TlsPipe
	carrier  Carrier
	protocol Protocol
	config   *TlsTransportConfig

	backlog      []*backlogEntry
	backlogBytes int

	appPaused     bool
	writingPaused bool
	closing       bool
	closed        bool
	err           error

	handshakeCount uint64
	bytesSent      uint64
	bytesReceived  uint64
}

// NewTlsTransport wires a carrier and a protocol together through a fresh
// TlsPipe. If config.DoHandshakeOnConnect (the default) is set, the
// handshake starts immediately.
func NewTlsTransport(carrier Carrier, protocol Protocol, role Role, tlsConfig *tls.Config, serverName string, config *TlsTransportConfig) *TlsTransport {
	cfg := mergeTransportConfig(config)

	t := &TlsTransport{
		pipe:     NewTlsPipe(role, tlsConfig, serverName),
		carrier:  carrier,
		protocol: protocol,
		config:   cfg,
	}

	if *cfg.DoHandshakeOnConnect {
		t.DoHandshake()
	}

	return t
}

// OnCarrierData is the read callback a Carrier implementation invokes for
// every chunk it receives, and with err set to io.EOF (or any other
// transport failure) once the carrier's read side ends.
func (t *TlsTransport) OnCarrierData(data []byte, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}

	if err != nil {
		t.handleCarrierEOFLocked(err)
		return
	}

	records, appdata, ferr := t.pipe.FeedRecords(data)
	t.deliverRecordsLocked(records)
	t.deliverAppDataLocked(appdata)

	if ferr != nil {
		t.failLocked(ferr)
		return
	}

	t.processBacklogLocked()
	t.syncCarrierPauseLocked()
}

func (t *TlsTransport) handleCarrierEOFLocked(transportErr error) {
	if t.pipe.State() == StateUnwrapped {
		t.failLocked(&TransportError{Reason: CloseReasonClient, Err: transportErr})
		return
	}

	err := t.pipe.FeedEOF()
	if err != nil {
		t.failLocked(&TransportError{Reason: CloseReasonClient, Err: err})
		return
	}

	keepOpen := !*t.config.CloseOnUnwrap && t.protocol != nil && t.protocol.EOFReceived()
	if !keepOpen {
		t.closeLocked(nil)
	}
}

// deliverRecordsLocked writes ciphertext produced by the pipe out through
// the carrier. Called with t.mu held; the bypass documented in spec.md §9
// ("Closing-while-writing") is implicit here since this is the only path
// that writes to the carrier and it runs regardless of t.closing.
func (t *TlsTransport) deliverRecordsLocked(records [][]byte) {
	for _, rec := range records {
		if len(rec) == 0 {
			continue
		}
		n, err := t.carrier.Write(rec)
		t.bytesSent += uint64(n)
		if err != nil {
			t.failLocked(&TransportError{Reason: CloseReasonClient, Err: err})
			return
		}
	}
}

// deliverAppDataLocked hands decrypted chunks to the Protocol. An empty
// chunk is the pipe's in-band close_notify signal (see TlsPipe.stepOnce),
// not a carrier-level EOF, so it is gated on CloseOnUnwrap rather than
// Protocol.EOFReceived (that callback is reserved for handleCarrierEOFLocked,
// the out-of-band "the carrier itself ended" path).
func (t *TlsTransport) deliverAppDataLocked(appdata [][]byte) {
	for _, chunk := range appdata {
		t.bytesReceived += uint64(len(chunk))
		if len(chunk) == 0 {
			if *t.config.CloseOnUnwrap {
				t.closeLocked(nil)
				return
			}
			continue
		}
		if t.protocol != nil {
			t.protocol.DataReceived(chunk)
		}
	}
}

// Write implements Transport.
func (t *TlsTransport) Write(data []byte) (int, error) {
	if data == nil {
		return 0, ErrInvalidWrite
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.err != nil {
		return 0, t.err
	}
	if t.closing || t.closed {
		return 0, ErrTransportClosing
	}

	entry := &backlogEntry{kind: backlogAppWrite, data: data}
	t.backlog = append(t.backlog, entry)
	t.backlogBytes += len(data)
	t.maybePauseWritingLocked()

	t.processBacklogLocked()
	t.syncCarrierPauseLocked()

	return len(data), nil
}

// DoHandshake implements Transport.
func (t *TlsTransport) DoHandshake() <-chan error {
	done := make(chan error, 1)

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.err != nil {
		done <- t.err
		return done
	}
	if t.closing || t.closed {
		done <- ErrTransportClosing
		return done
	}
	if t.pipe.State() != StateUnwrapped {
		done <- ErrAlreadyWrapped
		return done
	}

	entry := &backlogEntry{kind: backlogDoHandshake, done: done}
	t.backlog = append([]*backlogEntry{entry}, t.backlog...)
	t.processBacklogLocked()
	t.syncCarrierPauseLocked()

	return done
}

// Unwrap implements Transport.
func (t *TlsTransport) Unwrap() <-chan error {
	done := make(chan error, 1)

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.err != nil {
		done <- t.err
		return done
	}
	if t.closing || t.closed {
		done <- ErrTransportClosing
		return done
	}

	entry := &backlogEntry{kind: backlogUnwrap, done: done}
	t.backlog = append(t.backlog, entry)
	t.processBacklogLocked()
	t.syncCarrierPauseLocked()

	return done
}

// processBacklogLocked drives the front of the backlog as far as it will
// go, strictly in FIFO order: an entry that cannot fully complete blocks
// all entries behind it, per spec.md §5's ordering guarantee.
func (t *TlsTransport) processBacklogLocked() {
	for len(t.backlog) > 0 {
		entry := t.backlog[0]

		switch entry.kind {
		case backlogAppWrite:
			records, appdata, newOffset, err := t.pipe.FeedPlaintext(entry.data, entry.offset)
			t.deliverRecordsLocked(records)
			t.deliverAppDataLocked(appdata)
			if t.closed {
				// deliverAppDataLocked can tear the transport down (an empty
				// close_notify chunk with CloseOnUnwrap set, arriving
				// interleaved with this write); the backlog is gone, so stop
				// touching it.
				return
			}
			if err != nil {
				t.failLocked(err)
				return
			}

			consumed := newOffset - entry.offset
			t.backlogBytes -= consumed
			entry.offset = newOffset

			if entry.offset < len(entry.data) {
				return
			}

			t.backlog = t.backlog[1:]
			t.maybeResumeWritingLocked()

		case backlogDoHandshake:
			if t.pipe.State() == StateUnwrapped {
				records, err := t.pipe.StartHandshake(func() {
					t.handshakeCount++
				})
				t.deliverRecordsLocked(records)
				if err != nil && !isWantCondition(err) {
					t.failLocked(err)
					entry.done <- err
					return
				}
			}

			if t.pipe.State() != StateWrapped {
				return
			}

			t.backlog = t.backlog[1:]
			entry.done <- nil

		case backlogUnwrap:
			if t.pipe.State() == StateWrapped {
				records, err := t.pipe.StartShutdown(nil)
				t.deliverRecordsLocked(records)
				if err != nil && !isWantCondition(err) {
					t.failLocked(err)
					entry.done <- err
					return
				}
			}

			if t.pipe.State() != StateUnwrapped {
				return
			}

			t.backlog = t.backlog[1:]
			entry.done <- nil

			if *t.config.CloseOnUnwrap {
				t.closeLocked(nil)
				return
			}
		}
	}
}

func (t *TlsTransport) maybePauseWritingLocked() {
	if !t.writingPaused && t.backlogBytes >= t.config.WriteBufferHigh {
		t.writingPaused = true
		if t.protocol != nil {
			t.protocol.PauseWriting()
		}
	}
}

func (t *TlsTransport) maybeResumeWritingLocked() {
	if t.writingPaused && t.backlogBytes <= t.config.WriteBufferLow {
		t.writingPaused = false
		if t.protocol != nil {
			t.protocol.ResumeWriting()
		}
	}
}

// PauseReading implements Transport.
func (t *TlsTransport) PauseReading() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.appPaused = true
	t.syncCarrierPauseLocked()
}

// ResumeReading implements Transport.
func (t *TlsTransport) ResumeReading() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.appPaused = false
	t.syncCarrierPauseLocked()
}

// syncCarrierPauseLocked applies the deadlock-avoidance override from
// spec.md §5: the application's pause_reading is ignored whenever the
// engine is blocked needing more records, since refusing to read would
// leave a short write stuck forever.
func (t *TlsTransport) syncCarrierPauseLocked() {
	if t.closed {
		return
	}
	if t.appPaused && !t.pipe.WantsRecords() {
		t.carrier.PauseReading()
	} else {
		t.carrier.ResumeReading()
	}
}

// Close implements Transport.
func (t *TlsTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeLocked(nil)
	return nil
}

func (t *TlsTransport) closeLocked(cause error) {
	if t.closed {
		return
	}
	t.closing = true

	if t.pipe.State() == StateWrapped {
		records, _ := t.pipe.StartShutdown(nil)
		t.deliverRecordsLocked(records)
	}

	_ = t.pipe.Close()
	_ = t.carrier.Close()

	for _, entry := range t.backlog {
		if entry.done != nil {
			entry.done <- ErrTransportClosing
		}
	}
	t.backlog = nil

	t.closed = true
	if t.protocol != nil {
		t.protocol.ConnectionLost(cause)
	}
}

func (t *TlsTransport) failLocked(err error) {
	if t.err == nil {
		t.err = err
	}
	t.closeLocked(err)
}

// GetExtraInfo implements Transport.
func (t *TlsTransport) GetExtraInfo(name string) (interface{}, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if name == "tlsinfo" {
		info := t.pipe.SessionInfo()
		if info == nil {
			return nil, false
		}
		return info, true
	}
	return nil, false
}

// CanWriteEOF implements Transport. Always false: half-close on TLS is an
// explicit Non-goal.
func (t *TlsTransport) CanWriteEOF() bool {
	return false
}

// Metrics returns a snapshot for prommetrics.NewHandler.
func (t *TlsTransport) Metrics() TransportMetrics {
	t.mu.Lock()
	defer t.mu.Unlock()

	return TransportMetrics{
		BytesSent:      t.bytesSent,
		BytesReceived:  t.bytesReceived,
		HandshakeCount: t.handshakeCount,
		BacklogBytes:   t.backlogBytes,
		BacklogEntries: len(t.backlog),
		CurrentState:   t.pipe.State(),
	}
}
