package tinytls

// SessionInfo is a read-only snapshot of a negotiated TLS session, returned
// by TlsPipe.SessionInfo and reachable through Transport's
// get_extra_info("tlsinfo") contract (see SPEC_FULL.md §6).
type SessionInfo struct {
	state SessionState
}

// Cipher returns the negotiated cipher suite's name, e.g.
// "TLS_AES_128_GCM_SHA256".
func (s *SessionInfo) Cipher() string {
	return s.state.Cipher
}

// Version returns the negotiated protocol version (tls.VersionTLS12, ...).
func (s *SessionInfo) Version() uint16 {
	return s.state.Version
}

// Compression reports whether TLS-level compression is active. crypto/tls
// never negotiates compression, so this is always false; kept for parity
// with spec.md §4.3, which documents it as a legacy, almost-always-false
// field.
func (s *SessionInfo) Compression() bool {
	return s.state.Compressed
}

// PeerCertificate returns the peer's leaf certificate. When binary is true
// it returns the raw DER encoding; otherwise it returns nil, since this
// module carries no X.509 parser of its own (spec.md explicitly scopes
// certificate-field decoding out) and the caller is expected to parse the
// DER bytes with crypto/x509 when it wants a field-level view.
func (s *SessionInfo) PeerCertificate(binary bool) []byte {
	if len(s.state.PeerCertDER) == 0 {
		return nil
	}
	if !binary {
		return nil
	}
	return s.state.PeerCertDER[0]
}

// PeerCertificateChain returns the full peer certificate chain as received,
// leaf first, each entry DER-encoded.
func (s *SessionInfo) PeerCertificateChain() [][]byte {
	return s.state.PeerCertDER
}

// ChannelBinding returns the channel-binding data for kind. Only
// "tls-unique" (RFC 5929) is supported; any other kind returns
// ErrUnknownChannelBinding.
func (s *SessionInfo) ChannelBinding(kind string) ([]byte, error) {
	if kind != "tls-unique" {
		return nil, ErrUnknownChannelBinding
	}
	return s.state.TLSUnique, nil
}
