package tinytls

// TlsTransportConfig holds a configuration for NewTlsTransport. Zero values
// for any field fall back to the defaults below, following the same
// defaults-plus-override convention as ServerConfig/mergeServerConfig.
type TlsTransportConfig struct {
	// WriteBufferSize is merged like the other fields (default: 64KB), but
	// TlsTransport does not read it: no backlog capacity is reserved up
	// front.
	WriteBufferSize int

	// WriteBufferHigh is the backlog size, in bytes, at or above which
	// PauseWriting is signalled to the Protocol (default: 256KB).
	WriteBufferHigh int

	// WriteBufferLow is the backlog size, in bytes, at or below which
	// ResumeWriting is signalled to the Protocol after having paused
	// (default: 64KB). Must be <= WriteBufferHigh.
	WriteBufferLow int

	// DoHandshakeOnConnect starts the handshake as soon as the transport
	// is attached to a carrier, instead of waiting for an explicit
	// DoHandshake call (default: true). nil means "use the default".
	DoHandshakeOnConnect *bool

	// CloseOnUnwrap closes the carrier once Unwrap completes, instead of
	// leaving the plaintext carrier open for further use (default: false).
	// nil means "use the default".
	CloseOnUnwrap *bool
}

func mergeTransportConfig(provided *TlsTransportConfig) *TlsTransportConfig {
	config := &TlsTransportConfig{
		WriteBufferSize: 64 * 1024,
		WriteBufferHigh: 256 * 1024,
		WriteBufferLow:  64 * 1024,
	}
	config.DoHandshakeOnConnect = boolPtr(true)
	config.CloseOnUnwrap = boolPtr(false)

	if provided == nil {
		return config
	}

	if provided.WriteBufferSize > 0 {
		config.WriteBufferSize = provided.WriteBufferSize
	}
	if provided.WriteBufferHigh > 0 {
		config.WriteBufferHigh = provided.WriteBufferHigh
	}
	if provided.WriteBufferLow > 0 {
		config.WriteBufferLow = provided.WriteBufferLow
	}
	if provided.DoHandshakeOnConnect != nil {
		config.DoHandshakeOnConnect = provided.DoHandshakeOnConnect
	}
	if provided.CloseOnUnwrap != nil {
		config.CloseOnUnwrap = provided.CloseOnUnwrap
	}

	if config.WriteBufferLow > config.WriteBufferHigh {
		config.WriteBufferLow = config.WriteBufferHigh
	}

	return config
}

func boolPtr(v bool) *bool {
	return &v
}
