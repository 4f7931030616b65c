package tinytls

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// VerifyMode selects how a context factory should verify the peer's
// certificate, mirroring spec.md §4.4's verify_mode option. The zero value
// selects the per-role default described on ContextOptions.VerifyMode.
type VerifyMode int

const (
	// VerifyNone performs no certificate verification at all.
	VerifyNone VerifyMode = iota + 1

	// VerifyOptional verifies the certificate if the peer presents one,
	// but does not require one.
	VerifyOptional

	// VerifyRequired requires and verifies the peer's certificate.
	VerifyRequired
)

// ContextOptions is the flat options table from spec.md §4.4, given Go-native
// shape as a typed struct instead of a stringly-typed map.
type ContextOptions struct {
	// Role selects whether the resulting *tls.Config configures a client
	// or a server context.
	Role Role

	// TLSVersion pins the negotiated protocol version (e.g.
	// tls.VersionTLS13). Zero means "negotiate the best available",
	// which crypto/tls already treats as its secure default.
	TLSVersion uint16

	// CertFile and KeyFile supply the local identity (server certificate,
	// or client certificate for mutual TLS).
	CertFile string
	KeyFile  string

	// CACerts is a path to a PEM bundle of trusted root certificates. When
	// empty, the platform's default trust store is used.
	CACerts string

	// VerifyMode controls peer certificate verification (default:
	// VerifyRequired for clients, VerifyNone for servers, matching
	// crypto/tls's own asymmetric default).
	VerifyMode VerifyMode

	// Ciphers restricts the negotiated cipher suite list by name (e.g.
	// "TLS_AES_128_GCM_SHA256"). Empty means crypto/tls's default list.
	Ciphers []string

	// ServerName is the SNI hostname a client context presents; also used
	// as the expected name during verification.
	ServerName string
}

// BuildContext builds a *tls.Config from opts, following spec.md §4.4. It is
// the one place in this module that touches certificate/key files on disk,
// grounded on the same tls.LoadX509KeyPair + tls.Config wiring the teacher's
// own netListener.Listen uses for TLSCert/TLSKey.
func BuildContext(opts ContextOptions) (*tls.Config, error) {
	cfg := &tls.Config{
		MinVersion: tls.VersionTLS12,
		ServerName: opts.ServerName,
	}

	if opts.TLSVersion != 0 {
		cfg.MinVersion = opts.TLSVersion
		cfg.MaxVersion = opts.TLSVersion
	}

	if opts.CertFile != "" && opts.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(opts.CertFile, opts.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("tinytls: loading key pair: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	if opts.CACerts != "" {
		pool, err := loadCertPool(opts.CACerts)
		if err != nil {
			return nil, err
		}
		if opts.Role == RoleClient {
			cfg.RootCAs = pool
		} else {
			cfg.ClientCAs = pool
		}
	}

	if len(opts.Ciphers) > 0 {
		ids, err := resolveCipherSuites(opts.Ciphers)
		if err != nil {
			return nil, err
		}
		cfg.CipherSuites = ids
	}

	switch opts.VerifyMode {
	case VerifyNone:
		cfg.InsecureSkipVerify = true
	case VerifyOptional:
		if opts.Role == RoleServer {
			cfg.ClientAuth = tls.VerifyClientCertIfGiven
		}
	case VerifyRequired:
		if opts.Role == RoleServer {
			cfg.ClientAuth = tls.RequireAndVerifyClientCert
		}
	}

	return cfg, nil
}

func loadCertPool(path string) (*x509.CertPool, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("tinytls: reading ca_certs: %w", err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(raw) {
		return nil, fmt.Errorf("tinytls: no certificates found in %s", path)
	}
	return pool, nil
}

func resolveCipherSuites(names []string) ([]uint16, error) {
	known := make(map[string]uint16)
	for _, suite := range tls.CipherSuites() {
		known[suite.Name] = suite.ID
	}
	for _, suite := range tls.InsecureCipherSuites() {
		known[suite.Name] = suite.ID
	}

	ids := make([]uint16, 0, len(names))
	for _, name := range names {
		id, ok := known[name]
		if !ok {
			return nil, fmt.Errorf("tinytls: unknown cipher suite %q", name)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
