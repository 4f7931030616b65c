package tinytls

import (
	"crypto/tls"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func writeTempPEM(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	assert.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestBuildContextLoadsCertificateAndKey(t *testing.T) {
	// given
	certPEM, keyPEM := generateTestCertPEM("build-context.local")
	certPath := writeTempPEM(t, "server.crt", certPEM)
	keyPath := writeTempPEM(t, "server.key", keyPEM)

	// when
	cfg, err := BuildContext(ContextOptions{
		Role:     RoleServer,
		CertFile: certPath,
		KeyFile:  keyPath,
	})

	// then
	assert.NoError(t, err)
	assert.Len(t, cfg.Certificates, 1, "the loaded key pair should be attached")
}

func TestBuildContextVerifyModes(t *testing.T) {
	// given/when/then: VerifyNone skips verification entirely
	cfg, err := BuildContext(ContextOptions{Role: RoleClient, VerifyMode: VerifyNone})
	assert.NoError(t, err)
	assert.True(t, cfg.InsecureSkipVerify)

	// VerifyOptional on a server requests but doesn't require a client cert
	cfg, err = BuildContext(ContextOptions{Role: RoleServer, VerifyMode: VerifyOptional})
	assert.NoError(t, err)
	assert.Equal(t, tls.VerifyClientCertIfGiven, cfg.ClientAuth)

	// VerifyRequired on a server requires and verifies a client cert
	cfg, err = BuildContext(ContextOptions{Role: RoleServer, VerifyMode: VerifyRequired})
	assert.NoError(t, err)
	assert.Equal(t, tls.RequireAndVerifyClientCert, cfg.ClientAuth)
}

func TestBuildContextPinsTLSVersion(t *testing.T) {
	// when
	cfg, err := BuildContext(ContextOptions{Role: RoleClient, TLSVersion: tls.VersionTLS13})

	// then
	assert.NoError(t, err)
	assert.Equal(t, uint16(tls.VersionTLS13), cfg.MinVersion)
	assert.Equal(t, uint16(tls.VersionTLS13), cfg.MaxVersion)
}

func TestBuildContextResolvesCipherNames(t *testing.T) {
	// when
	cfg, err := BuildContext(ContextOptions{
		Role:    RoleClient,
		Ciphers: []string{"TLS_AES_128_GCM_SHA256"},
	})

	// then
	assert.NoError(t, err)
	assert.Equal(t, []uint16{tls.TLS_AES_128_GCM_SHA256}, cfg.CipherSuites)
}

func TestBuildContextRejectsUnknownCipherName(t *testing.T) {
	// when
	_, err := BuildContext(ContextOptions{
		Role:    RoleClient,
		Ciphers: []string{"NOT_A_REAL_CIPHER"},
	})

	// then
	assert.Error(t, err)
}

func TestBuildContextRejectsMissingCACertsFile(t *testing.T) {
	// when
	_, err := BuildContext(ContextOptions{
		Role:    RoleClient,
		CACerts: filepath.Join(t.TempDir(), "does-not-exist.pem"),
	})

	// then
	assert.Error(t, err)
}
