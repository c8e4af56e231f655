package server

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCA(t *testing.T, dir string) string {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "test-ca"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	path := filepath.Join(dir, "ca.pem")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600))
	return path
}

func TestBuildTLSConfig(t *testing.T) {
	dir := t.TempDir()
	ca := writeCA(t, dir)
	junk := filepath.Join(dir, "junk.pem")
	require.NoError(t, os.WriteFile(junk, []byte("not a cert"), 0o600))

	cfg := testConfig()
	tlsCfg, err := buildTLSConfig(cfg)
	require.NoError(t, err)
	assert.Nil(t, tlsCfg)

	cfg.TLSCertFile, cfg.TLSKeyFile = "cert.pem", "key.pem"
	tlsCfg, err = buildTLSConfig(cfg)
	require.NoError(t, err)
	require.NotNil(t, tlsCfg)
	assert.Equal(t, tls.NoClientCert, tlsCfg.ClientAuth)

	cfg.TLSClientCAFile = ca
	tlsCfg, err = buildTLSConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, tls.VerifyClientCertIfGiven, tlsCfg.ClientAuth)
	assert.NotNil(t, tlsCfg.ClientCAs)

	cfg.TLSClientCAFile = junk
	_, err = buildTLSConfig(cfg)
	assert.Error(t, err)

	cfg.TLSClientCAFile = filepath.Join(dir, "missing.pem")
	_, err = buildTLSConfig(cfg)
	assert.Error(t, err)
}
