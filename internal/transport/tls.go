package transport

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"time"

	"github.com/google/uuid"
)

const alpnProtocol = "kvmlink-v1"

// NewScreenCertificate returns an ephemeral Ed25519 certificate for a
// Primary that has no certificate on disk. Secondaries pin it by
// fingerprint, so nothing about the chain is ever verified. A zero
// lifetime means one year.
func NewScreenCertificate(name string, lifetime time.Duration) (tls.Certificate, error) {
	if lifetime <= 0 {
		lifetime = 365 * 24 * time.Hour
	}
	if name == "" {
		name = "kvmlink"
	}
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return tls.Certificate{}, err
	}

	id := uuid.New()
	now := time.Now()
	tmpl := &x509.Certificate{
		SerialNumber:          new(big.Int).SetBytes(id[:]),
		Subject:               pkix.Name{CommonName: name, Organization: []string{"kvmlink"}},
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.Add(lifetime),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, pub, priv)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: priv}, nil
}

// LoadCertificate reads a PEM certificate and its key. An empty keyFile
// means both blocks live in certFile, the single-file layout Barrier and
// Deskflow write.
func LoadCertificate(certFile, keyFile string) (tls.Certificate, error) {
	if keyFile == "" {
		keyFile = certFile
	}
	return tls.LoadX509KeyPair(certFile, keyFile)
}

func baseTLS() *tls.Config {
	return &tls.Config{
		NextProtos: []string{alpnProtocol},
		MinVersion: tls.VersionTLS13,
	}
}

// listenerTLS is shared by the TLS and QUIC listeners.
func listenerTLS(cert tls.Certificate) *tls.Config {
	c := baseTLS()
	c.Certificates = []tls.Certificate{cert}
	return c
}

// dialerTLS skips chain verification. With a non-empty trusted list the
// leaf must match one of its fingerprints.
func dialerTLS(trusted []string) *tls.Config {
	c := baseTLS()
	c.InsecureSkipVerify = true
	if len(trusted) > 0 {
		c.VerifyPeerCertificate = VerifyFingerprint(trusted)
	}
	return c
}
