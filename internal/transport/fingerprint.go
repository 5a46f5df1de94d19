package transport

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ErrUntrustedCertificate is returned when the peer's certificate does not
// match any trusted fingerprint.
var ErrUntrustedCertificate = errors.New("untrusted certificate")

// Fingerprint returns the SHA-256 digest of a DER certificate as
// colon-separated upper-case hex.
func Fingerprint(der []byte) string {
	sum := sha256.Sum256(der)
	var b strings.Builder
	for i, c := range sum {
		if i > 0 {
			b.WriteByte(':')
		}
		fmt.Fprintf(&b, "%02X", c)
	}
	return b.String()
}

// CertificateFingerprint is Fingerprint of cert's leaf.
func CertificateFingerprint(cert tls.Certificate) string {
	if len(cert.Certificate) == 0 {
		return ""
	}
	return Fingerprint(cert.Certificate[0])
}

// ParseFingerprint decodes a SHA-256 fingerprint written as upper or lower
// case hex, with or without colons.
func ParseFingerprint(s string) ([]byte, error) {
	raw, err := hex.DecodeString(strings.ReplaceAll(strings.TrimSpace(s), ":", ""))
	if err != nil {
		return nil, fmt.Errorf("fingerprint %q: %w", s, err)
	}
	if len(raw) != sha256.Size {
		return nil, fmt.Errorf("fingerprint %q: %d bytes, want %d", s, len(raw), sha256.Size)
	}
	return raw, nil
}

// VerifyFingerprint returns a tls.Config.VerifyPeerCertificate callback
// that accepts only leaf certificates whose digest is in trusted.
// Malformed entries never match.
func VerifyFingerprint(trusted []string) func([][]byte, [][]*x509.Certificate) error {
	var digests [][]byte
	for _, s := range trusted {
		if d, err := ParseFingerprint(s); err == nil {
			digests = append(digests, d)
		}
	}
	return func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		if len(rawCerts) == 0 {
			return fmt.Errorf("%w: no certificate presented", ErrUntrustedCertificate)
		}
		sum := sha256.Sum256(rawCerts[0])
		for _, d := range digests {
			if hmac.Equal(sum[:], d) {
				return nil
			}
		}
		return fmt.Errorf("%w: %s", ErrUntrustedCertificate, Fingerprint(rawCerts[0]))
	}
}
