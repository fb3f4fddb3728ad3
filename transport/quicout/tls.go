package quicout

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"fmt"
	"math/big"
	"net"
	"time"
)

// quicALPN is this repository's own wire protocol identifier: there is no
// interop requirement with browsers or the teacher's WebTransport/MoQ
// stack, so a single fixed ALPN value is enough.
const quicALPN = "vmixer-output/1"

// maxCertValidity bounds a generated leaf certificate's lifetime: quic-go
// (like WebTransport clients) rejects certificates valid for longer than
// 14 days.
const maxCertValidity = 14 * 24 * time.Hour

// CertInfo describes a certificate SelfSignedTLSConfig generated, for
// logging and client-side pinning.
type CertInfo struct {
	Fingerprint [32]byte
	NotAfter    time.Time
}

// FingerprintBase64 returns the certificate's SHA-256 fingerprint as
// base64, suitable for a viewer to pin against instead of trusting a CA.
func (c *CertInfo) FingerprintBase64() string {
	return base64.StdEncoding.EncodeToString(c.Fingerprint[:])
}

// SelfSignedTLSConfig builds a self-signed ECDSA P-256 TLS config for a
// Sink about to listen on addr, valid for validity (capped at
// maxCertValidity). The certificate's subject alternative names are
// derived from addr's own host, so the cert a viewer receives actually
// matches the address it dialed instead of a fixed placeholder.
func SelfSignedTLSConfig(addr string, validity time.Duration) (*tls.Config, *CertInfo, error) {
	if validity > maxCertValidity || validity <= 0 {
		validity = maxCertValidity
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("quicout: generate private key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, nil, fmt.Errorf("quicout: generate serial number: %w", err)
	}

	dnsNames, ips := certSANs(addr)

	now := time.Now()
	notBefore := now.Add(-1 * time.Minute) // slight backdate for clock skew
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: "vmixer-output"},
		NotBefore:    notBefore,
		NotAfter:     notBefore.Add(validity),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     dnsNames,
		IPAddresses:  ips,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, nil, fmt.Errorf("quicout: create certificate: %w", err)
	}

	tlsCert := tls.Certificate{
		Certificate: [][]byte{certDER},
		PrivateKey:  key,
	}

	return &tls.Config{
			Certificates: []tls.Certificate{tlsCert},
			NextProtos:   []string{quicALPN},
		}, &CertInfo{
			Fingerprint: sha256.Sum256(certDER),
			NotAfter:    template.NotAfter,
		}, nil
}

// certSANs derives a certificate's subject alternative names from a
// listen address. A literal IP host becomes an IPAddresses entry, a named
// host becomes a DNSNames entry, and a host-less addr (the usual ":6001"
// listen form) falls back to localhost/127.0.0.1 so local testing and
// loopback clients still verify cleanly.
func certSANs(addr string) ([]string, []net.IP) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	if host == "" {
		return []string{"localhost"}, []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback}
	}
	if ip := net.ParseIP(host); ip != nil {
		return []string{"localhost"}, []net.IP{ip, net.IPv4(127, 0, 0, 1)}
	}
	return []string{host, "localhost"}, []net.IP{net.IPv4(127, 0, 0, 1)}
}
