// Package certs supplies the QUIC ingest listener's TLS certificate. A key
// pair is read from disk when configured; otherwise a self-signed ECDSA
// P-256 certificate is generated, and written out when paths were given so
// publishers can pin it across restarts.
package certs

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"math/big"
	"net"
	"os"
	"time"
)

// DefaultValidity is the lifetime of a generated certificate.
const DefaultValidity = 14 * 24 * time.Hour

// Cert is a key pair with its parsed leaf and SHA-256 fingerprint.
type Cert struct {
	TLS         tls.Certificate
	Leaf        *x509.Certificate
	Fingerprint [32]byte
}

// FingerprintBase64 returns the leaf fingerprint in standard base64.
func (c *Cert) FingerprintBase64() string {
	return base64.StdEncoding.EncodeToString(c.Fingerprint[:])
}

// ServerTLS returns a TLS 1.3 server configuration presenting c.
func (c *Cert) ServerTLS(alpn ...string) *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{c.TLS},
		NextProtos:   alpn,
		MinVersion:   tls.VersionTLS13,
	}
}

// ClientTLS returns a TLS 1.3 client configuration trusting only c.
func (c *Cert) ClientTLS(alpn ...string) *tls.Config {
	roots := x509.NewCertPool()
	roots.AddCert(c.Leaf)
	return &tls.Config{
		RootCAs:    roots,
		ServerName: "localhost",
		NextProtos: alpn,
		MinVersion: tls.VersionTLS13,
	}
}

func fromPair(pair tls.Certificate) (*Cert, error) {
	if len(pair.Certificate) == 0 {
		return nil, errors.New("certs: key pair holds no certificate")
	}
	leaf, err := x509.ParseCertificate(pair.Certificate[0])
	if err != nil {
		return nil, fmt.Errorf("certs: parse leaf: %w", err)
	}
	pair.Leaf = leaf
	return &Cert{TLS: pair, Leaf: leaf, Fingerprint: sha256.Sum256(leaf.Raw)}, nil
}

// Load reads a PEM certificate chain and private key.
func Load(certFile, keyFile string) (*Cert, error) {
	pair, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("certs: %w", err)
	}
	return fromPair(pair)
}

// LoadOrGenerate loads the pair at certFile and keyFile. With both paths
// empty it returns an ephemeral certificate; when the certificate file does
// not exist yet one is generated and saved there.
func LoadOrGenerate(certFile, keyFile string) (*Cert, error) {
	switch {
	case certFile == "" && keyFile == "":
		return Generate(DefaultValidity)
	case certFile == "" || keyFile == "":
		return nil, errors.New("certs: certificate and key files must be set together")
	}
	if _, err := os.Stat(certFile); errors.Is(err, fs.ErrNotExist) {
		c, err := Generate(DefaultValidity)
		if err != nil {
			return nil, err
		}
		if err := c.Save(certFile, keyFile); err != nil {
			return nil, err
		}
		return c, nil
	}
	return Load(certFile, keyFile)
}

// Save writes the certificate and its PKCS #8 key as PEM. The key file is
// readable by the owner only.
func (c *Cert) Save(certFile, keyFile string) error {
	keyDER, err := x509.MarshalPKCS8PrivateKey(c.TLS.PrivateKey)
	if err != nil {
		return fmt.Errorf("certs: marshal key: %w", err)
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: c.Leaf.Raw})
	if err := os.WriteFile(certFile, certPEM, 0o644); err != nil {
		return fmt.Errorf("certs: %w", err)
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER})
	if err := os.WriteFile(keyFile, keyPEM, 0o600); err != nil {
		return fmt.Errorf("certs: %w", err)
	}
	return nil
}

// Generate creates a self-signed certificate valid for localhost, the
// loopback addresses and any extra hosts, which may be names or IPs. A
// non-positive validity selects DefaultValidity.
func Generate(validity time.Duration, hosts ...string) (*Cert, error) {
	if validity <= 0 {
		validity = DefaultValidity
	}
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("certs: generate key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("certs: serial number: %w", err)
	}

	// Backdated a minute for peers with slow clocks.
	start := time.Now().Add(-time.Minute).Truncate(time.Second)
	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: "playcore"},
		NotBefore:    start,
		NotAfter:     start.Add(validity),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     []string{"localhost"},
		IPAddresses:  []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback},
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			tmpl.IPAddresses = append(tmpl.IPAddresses, ip)
		} else if h != "" {
			tmpl.DNSNames = append(tmpl.DNSNames, h)
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("certs: create certificate: %w", err)
	}
	return fromPair(tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key})
}
