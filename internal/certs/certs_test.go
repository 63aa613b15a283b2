package certs

import (
	"crypto/sha256"
	"crypto/x509"
	"net"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func TestGenerate(t *testing.T) {
	t.Parallel()

	c, err := Generate(time.Hour, "media.example.com", "10.1.2.3", "")
	if err != nil {
		t.Fatal(err)
	}
	if got := c.Leaf.NotAfter.Sub(c.Leaf.NotBefore); got != time.Hour {
		t.Errorf("validity = %s, want 1h", got)
	}
	if !c.Leaf.NotBefore.Before(time.Now()) {
		t.Error("certificate not yet valid")
	}
	if c.Fingerprint != sha256.Sum256(c.TLS.Certificate[0]) {
		t.Error("fingerprint does not cover the leaf")
	}
	if c.FingerprintBase64() == "" {
		t.Error("empty base64 fingerprint")
	}
	if !slices.Contains(c.Leaf.DNSNames, "localhost") || !slices.Contains(c.Leaf.DNSNames, "media.example.com") {
		t.Errorf("DNS names = %v", c.Leaf.DNSNames)
	}
	if !slices.ContainsFunc(c.Leaf.IPAddresses, func(ip net.IP) bool { return ip.Equal(net.ParseIP("10.1.2.3")) }) {
		t.Errorf("IP addresses = %v", c.Leaf.IPAddresses)
	}
	if len(c.Leaf.DNSNames) != 2 {
		t.Errorf("empty host added a name: %v", c.Leaf.DNSNames)
	}
}

func TestGenerateDefaultValidity(t *testing.T) {
	t.Parallel()

	c, err := Generate(0)
	if err != nil {
		t.Fatal(err)
	}
	if got := c.Leaf.NotAfter.Sub(c.Leaf.NotBefore); got != DefaultValidity {
		t.Errorf("validity = %s, want %s", got, DefaultValidity)
	}
}

func TestLoadOrGenerate(t *testing.T) {
	t.Parallel()

	t.Run("ephemeral", func(t *testing.T) {
		t.Parallel()
		c, err := LoadOrGenerate("", "")
		if err != nil {
			t.Fatal(err)
		}
		if c.Leaf.Subject.CommonName != "playcore" {
			t.Errorf("common name %q", c.Leaf.Subject.CommonName)
		}
	})

	t.Run("half configured", func(t *testing.T) {
		t.Parallel()
		if _, err := LoadOrGenerate("cert.pem", ""); err == nil {
			t.Error("certificate without key accepted")
		}
	})

	t.Run("generated then reloaded", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		certFile, keyFile := filepath.Join(dir, "cert.pem"), filepath.Join(dir, "key.pem")

		first, err := LoadOrGenerate(certFile, keyFile)
		if err != nil {
			t.Fatal(err)
		}
		info, err := os.Stat(keyFile)
		if err != nil {
			t.Fatal(err)
		}
		if perm := info.Mode().Perm(); perm != 0o600 {
			t.Errorf("key file mode %o, want 600", perm)
		}

		again, err := LoadOrGenerate(certFile, keyFile)
		if err != nil {
			t.Fatal(err)
		}
		if again.Fingerprint != first.Fingerprint {
			t.Error("second start generated a new certificate")
		}
	})

	t.Run("unreadable key", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		certFile := filepath.Join(dir, "cert.pem")
		c, err := Generate(time.Hour)
		if err != nil {
			t.Fatal(err)
		}
		if err := c.Save(certFile, filepath.Join(dir, "key.pem")); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadOrGenerate(certFile, filepath.Join(dir, "missing.pem")); err == nil {
			t.Error("missing key file accepted")
		}
	})
}

func TestClientTrustsServer(t *testing.T) {
	t.Parallel()

	c, err := Generate(time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	srv := c.ServerTLS("proto")
	cli := c.ClientTLS("proto")
	if len(srv.NextProtos) != 1 || srv.NextProtos[0] != "proto" || len(srv.Certificates) != 1 {
		t.Errorf("server config = %+v", srv)
	}
	if _, err := c.Leaf.Verify(x509.VerifyOptions{DNSName: cli.ServerName, Roots: cli.RootCAs}); err != nil {
		t.Errorf("client does not trust the certificate: %v", err)
	}
}
