package tlsutil

import (
	"crypto/tls"
	"crypto/x509"
	"os"
	"path/filepath"
	"testing"

	"software.sslmate.com/src/go-pkcs12"

	"github.com/ilguido/jidl/pkg/errors"
)

func TestAuthorityIssue(t *testing.T) {
	ca, err := NewAuthority()
	if err != nil {
		t.Fatalf("NewAuthority: %v", err)
	}

	server, err := ca.Issue("localhost", true)
	if err != nil {
		t.Fatalf("Issue server: %v", err)
	}
	if _, err := server.Leaf.Verify(x509.VerifyOptions{
		Roots:   ca.Pool(),
		DNSName: "localhost",
	}); err != nil {
		t.Errorf("server leaf does not verify: %v", err)
	}

	client, err := ca.Issue("operator", false)
	if err != nil {
		t.Fatalf("Issue client: %v", err)
	}
	if _, err := client.Leaf.Verify(x509.VerifyOptions{
		Roots:     ca.Pool(),
		KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}); err != nil {
		t.Errorf("client leaf does not verify: %v", err)
	}
	if len(client.Leaf.DNSNames) != 0 {
		t.Errorf("client leaf carries server names: %v", client.Leaf.DNSNames)
	}
}

func TestKeystoreRoundTrip(t *testing.T) {
	ca, err := NewAuthority()
	if err != nil {
		t.Fatalf("NewAuthority: %v", err)
	}
	issued, err := ca.Issue("localhost", true)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	data, err := pkcs12.Modern.Encode(issued.PrivateKey, issued.Leaf,
		[]*x509.Certificate{ca.Cert}, "changeit")
	if err != nil {
		t.Fatalf("encoding keystore: %v", err)
	}
	path := filepath.Join(t.TempDir(), "keystore.p12")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("writing keystore: %v", err)
	}

	cert, err := LoadKeystore(path, "changeit")
	if err != nil {
		t.Fatalf("LoadKeystore: %v", err)
	}
	if cert.Leaf == nil || !cert.Leaf.Equal(issued.Leaf) {
		t.Error("loaded leaf differs from the issued one")
	}
	if len(cert.Certificate) != 2 {
		t.Errorf("chain length = %d, want leaf plus CA", len(cert.Certificate))
	}

	if _, err := LoadKeystore(path, "wrong"); !errors.IsCode(err, errors.ErrCodeKeystore) {
		t.Errorf("wrong password error = %v", err)
	}
	if _, err := LoadKeystore(filepath.Join(t.TempDir(), "absent.p12"), "x"); !errors.IsCode(err, errors.ErrCodeKeystore) {
		t.Errorf("missing file error = %v", err)
	}
}

func TestTruststoreRoundTrip(t *testing.T) {
	ca, err := NewAuthority()
	if err != nil {
		t.Fatalf("NewAuthority: %v", err)
	}

	data, err := pkcs12.Modern.EncodeTrustStore(
		[]*x509.Certificate{ca.Cert}, "changeit")
	if err != nil {
		t.Fatalf("encoding truststore: %v", err)
	}
	path := filepath.Join(t.TempDir(), "truststore.p12")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("writing truststore: %v", err)
	}

	pool, err := LoadTruststore(path, "changeit")
	if err != nil {
		t.Fatalf("LoadTruststore: %v", err)
	}
	if !pool.Equal(ca.Pool()) {
		t.Error("loaded pool differs from the authority pool")
	}

	if _, err := LoadTruststore(path, "wrong"); !errors.IsCode(err, errors.ErrCodeKeystore) {
		t.Errorf("wrong password error = %v", err)
	}
}

func TestConfigsPinTheProtocol(t *testing.T) {
	ca, err := NewAuthority()
	if err != nil {
		t.Fatalf("NewAuthority: %v", err)
	}
	cert, err := ca.Issue("localhost", true)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	srv := ServerConfig(cert, ca.Pool())
	if srv.MinVersion != tls.VersionTLS12 || srv.MaxVersion != tls.VersionTLS12 {
		t.Error("server config does not pin TLS 1.2")
	}
	if srv.ClientAuth != tls.RequireAndVerifyClientCert {
		t.Error("server config does not require client certificates")
	}
	if len(srv.CipherSuites) != 1 || srv.CipherSuites[0] != CipherSuite {
		t.Errorf("server cipher suites = %v", srv.CipherSuites)
	}

	cli := ClientConfig(cert, ca.Pool(), "localhost")
	if cli.MinVersion != tls.VersionTLS12 || cli.MaxVersion != tls.VersionTLS12 {
		t.Error("client config does not pin TLS 1.2")
	}
	if cli.ServerName != "localhost" {
		t.Errorf("client server name = %q", cli.ServerName)
	}
}
