// Package tlsutil loads the PKCS#12 key material of the ipc server and
// builds the TLS configurations the protocol mandates: TLS 1.2 only,
// mutual authentication, a single RSA-GCM cipher suite.
package tlsutil

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"os"
	"time"

	"software.sslmate.com/src/go-pkcs12"

	"github.com/ilguido/jidl/pkg/errors"
)

// CipherSuite is the only suite the ipc endpoints negotiate.
const CipherSuite = tls.TLS_RSA_WITH_AES_128_GCM_SHA256

// LoadKeystore reads a password-protected PKCS#12 keystore and returns
// its leaf certificate and private key.
func LoadKeystore(path, password string) (tls.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return tls.Certificate{}, errors.Wrapf(err, errors.ErrCodeKeystore,
			"reading keystore %s", path).Err()
	}

	key, leaf, chain, err := pkcs12.DecodeChain(data, password)
	if err != nil {
		return tls.Certificate{}, errors.Wrapf(err, errors.ErrCodeKeystore,
			"decoding keystore %s", path).Err()
	}

	cert := tls.Certificate{
		Certificate: [][]byte{leaf.Raw},
		PrivateKey:  key,
		Leaf:        leaf,
	}
	for _, c := range chain {
		cert.Certificate = append(cert.Certificate, c.Raw)
	}
	return cert, nil
}

// LoadTruststore reads a password-protected PKCS#12 truststore and
// returns the contained certificates as a pool.
func LoadTruststore(path, password string) (*x509.CertPool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrCodeKeystore,
			"reading truststore %s", path).Err()
	}

	certs, err := pkcs12.DecodeTrustStore(data, password)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrCodeKeystore,
			"decoding truststore %s", path).Err()
	}

	pool := x509.NewCertPool()
	for _, c := range certs {
		pool.AddCert(c)
	}
	return pool, nil
}

// ServerConfig builds the server-side TLS configuration: client
// certificates are required and verified against the truststore.
func ServerConfig(cert tls.Certificate, clientCAs *x509.CertPool) *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientCAs:    clientCAs,
		ClientAuth:   tls.RequireAndVerifyClientCert,
		MinVersion:   tls.VersionTLS12,
		MaxVersion:   tls.VersionTLS12,
		CipherSuites: []uint16{CipherSuite},
	}
}

// ClientConfig builds the client-side TLS configuration.
func ClientConfig(cert tls.Certificate, rootCAs *x509.CertPool, serverName string) *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      rootCAs,
		ServerName:   serverName,
		MinVersion:   tls.VersionTLS12,
		MaxVersion:   tls.VersionTLS12,
		CipherSuites: []uint16{CipherSuite},
	}
}

// Authority is a throwaway certificate authority for tests and local
// setups. The mandated cipher suite needs RSA keys throughout.
type Authority struct {
	Cert *x509.Certificate
	key  *rsa.PrivateKey
}

// NewAuthority generates a self-signed CA.
func NewAuthority() (*Authority, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeAuthMaterial, "generating CA key").Err()
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeAuthMaterial, "generating serial").Err()
	}

	template := x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"jidl"},
			CommonName:   "jidl CA",
		},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeAuthMaterial, "creating CA certificate").Err()
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeAuthMaterial, "parsing CA certificate").Err()
	}

	return &Authority{Cert: cert, key: key}, nil
}

// Pool returns a pool containing only this authority.
func (a *Authority) Pool() *x509.CertPool {
	pool := x509.NewCertPool()
	pool.AddCert(a.Cert)
	return pool
}

// Issue signs a leaf certificate for the given name. Server leaves are
// valid for localhost addresses, client leaves for client auth.
func (a *Authority) Issue(commonName string, server bool) (tls.Certificate, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return tls.Certificate{}, errors.Wrap(err, errors.ErrCodeAuthMaterial, "generating key").Err()
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return tls.Certificate{}, errors.Wrap(err, errors.ErrCodeAuthMaterial, "generating serial").Err()
	}

	template := x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"jidl"},
			CommonName:   commonName,
		},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
	}
	if server {
		template.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}
		template.IPAddresses = []net.IP{net.ParseIP("127.0.0.1"), net.ParseIP("::1")}
		template.DNSNames = []string{"localhost"}
	} else {
		template.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth}
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, a.Cert, &key.PublicKey, a.key)
	if err != nil {
		return tls.Certificate{}, errors.Wrap(err, errors.ErrCodeAuthMaterial, "creating certificate").Err()
	}
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		return tls.Certificate{}, errors.Wrap(err, errors.ErrCodeAuthMaterial, "parsing certificate").Err()
	}

	return tls.Certificate{
		Certificate: [][]byte{der, a.Cert.Raw},
		PrivateKey:  key,
		Leaf:        leaf,
	}, nil
}
