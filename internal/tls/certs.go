// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthGate Contributors

// Package tls generates development certificates and loads the key pair
// the API serves HTTPS with.
package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	cryptotls "crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/samber/oops"
)

// File names written by Save.
const (
	CertFileName = "server.crt"
	KeyFileName  = "server.key"
)

// DefaultValidity is the lifetime of a generated development certificate.
const DefaultValidity = 365 * 24 * time.Hour

// DefaultHosts are the names a development certificate covers when none
// are given.
func DefaultHosts() []string {
	return []string{"localhost", "127.0.0.1", "::1"}
}

// ServerCert holds a self-signed server certificate and its private key.
type ServerCert struct {
	Certificate *x509.Certificate
	PrivateKey  *ecdsa.PrivateKey
}

// GenerateSelfSigned creates a P-256 server certificate valid from now for
// validity. Hosts that parse as IP addresses become IP SANs, the rest DNS SANs.
func GenerateSelfSigned(hosts []string, now time.Time, validity time.Duration) (*ServerCert, error) {
	if validity <= 0 {
		return nil, oops.Code("TLS_INVALID_VALIDITY").
			With("validity", validity.String()).
			Errorf("validity must be positive")
	}

	var dnsNames []string
	var ips []net.IP
	for _, h := range hosts {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		if ip := net.ParseIP(h); ip != nil {
			ips = append(ips, ip)
			continue
		}
		dnsNames = append(dnsNames, h)
	}
	if len(dnsNames) == 0 && len(ips) == 0 {
		return nil, oops.Code("TLS_NO_HOSTS").Errorf("at least one host is required")
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, oops.Code("TLS_KEY_FAILED").Wrap(err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, oops.Code("TLS_SERIAL_FAILED").Wrap(err)
	}

	commonName := "authgate development"
	if len(dnsNames) > 0 {
		commonName = dnsNames[0]
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"AuthGate"},
			CommonName:   commonName,
		},
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.Add(validity),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              dnsNames,
		IPAddresses:           ips,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, oops.Code("TLS_CREATE_FAILED").Wrap(err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, oops.Code("TLS_PARSE_FAILED").Wrap(err)
	}

	return &ServerCert{Certificate: cert, PrivateKey: key}, nil
}

// Save writes the certificate and key as PEM files into dir and returns
// their paths. Both files are created with mode 0600.
func Save(dir string, sc *ServerCert) (certPath, keyPath string, err error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", "", oops.Code("TLS_SAVE_FAILED").With("dir", dir).Wrap(err)
	}

	certPath = filepath.Join(dir, CertFileName)
	keyPath = filepath.Join(dir, KeyFileName)

	if err := writePEM(certPath, &pem.Block{Type: "CERTIFICATE", Bytes: sc.Certificate.Raw}); err != nil {
		return "", "", err
	}

	keyBytes, err := x509.MarshalECPrivateKey(sc.PrivateKey)
	if err != nil {
		return "", "", oops.Code("TLS_SAVE_FAILED").With("file", keyPath).Wrap(err)
	}
	if err := writePEM(keyPath, &pem.Block{Type: "EC PRIVATE KEY", Bytes: keyBytes}); err != nil {
		return "", "", err
	}

	return certPath, keyPath, nil
}

func writePEM(path string, block *pem.Block) error {
	f, err := os.OpenFile(filepath.Clean(path), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return oops.Code("TLS_SAVE_FAILED").With("file", path).Wrap(err)
	}
	if err := pem.Encode(f, block); err != nil {
		_ = f.Close()
		return oops.Code("TLS_SAVE_FAILED").With("file", path).Wrap(err)
	}
	if err := f.Close(); err != nil {
		return oops.Code("TLS_SAVE_FAILED").With("file", path).Wrap(err)
	}
	return nil
}

// LoadServerConfig loads a PEM key pair into a server TLS configuration
// that requires TLS 1.2 or newer.
func LoadServerConfig(certFile, keyFile string) (*cryptotls.Config, error) {
	pair, err := cryptotls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, oops.Code("TLS_LOAD_FAILED").
			With("cert_file", certFile).
			With("key_file", keyFile).
			Wrap(err)
	}
	return &cryptotls.Config{
		Certificates: []cryptotls.Certificate{pair},
		MinVersion:   cryptotls.VersionTLS12,
	}, nil
}

// CertPool returns a pool trusting the PEM certificate at certFile.
// Clients of a self-signed development server use it as RootCAs.
func CertPool(certFile string) (*x509.CertPool, error) {
	data, err := os.ReadFile(filepath.Clean(certFile))
	if err != nil {
		return nil, oops.Code("TLS_LOAD_FAILED").With("cert_file", certFile).Wrap(err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, oops.Code("TLS_LOAD_FAILED").
			With("cert_file", certFile).
			Errorf("no PEM certificates found")
	}
	return pool, nil
}
