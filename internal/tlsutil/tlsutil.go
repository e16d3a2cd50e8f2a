// Package tlsutil builds tls.Config values from certificate files. The
// server always presents a certificate; client authentication is enabled by
// supplying a client CA. Clients trust the system root store plus an
// optional extra CA.
package tlsutil

import (
	"crypto/tls"
	"crypto/x509"
	"os"

	"github.com/pkg/errors"
)

// NewServerConfig loads the server key pair. When clientCAFile is non-empty
// the returned config requires and verifies a client certificate.
func NewServerConfig(certFile, keyFile, clientCAFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, errors.Wrap(err, "load server certificate")
	}

	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}

	if clientCAFile != "" {
		pool := x509.NewCertPool()
		pem, err := os.ReadFile(clientCAFile)
		if err != nil {
			return nil, errors.Wrapf(err, "read client CA %s", clientCAFile)
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errors.Errorf("no certificates parsed from %s", clientCAFile)
		}
		cfg.ClientCAs = pool
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
	}

	return cfg, nil
}

// NewClientConfig builds the client side. serverName is the name verified
// against the server certificate; caFile adds a CA beyond the system roots;
// certFile/keyFile supply an optional client identity.
func NewClientConfig(serverName, caFile, certFile, keyFile string) (*tls.Config, error) {
	roots, err := x509.SystemCertPool()
	if err != nil {
		roots = x509.NewCertPool()
	}
	if caFile != "" {
		pem, err := os.ReadFile(caFile)
		if err != nil {
			return nil, errors.Wrapf(err, "read CA %s", caFile)
		}
		if !roots.AppendCertsFromPEM(pem) {
			return nil, errors.Errorf("no certificates parsed from %s", caFile)
		}
	}

	cfg := &tls.Config{
		RootCAs:    roots,
		ServerName: serverName,
		MinVersion: tls.VersionTLS12,
	}

	if certFile != "" || keyFile != "" {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, errors.Wrap(err, "load client certificate")
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	return cfg, nil
}
