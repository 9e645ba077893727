// Package caroundtripper provides a transport that trusts a private CA, for
// OpenSearch clusters behind self-issued certificates.
package caroundtripper

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net/http"
	"os"
)

var _ http.RoundTripper = (*Client)(nil)

type Client struct {
	transport *http.Transport
}

func (c Client) RoundTrip(request *http.Request) (*http.Response, error) {
	return c.transport.RoundTrip(request)
}

// New creates a transport that only trusts the certificates found in the
// PEM file at caPath.
func New(caPath string) (*Client, error) {
	caBytes, err := os.ReadFile(caPath)
	if err != nil {
		return nil, err
	}
	certPool, err := parsePool(caBytes)
	if err != nil {
		return nil, fmt.Errorf("unable to load %s: %w", caPath, err)
	}

	t := http.Transport{
		Proxy: http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{
			RootCAs:    certPool,
			MinVersion: tls.VersionTLS12,
		},
		ForceAttemptHTTP2: true,
	}
	return &Client{transport: &t}, nil
}

func parsePool(caBytes []byte) (*x509.CertPool, error) {
	certPool := x509.NewCertPool()
	count := 0
	for rest := caBytes; ; {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			return nil, fmt.Errorf("invalid pem block type %s, expected CERTIFICATE", block.Type)
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("unable to parse certificate: %w", err)
		}
		certPool.AddCert(cert)
		count++
	}
	if count == 0 {
		return nil, fmt.Errorf("no certificate found")
	}
	return certPool, nil
}
