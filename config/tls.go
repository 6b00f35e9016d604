package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// TLSConfig holds PEM paths for serving RPC over TLS. With CACert set,
// clients must present a certificate signed by that CA.
type TLSConfig struct {
	CACert string `json:"ca_cert,omitempty" mapstructure:"ca_cert"`
	Cert   string `json:"cert,omitempty" mapstructure:"cert" validate:"required_with=Key"`
	Key    string `json:"key,omitempty" mapstructure:"key" validate:"required_with=Cert"`
}

func loadCAPool(path string) (*x509.CertPool, error) {
	caPEM, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read CA cert: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("failed to parse CA certificate")
	}
	return pool, nil
}

// ServerTLS builds the RPC server's *tls.Config. It returns (nil, nil) when
// no certificate is configured, meaning plain HTTP.
func ServerTLS(cfg TLSConfig) (*tls.Config, error) {
	if cfg.Cert == "" && cfg.Key == "" {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(cfg.Cert, cfg.Key)
	if err != nil {
		return nil, fmt.Errorf("load server cert/key: %w", err)
	}
	tc := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS13,
	}
	if cfg.CACert != "" {
		pool, err := loadCAPool(cfg.CACert)
		if err != nil {
			return nil, err
		}
		tc.ClientCAs = pool
		tc.ClientAuth = tls.RequireAndVerifyClientCert
	}
	return tc, nil
}

// ClientTLS builds a client *tls.Config trusting caCert and, if certFile is
// set, presenting that client certificate. It returns (nil, nil) when all
// paths are empty.
func ClientTLS(caCert, certFile, keyFile string) (*tls.Config, error) {
	if caCert == "" && certFile == "" && keyFile == "" {
		return nil, nil
	}
	tc := &tls.Config{MinVersion: tls.VersionTLS13}
	if caCert != "" {
		pool, err := loadCAPool(caCert)
		if err != nil {
			return nil, err
		}
		tc.RootCAs = pool
	}
	if certFile != "" || keyFile != "" {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, fmt.Errorf("load client cert/key: %w", err)
		}
		tc.Certificates = []tls.Certificate{cert}
	}
	return tc, nil
}
