// Package http implements RestApiRequester and HtmlRequester: templated
// HTTP requests with retry/backoff, response size caps, and TLS policy.
package http

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// TLSPolicy configures the client's certificate verification behavior.
type TLSPolicy struct {
	Enabled  bool
	Insecure bool
	CAFile   string
	CAPath   string
	CAData   string
}

func buildTLSConfig(policy TLSPolicy) (*tls.Config, error) {
	if !policy.Enabled {
		return nil, nil
	}

	cfg := &tls.Config{InsecureSkipVerify: policy.Insecure}
	if policy.Insecure {
		return cfg, nil
	}

	pool, err := loadCAPool(policy)
	if err != nil {
		return nil, err
	}
	if pool != nil {
		cfg.RootCAs = pool
	}
	return cfg, nil
}

func loadCAPool(policy TLSPolicy) (*x509.CertPool, error) {
	pool := x509.NewCertPool()
	added := false

	if policy.CAData != "" {
		if !pool.AppendCertsFromPEM([]byte(policy.CAData)) {
			return nil, fmt.Errorf("http: invalid ca_data PEM")
		}
		added = true
	}
	if policy.CAFile != "" {
		data, err := os.ReadFile(policy.CAFile)
		if err != nil {
			return nil, fmt.Errorf("http: read ca_file: %w", err)
		}
		if !pool.AppendCertsFromPEM(data) {
			return nil, fmt.Errorf("http: invalid ca_file PEM %q", policy.CAFile)
		}
		added = true
	}
	if policy.CAPath != "" {
		entries, err := os.ReadDir(policy.CAPath)
		if err != nil {
			return nil, fmt.Errorf("http: read ca_path: %w", err)
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			data, err := os.ReadFile(filepath.Join(policy.CAPath, e.Name()))
			if err != nil {
				continue
			}
			if pool.AppendCertsFromPEM(data) {
				added = true
			}
		}
	}

	if !added {
		return nil, nil
	}
	return pool, nil
}

func buildClient(timeout time.Duration, policy TLSPolicy) (*http.Client, error) {
	tlsCfg, err := buildTLSConfig(policy)
	if err != nil {
		return nil, err
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if tlsCfg != nil {
		transport.TLSClientConfig = tlsCfg
	}

	return &http.Client{Timeout: timeout, Transport: transport}, nil
}
