package transport

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// SecurityMode selects how strict transport security checks are.
type SecurityMode string

const (
	SecurityModeDevelopment SecurityMode = "dev"
	SecurityModeProduction  SecurityMode = "prod"
)

var (
	ErrInvalidSecurityMode     = errors.New("transport: invalid security mode")
	ErrTLSRequired             = errors.New("transport: tls required")
	ErrMTLSRequired            = errors.New("transport: mtls required")
	ErrTLSCertFileRequired     = errors.New("transport: tls cert file required")
	ErrTLSKeyFileRequired      = errors.New("transport: tls key file required")
	ErrTLSCAFileRequired       = errors.New("transport: tls ca file required")
	ErrTLSInsecureSkipNotAllow = errors.New("transport: insecure skip verify not allowed")
	ErrAddrRequired            = errors.New("transport: address required")
)

type TLSConfig struct {
	Enabled            bool   `toml:"enabled"`
	Mutual             bool   `toml:"mutual"`
	CertFile           string `toml:"cert_file"`
	KeyFile            string `toml:"key_file"`
	CAFile             string `toml:"ca_file"`
	ServerName         string `toml:"server_name"`
	InsecureSkipVerify bool   `toml:"insecure_skip_verify"`
}

// BackoffConfig defines redial backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config describes one side of the telemetry link.
type Config struct {
	// Addr is the peer to dial (sender) or the address to bind (listener).
	Addr          string
	DialTimeout   time.Duration
	WriteTimeout  time.Duration
	ReadTimeout   time.Duration
	MaxFrameBytes uint32
	SecurityMode  SecurityMode
	TLS           TLSConfig
	Backoff       BackoffConfig
	// Name labels logs and metrics.
	Name string
}

func DefaultConfig() Config {
	return Config{
		DialTimeout:   5 * time.Second,
		WriteTimeout:  5 * time.Second,
		ReadTimeout:   0,
		MaxFrameBytes: 1 << 20,
		SecurityMode:  SecurityModeDevelopment,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
	}
}

func NormalizeSecurityMode(mode SecurityMode) SecurityMode {
	m := SecurityMode(strings.ToLower(strings.TrimSpace(string(mode))))
	switch m {
	case "":
		return SecurityModeDevelopment
	case "development":
		return SecurityModeDevelopment
	case "production":
		return SecurityModeProduction
	}
	return m
}

func checkMode(mode SecurityMode) (SecurityMode, error) {
	m := NormalizeSecurityMode(mode)
	if m != SecurityModeDevelopment && m != SecurityModeProduction {
		return m, fmt.Errorf("%w: %q", ErrInvalidSecurityMode, mode)
	}
	return m, nil
}

// ValidateSender checks the dialing side. Production links need mutual TLS
// with verified peers.
func (c Config) ValidateSender() error {
	if strings.TrimSpace(c.Addr) == "" {
		return ErrAddrRequired
	}
	mode, err := checkMode(c.SecurityMode)
	if err != nil {
		return err
	}
	if mode == SecurityModeProduction {
		switch {
		case !c.TLS.Enabled:
			return ErrTLSRequired
		case !c.TLS.Mutual:
			return ErrMTLSRequired
		case c.TLS.InsecureSkipVerify:
			return ErrTLSInsecureSkipNotAllow
		}
	}
	if c.TLS.Mutual && !c.TLS.Enabled {
		return ErrTLSRequired
	}
	if c.TLS.Enabled && strings.TrimSpace(c.TLS.CAFile) == "" && !c.TLS.InsecureSkipVerify {
		return ErrTLSCAFileRequired
	}
	if c.TLS.Mutual {
		return c.TLS.requireKeyPair()
	}
	return nil
}

// ValidateListener checks the accepting side.
func (c Config) ValidateListener() error {
	if strings.TrimSpace(c.Addr) == "" {
		return ErrAddrRequired
	}
	mode, err := checkMode(c.SecurityMode)
	if err != nil {
		return err
	}
	if mode == SecurityModeProduction {
		if !c.TLS.Enabled {
			return ErrTLSRequired
		}
		if !c.TLS.Mutual {
			return ErrMTLSRequired
		}
	}
	if c.TLS.Mutual && !c.TLS.Enabled {
		return ErrTLSRequired
	}
	if c.TLS.Enabled {
		if err := c.TLS.requireKeyPair(); err != nil {
			return err
		}
	}
	if c.TLS.Mutual && strings.TrimSpace(c.TLS.CAFile) == "" {
		return ErrTLSCAFileRequired
	}
	return nil
}

func (t TLSConfig) requireKeyPair() error {
	if strings.TrimSpace(t.CertFile) == "" {
		return ErrTLSCertFileRequired
	}
	if strings.TrimSpace(t.KeyFile) == "" {
		return ErrTLSKeyFileRequired
	}
	return nil
}
