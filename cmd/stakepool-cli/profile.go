package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	defaultEndpoint  = "http://127.0.0.1:8090"
	defaultSecretEnv = "STAKEPOOL_HMAC_SECRET"
	defaultTokenTTL  = 5 * time.Minute
)

// profile is the operator's saved connection settings.
type profile struct {
	Endpoint  string `toml:"Endpoint"`
	Account   string `toml:"Account"`
	SecretEnv string `toml:"SecretEnv"`
	Issuer    string `toml:"Issuer"`
	Audience  string `toml:"Audience"`
	TokenTTL  string `toml:"TokenTTL"`

	ttl time.Duration
}

func defaultProfilePath() string {
	if path := strings.TrimSpace(os.Getenv("STAKEPOOL_PROFILE")); path != "" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "stakepool.toml"
	}
	return filepath.Join(home, ".stakepool", "profile.toml")
}

// loadProfile reads path. A missing file yields the defaults so the CLI works
// against a local daemon without any setup.
func loadProfile(path string) (profile, error) {
	var p profile
	if path != "" {
		if _, err := toml.DecodeFile(path, &p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return profile{}, fmt.Errorf("read profile %s: %w", path, err)
		}
	}
	if err := p.normalize(); err != nil {
		return profile{}, fmt.Errorf("profile %s: %w", path, err)
	}
	return p, nil
}

func (p *profile) normalize() error {
	p.Endpoint = strings.TrimRight(strings.TrimSpace(p.Endpoint), "/")
	if p.Endpoint == "" {
		p.Endpoint = defaultEndpoint
	}
	p.Account = strings.TrimSpace(p.Account)
	p.SecretEnv = strings.TrimSpace(p.SecretEnv)
	if p.SecretEnv == "" {
		p.SecretEnv = defaultSecretEnv
	}
	p.Issuer = strings.TrimSpace(p.Issuer)
	p.Audience = strings.TrimSpace(p.Audience)
	p.ttl = defaultTokenTTL
	if raw := strings.TrimSpace(p.TokenTTL); raw != "" {
		ttl, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid TokenTTL: %w", err)
		}
		if ttl <= 0 {
			return fmt.Errorf("TokenTTL must be positive")
		}
		p.ttl = ttl
	}
	return nil
}
