package auth

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vyrodovalexey/avauthmw/internal/auth/jwt"
	"github.com/vyrodovalexey/avauthmw/internal/observability"
)

// Config represents authentication gate configuration.
type Config struct {
	// Algorithms is the list of accepted signing algorithms.
	Algorithms []string `yaml:"algorithms,omitempty" json:"algorithms,omitempty"`

	// PublicKeyPEM is an inline PEM-encoded verification key.
	PublicKeyPEM string `yaml:"publicKeyPem,omitempty" json:"publicKeyPem,omitempty"`

	// PublicKeyFile is the path to a PEM-encoded verification key file.
	PublicKeyFile string `yaml:"publicKeyFile,omitempty" json:"publicKeyFile,omitempty"`

	// WatchKeyFile reloads the key file when it changes on disk.
	WatchKeyFile bool `yaml:"watchKeyFile,omitempty" json:"watchKeyFile,omitempty"`

	// JWKSUrl is the URL to fetch verification keys from.
	JWKSUrl string `yaml:"jwksUrl,omitempty" json:"jwksUrl,omitempty"`

	// JWKSCacheTTL is the TTL for the JWKS cache.
	JWKSCacheTTL Duration `yaml:"jwksCacheTTL,omitempty" json:"jwksCacheTTL,omitempty"`

	// ClockSkew is the allowed clock skew for expiration checks.
	ClockSkew Duration `yaml:"clockSkew,omitempty" json:"clockSkew,omitempty"`

	// SessionHeader is the request header recorded as a session hint in
	// the authentication details.
	SessionHeader string `yaml:"sessionHeader,omitempty" json:"sessionHeader,omitempty"`
}

// DefaultConfig returns a default configuration.
func DefaultConfig() *Config {
	return &Config{
		Algorithms:    []string{jwt.AlgRS256, jwt.AlgES256},
		JWKSCacheTTL:  Duration(time.Hour),
		ClockSkew:     0,
		SessionHeader: HeaderXSessionID,
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is required")
	}

	for _, alg := range c.Algorithms {
		if !jwt.SupportedAlgorithm(alg) {
			return fmt.Errorf("invalid algorithm: %s", alg)
		}
	}

	sources := 0
	if c.PublicKeyPEM != "" {
		sources++
	}
	if c.PublicKeyFile != "" {
		sources++
	}
	if c.JWKSUrl != "" {
		sources++
	}
	if sources == 0 {
		return errors.New("a key source is required (publicKeyPem, publicKeyFile, or jwksUrl)")
	}
	if sources > 1 {
		return errors.New("exactly one key source must be configured")
	}

	if c.JWKSCacheTTL < 0 {
		return errors.New("jwksCacheTTL must be non-negative")
	}
	if c.ClockSkew < 0 {
		return errors.New("clockSkew must be non-negative")
	}

	return nil
}

// LoadConfig loads configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// NewKeyProvider builds the key provider selected by the configuration.
func NewKeyProvider(cfg *Config, logger observability.Logger) (jwt.KeyProvider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	switch {
	case cfg.PublicKeyPEM != "":
		return jwt.NewStaticKeyProvider([]byte(cfg.PublicKeyPEM))
	case cfg.PublicKeyFile != "":
		return jwt.NewFileKeyProvider(cfg.PublicKeyFile, jwt.WithFileKeyLogger(logger))
	default:
		return jwt.NewJWKSProvider(cfg.JWKSUrl,
			jwt.WithJWKSCacheTTL(cfg.JWKSCacheTTL.Duration()),
			jwt.WithJWKSLogger(logger),
		)
	}
}
