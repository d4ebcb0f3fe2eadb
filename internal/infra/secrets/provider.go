// Package secrets supplies API credentials to the signing path.
package secrets

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/coachpo/krakenbridge/errs"
)

const (
	// DefaultKeyEnv names the environment variable holding the API key.
	DefaultKeyEnv = "KRAKEN_API_KEY"
	// DefaultSecretEnv names the environment variable holding the base64 API secret.
	DefaultSecretEnv = "KRAKEN_API_SECRET"
)

// Credentials is an API key and its decoded signing secret.
type Credentials struct {
	Key    string
	Secret []byte
}

// Wipe zeroes the secret bytes in place.
func (c *Credentials) Wipe() {
	for i := range c.Secret {
		c.Secret[i] = 0
	}
	c.Secret = nil
}

// String redacts the secret.
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{Key: %q, Secret: <redacted %d bytes>}", c.Key, len(c.Secret))
}

// GoString redacts the secret for %#v as well.
func (c Credentials) GoString() string { return c.String() }

// Provider produces credentials on demand.
type Provider interface {
	Credentials(ctx context.Context) (Credentials, error)
}

// StaticProvider returns fixed credentials.
type StaticProvider struct {
	creds Credentials
}

// NewStatic decodes a base64 secret and returns a provider serving it.
func NewStatic(key, secretB64 string) (*StaticProvider, error) {
	creds, err := decode(key, secretB64)
	if err != nil {
		return nil, err
	}
	return &StaticProvider{creds: creds}, nil
}

// Credentials returns a copy so callers may wipe their copy safely.
func (p *StaticProvider) Credentials(context.Context) (Credentials, error) {
	return Credentials{Key: p.creds.Key, Secret: append([]byte(nil), p.creds.Secret...)}, nil
}

// EnvProvider reads credentials from environment variables, optionally seeded from .env files.
type EnvProvider struct {
	KeyVar    string
	SecretVar string
}

// NewEnv loads the given .env files (missing files are ignored) and returns a provider
// reading keyVar and secretVar. Empty names fall back to the defaults.
func NewEnv(keyVar, secretVar string, dotenvFiles ...string) (*EnvProvider, error) {
	for _, file := range dotenvFiles {
		file = strings.TrimSpace(file)
		if file == "" {
			continue
		}
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return nil, fmt.Errorf("load dotenv %s: %w", file, err)
		}
	}
	if strings.TrimSpace(keyVar) == "" {
		keyVar = DefaultKeyEnv
	}
	if strings.TrimSpace(secretVar) == "" {
		secretVar = DefaultSecretEnv
	}
	return &EnvProvider{KeyVar: keyVar, SecretVar: secretVar}, nil
}

// Credentials looks the variables up on every call so rotated values are picked up.
func (p *EnvProvider) Credentials(context.Context) (Credentials, error) {
	key, ok := os.LookupEnv(p.KeyVar)
	if !ok {
		return Credentials{}, errs.New("", errs.CodeAuth, errs.WithMessage(p.KeyVar+" not set"))
	}
	secret, ok := os.LookupEnv(p.SecretVar)
	if !ok {
		return Credentials{}, errs.New("", errs.CodeAuth, errs.WithMessage(p.SecretVar+" not set"))
	}
	return decode(key, secret)
}

func decode(key, secretB64 string) (Credentials, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Credentials{}, errs.New("", errs.CodeAuth, errs.WithMessage("api key empty"))
	}
	secret, err := base64.StdEncoding.DecodeString(strings.TrimSpace(secretB64))
	if err != nil {
		return Credentials{}, errs.New("", errs.CodeAuth, errs.WithMessage("api secret is not valid base64"), errs.WithCause(err))
	}
	if len(secret) == 0 {
		return Credentials{}, errs.New("", errs.CodeAuth, errs.WithMessage("api secret empty"))
	}
	return Credentials{Key: key, Secret: secret}, nil
}
