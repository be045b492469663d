package secret

import "os"

// SecretStore looks up sensitive values such as database passwords. The
// default implementation uses the macOS Keychain, with the environment as
// a fallback.
type SecretStore interface {
	// Get retrieves the secret value for the given key.
	// Returns empty slice and nil error if key does not exist.
	Get(key string) ([]byte, error)
}

// EnvStore reads secrets from environment variables. Keys are upper-cased
// with dashes and dots turned into underscores and prefixed with NOTEDB_,
// so "prod-db" reads NOTEDB_PROD_DB.
type EnvStore struct {
	// Env overrides the process environment when non-nil.
	Env map[string]string
}

func (e EnvStore) Get(key string) ([]byte, error) {
	name := EnvName(key)
	var v string
	if e.Env != nil {
		v = e.Env[name]
	} else {
		v = os.Getenv(name)
	}
	if v == "" {
		return nil, nil
	}
	return []byte(v), nil
}

// EnvName is the variable EnvStore reads for key.
func EnvName(key string) string {
	b := []byte("NOTEDB_")
	for i := 0; i < len(key); i++ {
		c := key[i]
		switch {
		case c >= 'a' && c <= 'z':
			c -= 'a' - 'A'
		case c == '-' || c == '.' || c == ' ':
			c = '_'
		}
		b = append(b, c)
	}
	return string(b)
}

// Chain returns the first non-empty value found in stores, in order.
type Chain []SecretStore

func (c Chain) Get(key string) ([]byte, error) {
	for _, s := range c {
		v, err := s.Get(key)
		if err != nil {
			return nil, err
		}
		if len(v) > 0 {
			return v, nil
		}
	}
	return nil, nil
}

// Default is the keychain on macOS followed by the environment.
func Default(env map[string]string) SecretStore {
	if keychainAvailable() {
		return Chain{NewKeychainStore(), EnvStore{Env: env}}
	}
	return EnvStore{Env: env}
}
