package app

// ─────────────────────────────────────────────────────────────
// Import Source Bridge
// ─────────────────────────────────────────────────────────────
//
// The etl/sources package reaches external databases through a
// ConnectionResolver so it never imports config. This file hands it the
// connections named in the config file, with passwords resolved from the
// secret store.

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"notedb/internal/config"
	"notedb/internal/dbclient"
	"notedb/internal/etl/sources"
	"notedb/internal/secret"
)

// setupImportSources wires the database sources to cfg's connections.
func setupImportSources(cfg config.Config, secrets secret.SecretStore, log *zap.SugaredLogger) error {
	conns, err := resolveConnections(cfg.ConnectionMap(), secrets)
	if err != nil {
		return err
	}
	sources.SetConnectionResolver(sources.Connections(conns))
	sources.SetLogger(log.Named("dbclient"))

	if len(conns) > 0 {
		names := make([]string, 0, len(conns))
		for name := range conns {
			names = append(names, name)
		}
		sort.Strings(names)
		log.Debugw("import connections", "names", names)
	}
	return nil
}

// resolveConnections copies conns, filling Password for every connection
// that names a secret.
func resolveConnections(conns map[string]dbclient.Connection, secrets secret.SecretStore) (map[string]dbclient.Connection, error) {
	out := make(map[string]dbclient.Connection, len(conns))
	for name, c := range conns {
		if c.PasswordKey != "" {
			pw, err := secrets.Get(c.PasswordKey)
			if err != nil {
				return nil, fmt.Errorf("connection %s: %w", name, err)
			}
			if len(pw) == 0 {
				return nil, fmt.Errorf("connection %s: secret %q not found (set %s)", name, c.PasswordKey, secret.EnvName(c.PasswordKey))
			}
			c.Password = string(pw)
		}
		out[name] = c
	}
	return out, nil
}
