package app

import (
	"strings"
	"testing"

	"notedb/internal/dbclient"
	"notedb/internal/secret"
)

func TestResolveConnections(t *testing.T) {
	conns := map[string]dbclient.Connection{
		"warehouse": {Driver: dbclient.DriverPostgres, Host: "db", PasswordKey: "warehouse-pw"},
		"local":     {Driver: dbclient.DriverSQLite, Host: "/tmp/x.db"},
	}
	store := secret.EnvStore{Env: map[string]string{"NOTEDB_WAREHOUSE_PW": "hunter2"}}

	got, err := resolveConnections(conns, store)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got["warehouse"].Password != "hunter2" {
		t.Errorf("warehouse password = %q", got["warehouse"].Password)
	}
	if got["local"].Password != "" {
		t.Errorf("local password = %q, want empty", got["local"].Password)
	}
	if conns["warehouse"].Password != "" {
		t.Error("input map was modified")
	}
}

func TestResolveConnections_MissingSecret(t *testing.T) {
	conns := map[string]dbclient.Connection{
		"warehouse": {Driver: dbclient.DriverPostgres, PasswordKey: "warehouse-pw"},
	}
	_, err := resolveConnections(conns, secret.EnvStore{Env: map[string]string{}})
	if err == nil || !strings.Contains(err.Error(), "NOTEDB_WAREHOUSE_PW") {
		t.Fatalf("err = %v", err)
	}
}
