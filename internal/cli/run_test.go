package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"notedb/internal/domain"
	"notedb/internal/storage"
)

func seedTasks(t *testing.T, dir string) {
	t.Helper()
	ctx := context.Background()

	store, err := storage.NewMarkdownStore(dir)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	info, err := store.CreateDatabase(ctx, "Tasks", []domain.ColumnDef{
		{ID: "name", Name: "Name", Type: domain.ColTypeText},
		{ID: "status", Name: "Status", Type: domain.ColTypeSelect, Options: []string{"todo", "done"}},
		{ID: "due", Name: "Due", Type: domain.ColTypeDate},
	})
	if err != nil {
		t.Fatalf("create database: %v", err)
	}
	for _, fields := range []map[string]domain.FieldValue{
		{"name": domain.TextValue("Write docs"), "status": domain.TextValue("todo"), "due": domain.TextValue("2026-03-05")},
		{"name": domain.TextValue("Ship"), "status": domain.TextValue("done"), "due": domain.TextValue("2026-03-20")},
		{"name": domain.TextValue("Someday")},
	} {
		if _, err := store.CreateRow(ctx, info.ID, fields, nil); err != nil {
			t.Fatalf("create row: %v", err)
		}
	}
}

func TestRun(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		args       []string
		wantExit   int
		wantStdout []string
		wantStderr []string
		notStdout  []string
	}{
		{
			name:       "no command prints usage",
			args:       nil,
			wantStdout: []string{"Usage: notedb", "Commands:", "render --db <id>"},
		},
		{
			name:       "lists databases",
			args:       []string{"databases"},
			wantStdout: []string{"Tasks (", "3 rows, 3 columns"},
		},
		{
			name:       "renders table by name",
			args:       []string{"render", "--db", "tasks"},
			wantStdout: []string{"Tasks (table), 3 rows", "Name", "Status", "Write docs", "row-3"},
		},
		{
			name:       "renders board lanes in declared order",
			args:       []string{"render", "--db", "Tasks", "--mode", "board"},
			wantStdout: []string{"## todo (1)", "## done (1)", "- Ship  [row-2]", "(1)"},
		},
		{
			name:       "renders calendar month",
			args:       []string{"render", "--db", "Tasks", "--mode", "calendar", "--month", "2026-03"},
			wantStdout: []string{"2026-03", "2026-03-05  Write docs", "2026-03-20  Ship", "no date (1)", "Someday"},
		},
		{
			name:       "json output",
			args:       []string{"databases", "--json"},
			wantStdout: []string{`"name": "Tasks"`, `"rowCount": 3`},
		},
		{
			name:       "print config",
			args:       []string{"print-config"},
			wantStdout: []string{"backend: markdown"},
		},
		{
			name:       "render requires db",
			args:       []string{"render"},
			wantExit:   1,
			wantStderr: []string{"--db is required"},
		},
		{
			name:       "unknown database",
			args:       []string{"render", "--db", "Nope"},
			wantExit:   1,
			wantStderr: []string{"database not found"},
		},
		{
			name:       "bad month",
			args:       []string{"render", "--db", "Tasks", "--month", "March"},
			wantExit:   1,
			wantStderr: []string{"parse month"},
		},
		{
			name:       "unknown import job",
			args:       []string{"import", "missing"},
			wantExit:   1,
			wantStderr: []string{"missing"},
		},
		{
			name:       "import needs a job",
			args:       []string{"import"},
			wantExit:   1,
			wantStderr: []string{"wrong number of arguments"},
		},
		{
			name:       "no jobs configured",
			args:       []string{"imports"},
			wantStdout: []string{"no import jobs configured"},
		},
		{
			name:       "unknown command",
			args:       []string{"frobnicate"},
			wantExit:   1,
			wantStderr: []string{"unknown command: frobnicate"},
		},
		{
			name:       "command help",
			args:       []string{"render", "--help"},
			wantStdout: []string{"Usage: notedb render", "--month"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			seedTasks(t, dir)

			args := append([]string{"notedb", "-C", dir, "--backend", "markdown", "--data-dir", dir}, tt.args...)
			env := map[string]string{"HOME": dir, "XDG_CONFIG_HOME": dir}

			var stdout, stderr bytes.Buffer
			exit := Run(&stdout, &stderr, args, env, nil)

			if exit != tt.wantExit {
				t.Fatalf("exit = %d, want %d\nstdout: %s\nstderr: %s", exit, tt.wantExit, stdout.String(), stderr.String())
			}
			for _, want := range tt.wantStdout {
				if !strings.Contains(stdout.String(), want) {
					t.Errorf("stdout missing %q\nstdout: %s", want, stdout.String())
				}
			}
			for _, want := range tt.wantStderr {
				if !strings.Contains(stderr.String(), want) {
					t.Errorf("stderr missing %q\nstderr: %s", want, stderr.String())
				}
			}
			for _, not := range tt.notStdout {
				if strings.Contains(stdout.String(), not) {
					t.Errorf("stdout should not contain %q\nstdout: %s", not, stdout.String())
				}
			}
		})
	}
}

func TestRun_InvalidBackend(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	var stdout, stderr bytes.Buffer
	exit := Run(&stdout, &stderr, []string{"notedb", "-C", dir, "--backend", "redis", "databases"},
		map[string]string{"HOME": dir}, nil)

	if exit != 1 {
		t.Fatalf("exit = %d, want 1", exit)
	}
	if !strings.Contains(stderr.String(), "unknown backend") {
		t.Errorf("stderr = %q", stderr.String())
	}
}
