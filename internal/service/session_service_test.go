package service_test

import (
	"context"
	"testing"

	"notedb/internal/domain"
	"notedb/internal/rollup"
	"notedb/internal/service"
	"notedb/internal/storage"
)

// ─────────────────────────────────────────────────────────────
// SessionService tests
// ─────────────────────────────────────────────────────────────

func TestSessionService_ReloadsAfterExternalWrite(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewMarkdownStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	engine := rollup.NewEngine(rollup.NewCache(store), nil)
	sessions := service.NewSessionService(store, engine, nil, nil)
	dbs := service.NewDatabaseService(store, sessions, nil)

	info, err := dbs.CreateDatabase(ctx, "Tasks", []domain.ColumnDef{{Name: "Name", Type: domain.ColTypeText}})
	if err != nil {
		t.Fatal(err)
	}

	sess, err := sessions.Get(ctx, info.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if n := len(sess.Rows()); n != 0 {
		t.Fatalf("expected empty session, got %d rows", n)
	}

	if _, err := dbs.CreateRow(ctx, info.ID, nil, nil); err != nil {
		t.Fatal(err)
	}

	again, err := sessions.Get(ctx, info.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if again != sess {
		t.Error("expected the same session to be reused")
	}
	if n := len(again.Rows()); n != 1 {
		t.Errorf("expected reload to pick up 1 row, got %d", n)
	}
}

func TestSessionService_DeleteDropsSession(t *testing.T) {
	ctx := context.Background()
	store, _ := storage.NewMarkdownStore(t.TempDir())
	sessions := service.NewSessionService(store, nil, nil, nil)
	dbs := service.NewDatabaseService(store, sessions, nil)

	info, err := dbs.CreateDatabase(ctx, "Tasks", nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := sessions.Get(ctx, info.ID); err != nil {
		t.Fatal(err)
	}
	if err := dbs.DeleteDatabase(ctx, info.ID); err != nil {
		t.Fatal(err)
	}
	if open := sessions.Open(); len(open) != 0 {
		t.Errorf("expected no open sessions, got %v", open)
	}
	if _, err := sessions.Get(ctx, info.ID); err == nil {
		t.Error("expected Get on a deleted database to fail")
	}
}
