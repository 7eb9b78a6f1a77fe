package history

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/ssabihuddin/modelgate/internal/infra/sqlite"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sqlite.NewDB(":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := sqlite.MigrateUp(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	return db
}

func TestAppendAndLoadAll_PreservesOrder(t *testing.T) {
	t.Parallel()

	s := NewStore(setupTestDB(t))
	ctx := context.Background()

	turns := []struct {
		role, content string
	}{
		{RoleUser, "hello"},
		{RoleSystem, "hi, how can I help?"},
		{RoleUser, "what is 2+2"},
		{RoleSystem, "4"},
	}
	for _, turn := range turns {
		if err := s.Append(ctx, "phi3", 1024, turn.role, turn.content); err != nil {
			t.Fatalf("Append error = %v", err)
		}
	}

	records, err := s.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll error = %v", err)
	}
	if len(records) != len(turns) {
		t.Fatalf("len = %d; want %d", len(records), len(turns))
	}
	for i, r := range records {
		if r.Role != turns[i].role || r.Content != turns[i].content {
			t.Errorf("record %d = (%s, %q); want (%s, %q)", i, r.Role, r.Content, turns[i].role, turns[i].content)
		}
		if r.Model != "phi3" || r.MaxTokens != 1024 {
			t.Errorf("record %d bookkeeping = (%s, %d); want (phi3, 1024)", i, r.Model, r.MaxTokens)
		}
	}
}

func TestAppend_RejectsUnknownRole(t *testing.T) {
	t.Parallel()

	s := NewStore(setupTestDB(t))

	err := s.Append(context.Background(), "phi3", 1024, "assistant", "nope")
	if !errors.Is(err, ErrStorage) {
		t.Fatalf("Append error = %v; want ErrStorage from role CHECK", err)
	}
}

func TestClear_EmptiesTranscript(t *testing.T) {
	t.Parallel()

	s := NewStore(setupTestDB(t))
	ctx := context.Background()

	if err := s.Append(ctx, "phi3", 1024, RoleUser, "hello"); err != nil {
		t.Fatalf("Append error = %v", err)
	}
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear error = %v", err)
	}

	records, err := s.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll error = %v", err)
	}
	if len(records) != 0 {
		t.Errorf("len after Clear = %d; want 0", len(records))
	}
}

func TestLoadAll_EmptyDatabase(t *testing.T) {
	t.Parallel()

	s := NewStore(setupTestDB(t))
	records, err := s.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("LoadAll error = %v", err)
	}
	if len(records) != 0 {
		t.Errorf("len = %d; want 0", len(records))
	}
}

func TestAppend_ClosedDB_ReturnsErrStorage(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	s := NewStore(db)
	db.Close()

	if err := s.Append(context.Background(), "phi3", 1024, RoleUser, "x"); !errors.Is(err, ErrStorage) {
		t.Fatalf("Append error = %v; want ErrStorage", err)
	}
}
