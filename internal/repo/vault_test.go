package repo_test

import (
	"context"
	"errors"
	"testing"

	"escrowline/internal/db"
	"escrowline/internal/domain"
	"escrowline/internal/migrate"
	"escrowline/internal/repo"
)

func newTestRepo(t *testing.T) repo.Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo.Repo{DB: conn}
}

func seedProject(t *testing.T, r repo.Repo, id int64) {
	t.Helper()
	tx, err := r.DB.BeginTx(context.Background(), nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()
	p := domain.Project{
		ID:            id,
		Client:        "0xalice",
		Title:         "test",
		Amount:        1000,
		Deadline:      "2024-02-01T00:00:00Z",
		Status:        domain.StatusOpen,
		CreatedAt:     "2024-01-01T00:00:00Z",
		DisputeStatus: domain.DisputeNone,
	}
	if err := r.InsertProjectTx(context.Background(), tx, p); err != nil {
		t.Fatalf("insert project: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

// The released_at IS NULL guard must make a second release fail even when
// the caller skips every status check.
func TestVaultReleasesExactlyOnce(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	seedProject(t, r, 0)

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := r.InsertVaultTx(ctx, tx, domain.VaultEntry{
		ProjectID: 0, Amount: 1000, LockedAt: "2024-01-01T00:00:00Z",
	}); err != nil {
		t.Fatalf("insert vault: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	tx, err = r.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := r.MarkVaultReleasedTx(ctx, tx, 0, "0xbob", "2024-01-02T00:00:00Z"); err != nil {
		t.Fatalf("first release: %v", err)
	}
	if err := r.MarkVaultReleasedTx(ctx, tx, 0, "0xmallory", "2024-01-03T00:00:00Z"); !errors.Is(err, repo.ErrAlreadyReleased) {
		t.Fatalf("second release err = %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	v, err := r.GetVault(ctx, 0)
	if err != nil {
		t.Fatalf("get vault: %v", err)
	}
	if v.Recipient == nil || *v.Recipient != "0xbob" {
		t.Fatalf("recipient = %v", v.Recipient)
	}
}

func TestFeeAccrualUpsert(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	for _, amount := range []int64{40, 60} {
		tx, err := r.DB.BeginTx(ctx, nil)
		if err != nil {
			t.Fatalf("begin: %v", err)
		}
		if err := r.AddFeeAccrualTx(ctx, tx, "USDX", amount); err != nil {
			t.Fatalf("accrue: %v", err)
		}
		if err := tx.Commit(); err != nil {
			t.Fatalf("commit: %v", err)
		}
	}
	got, err := r.GetFeeAccrual(ctx, "USDX")
	if err != nil || got != 100 {
		t.Fatalf("accrued = %d, err = %v", got, err)
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	taken, err := r.TakeFeeAccrualTx(ctx, tx, "USDX")
	if err != nil || taken != 100 {
		t.Fatalf("taken = %d, err = %v", taken, err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	got, err = r.GetFeeAccrual(ctx, "USDX")
	if err != nil || got != 0 {
		t.Fatalf("after take = %d, err = %v", got, err)
	}
}
