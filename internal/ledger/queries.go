package ledger

import (
	"context"

	"escrowline/internal/domain"
	"escrowline/internal/repo"
)

// Read-side accessors. Reads never take the per-project locks; a reader
// observes either the state before a concurrent mutation or after it,
// never a partial write.

func (l Ledger) GetProject(ctx context.Context, projectID int64) (domain.Project, error) {
	return l.Repo.GetProject(ctx, projectID)
}

func (l Ledger) ListProjects(ctx context.Context, f repo.ProjectFilters) ([]domain.Project, error) {
	return l.Repo.ListProjects(ctx, f)
}

// TotalProjects is the count of projects ever created. Because ids are
// assigned sequentially from zero, it is also the next project id.
func (l Ledger) TotalProjects(ctx context.Context) (int64, error) {
	return l.Repo.CountProjects(ctx)
}

// UserProjects returns the ids of every project an address participates in,
// as client or freelancer, in creation order.
func (l Ledger) UserProjects(ctx context.Context, address string) ([]int64, error) {
	return l.Repo.ListUserProjects(ctx, address)
}

func (l Ledger) GetReputation(ctx context.Context, address string) (domain.Reputation, error) {
	return l.Repo.GetReputation(ctx, address)
}

func (l Ledger) GetSettings(ctx context.Context) (domain.Settings, error) {
	return l.Repo.GetSettings(ctx)
}

func (l Ledger) GetVault(ctx context.Context, projectID int64) (domain.VaultEntry, error) {
	return l.Repo.GetVault(ctx, projectID)
}

func (l Ledger) ListTransfers(ctx context.Context, f repo.TransferFilters) ([]domain.Transfer, error) {
	return l.Repo.ListTransfers(ctx, f)
}

func (l Ledger) AccruedFees(ctx context.Context, token string) (int64, error) {
	return l.Repo.GetFeeAccrual(ctx, token)
}
