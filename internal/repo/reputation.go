package repo

import (
	"context"
	"database/sql"

	"escrowline/internal/domain"
)

// GetReputation returns the stored record, or the zero-valued record for
// addresses with no history.
func (r Repo) GetReputation(ctx context.Context, address string) (domain.Reputation, error) {
	return scanReputation(ctx, r.DB.QueryRowContext, address)
}

func (r Repo) GetReputationTx(ctx context.Context, tx *sql.Tx, address string) (domain.Reputation, error) {
	return scanReputation(ctx, tx.QueryRowContext, address)
}

func scanReputation(ctx context.Context, queryRow func(context.Context, string, ...any) *sql.Row, address string) (domain.Reputation, error) {
	rep := domain.Reputation{Address: address}
	err := queryRow(ctx, `SELECT completed_projects,total_earnings,karma,total_disputes,success_rate FROM reputation WHERE address=?`, address).
		Scan(&rep.CompletedProjects, &rep.TotalEarnings, &rep.Karma, &rep.TotalDisputes, &rep.SuccessRate)
	if err == sql.ErrNoRows {
		return rep, nil
	}
	return rep, err
}

func (r Repo) UpsertReputationTx(ctx context.Context, tx *sql.Tx, rep domain.Reputation) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO reputation(address,completed_projects,total_earnings,karma,total_disputes,success_rate) VALUES (?,?,?,?,?,?)
ON CONFLICT(address) DO UPDATE SET completed_projects=excluded.completed_projects, total_earnings=excluded.total_earnings, karma=excluded.karma, total_disputes=excluded.total_disputes, success_rate=excluded.success_rate`,
		rep.Address, rep.CompletedProjects, rep.TotalEarnings, rep.Karma, rep.TotalDisputes, rep.SuccessRate)
	return err
}
