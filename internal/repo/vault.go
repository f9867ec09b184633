package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"escrowline/internal/domain"
)

// ErrAlreadyReleased guards the vault's debit-exactly-once invariant at the
// storage layer.
var ErrAlreadyReleased = errors.New("vault entry already released")

func (r Repo) InsertVaultTx(ctx context.Context, tx *sql.Tx, v domain.VaultEntry) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO vault(project_id,token,amount,locked_at) VALUES (?,?,?,?)`,
		v.ProjectID, nullable(v.Token), v.Amount, v.LockedAt)
	return err
}

func scanVault(row rowScanner) (domain.VaultEntry, error) {
	var v domain.VaultEntry
	var token, releasedAt, recipient sql.NullString
	err := row.Scan(&v.ProjectID, &token, &v.Amount, &v.LockedAt, &releasedAt, &recipient)
	if err == sql.ErrNoRows {
		return v, ErrNotFound
	}
	if err != nil {
		return v, err
	}
	if token.Valid {
		v.Token = token.String
	}
	if releasedAt.Valid {
		v.ReleasedAt = &releasedAt.String
	}
	if recipient.Valid {
		v.Recipient = &recipient.String
	}
	return v, nil
}

func (r Repo) GetVault(ctx context.Context, projectID int64) (domain.VaultEntry, error) {
	return scanVault(r.DB.QueryRowContext(ctx, `SELECT project_id,token,amount,locked_at,released_at,recipient FROM vault WHERE project_id=?`, projectID))
}

func (r Repo) GetVaultTx(ctx context.Context, tx *sql.Tx, projectID int64) (domain.VaultEntry, error) {
	return scanVault(tx.QueryRowContext(ctx, `SELECT project_id,token,amount,locked_at,released_at,recipient FROM vault WHERE project_id=?`, projectID))
}

// MarkVaultReleasedTx debits the locked amount. The released_at IS NULL
// guard makes a double release fail even if a caller bypasses the ledger's
// status checks.
func (r Repo) MarkVaultReleasedTx(ctx context.Context, tx *sql.Tx, projectID int64, recipient, ts string) error {
	res, err := tx.ExecContext(ctx, `UPDATE vault SET released_at=?, recipient=? WHERE project_id=? AND released_at IS NULL`,
		ts, recipient, projectID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAlreadyReleased
	}
	return nil
}

func (r Repo) InsertTransferTx(ctx context.Context, tx *sql.Tx, t domain.Transfer) error {
	var pid any
	if t.ProjectID != nil {
		pid = *t.ProjectID
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO transfers(ts,kind,recipient,token,amount,project_id) VALUES (?,?,?,?,?,?)`,
		t.TS, t.Kind, t.Recipient, nullable(t.Token), t.Amount, pid)
	return err
}

type TransferFilters struct {
	ProjectID *int64
	Recipient string
	Limit     int
}

func (r Repo) ListTransfers(ctx context.Context, f TransferFilters) ([]domain.Transfer, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.ProjectID != nil {
		clauses = append(clauses, "project_id=?")
		args = append(args, *f.ProjectID)
	}
	if f.Recipient != "" {
		clauses = append(clauses, "recipient=?")
		args = append(args, f.Recipient)
	}
	query := `SELECT id,ts,kind,recipient,token,amount,project_id FROM transfers WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY id ASC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Transfer
	for rows.Next() {
		var t domain.Transfer
		var token sql.NullString
		var pid sql.NullInt64
		if err := rows.Scan(&t.ID, &t.TS, &t.Kind, &t.Recipient, &token, &t.Amount, &pid); err != nil {
			return nil, err
		}
		if token.Valid {
			t.Token = token.String
		}
		if pid.Valid {
			t.ProjectID = &pid.Int64
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// --- fee accruals (token-denominated fees held until withdrawal) ---

func (r Repo) AddFeeAccrualTx(ctx context.Context, tx *sql.Tx, token string, amount int64) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO fee_accruals(token, amount) VALUES (?,?)
ON CONFLICT(token) DO UPDATE SET amount = amount + excluded.amount`, token, amount)
	return err
}

func (r Repo) GetFeeAccrual(ctx context.Context, token string) (int64, error) {
	var amount int64
	err := r.DB.QueryRowContext(ctx, `SELECT amount FROM fee_accruals WHERE token=?`, token).Scan(&amount)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return amount, err
}

// TakeFeeAccrualTx zeroes the accrual for token and returns what was held.
func (r Repo) TakeFeeAccrualTx(ctx context.Context, tx *sql.Tx, token string) (int64, error) {
	var amount int64
	err := tx.QueryRowContext(ctx, `SELECT amount FROM fee_accruals WHERE token=?`, token).Scan(&amount)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if amount == 0 {
		return 0, nil
	}
	_, err = tx.ExecContext(ctx, `UPDATE fee_accruals SET amount=0 WHERE token=?`, token)
	return amount, err
}
