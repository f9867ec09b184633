package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"escrowline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const projectColumns = `id,client,freelancer,title,amount,payment_token,deadline,status,created_at,completed_at,dispute_status,dispute_reason,dispute_resolution,deliverable_uri`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (domain.Project, error) {
	var p domain.Project
	var freelancer, token, completedAt, reason, resolution, uri sql.NullString
	err := row.Scan(&p.ID, &p.Client, &freelancer, &p.Title, &p.Amount, &token, &p.Deadline,
		&p.Status, &p.CreatedAt, &completedAt, &p.DisputeStatus, &reason, &resolution, &uri)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if freelancer.Valid {
		p.Freelancer = freelancer.String
	}
	if token.Valid {
		p.PaymentToken = token.String
	}
	if completedAt.Valid {
		p.CompletedAt = &completedAt.String
	}
	if reason.Valid {
		p.DisputeReason = reason.String
	}
	if resolution.Valid {
		p.DisputeResolution = resolution.String
	}
	if uri.Valid {
		p.DeliverableURI = uri.String
	}
	return p, nil
}

// NextProjectID returns the next sequential id. Project creation is
// serialized by the ledger, so MAX(id)+1 cannot race.
func (r Repo) NextProjectID(ctx context.Context, tx *sql.Tx) (int64, error) {
	var next int64
	err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(id)+1, 0) FROM projects`).Scan(&next)
	return next, err
}

func (r Repo) InsertProjectTx(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO projects(`+projectColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.Client, nullable(p.Freelancer), p.Title, p.Amount, nullable(p.PaymentToken), p.Deadline,
		p.Status, p.CreatedAt, nullableStringPtr(p.CompletedAt), p.DisputeStatus,
		nullable(p.DisputeReason), nullable(p.DisputeResolution), nullable(p.DeliverableURI))
	return err
}

func (r Repo) UpdateProjectTx(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	res, err := tx.ExecContext(ctx, `UPDATE projects SET freelancer=?, status=?, completed_at=?, dispute_status=?, dispute_reason=?, dispute_resolution=?, deliverable_uri=? WHERE id=?`,
		nullable(p.Freelancer), p.Status, nullableStringPtr(p.CompletedAt), p.DisputeStatus,
		nullable(p.DisputeReason), nullable(p.DisputeResolution), nullable(p.DeliverableURI), p.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetProject(ctx context.Context, id int64) (domain.Project, error) {
	return scanProject(r.DB.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=?`, id))
}

func (r Repo) GetProjectTx(ctx context.Context, tx *sql.Tx, id int64) (domain.Project, error) {
	return scanProject(tx.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=?`, id))
}

func (r Repo) CountProjects(ctx context.Context) (int64, error) {
	var n int64
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects`).Scan(&n)
	return n, err
}

type ProjectFilters struct {
	Status  string
	Client  string
	Limit   int
	AfterID int64
}

func (r Repo) ListProjects(ctx context.Context, f ProjectFilters) ([]domain.Project, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Client != "" {
		clauses = append(clauses, "client=?")
		args = append(args, f.Client)
	}
	if f.AfterID > 0 {
		clauses = append(clauses, "id>?")
		args = append(args, f.AfterID)
	}
	query := `SELECT ` + projectColumns + ` FROM projects WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY id ASC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) AddUserProjectTx(ctx context.Context, tx *sql.Tx, address string, projectID int64) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO user_projects(address, project_id) VALUES (?,?)`, address, projectID)
	return err
}

func (r Repo) ListUserProjects(ctx context.Context, address string) ([]int64, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT project_id FROM user_projects WHERE address=? ORDER BY project_id ASC`, address)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// --- settings ---

func (r Repo) SeedSettingsTx(ctx context.Context, tx *sql.Tx, s domain.Settings) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO settings(id,owner,treasury,fee_bps) VALUES (1,?,?,?)
ON CONFLICT(id) DO NOTHING`, s.Owner, s.Treasury, s.FeeBps)
	return err
}

func scanSettings(row rowScanner) (domain.Settings, error) {
	var s domain.Settings
	err := row.Scan(&s.Owner, &s.Treasury, &s.FeeBps)
	if err == sql.ErrNoRows {
		return s, fmt.Errorf("settings not seeded; run el init: %w", ErrNotFound)
	}
	return s, err
}

func (r Repo) GetSettings(ctx context.Context) (domain.Settings, error) {
	return scanSettings(r.DB.QueryRowContext(ctx, `SELECT owner,treasury,fee_bps FROM settings WHERE id=1`))
}

func (r Repo) GetSettingsTx(ctx context.Context, tx *sql.Tx) (domain.Settings, error) {
	return scanSettings(tx.QueryRowContext(ctx, `SELECT owner,treasury,fee_bps FROM settings WHERE id=1`))
}

func (r Repo) UpdateFeeTx(ctx context.Context, tx *sql.Tx, feeBps int64) error {
	res, err := tx.ExecContext(ctx, `UPDATE settings SET fee_bps=? WHERE id=1`, feeBps)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) UpdateTreasuryTx(ctx context.Context, tx *sql.Tx, treasury string) error {
	res, err := tx.ExecContext(ctx, `UPDATE settings SET treasury=? WHERE id=1`, treasury)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- events ---

func (r Repo) LatestEvents(ctx context.Context, limit int, projectID *int64, evtType string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if projectID != nil {
		clauses = append(clauses, "project_id=?")
		args = append(args, *projectID)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	query := fmt.Sprintf(`SELECT id,ts,type,project_id,entity_kind,entity_id,caller,payload_json FROM events WHERE %s ORDER BY id DESC LIMIT ?`, strings.Join(clauses, " AND "))
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var pid sql.NullInt64
		var entityID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &pid, &e.EntityKind, &entityID, &e.Caller, &payload); err != nil {
			return nil, err
		}
		if pid.Valid {
			e.ProjectID = &pid.Int64
		}
		if entityID.Valid {
			e.EntityID = entityID.String
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}
