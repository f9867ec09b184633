package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"escrowline/internal/config"
	"escrowline/internal/domain"
	"escrowline/internal/events"
	"escrowline/internal/metrics"
	"escrowline/internal/repo"
)

// Ledger is the authorization and transition gate for every mutating
// operation. It serializes work per project, applies effects in one SQL
// transaction, and writes transfers only after all internal state has been
// updated.
type Ledger struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time

	locks *projectLocks
}

func New(db *sql.DB, cfg *config.Config) Ledger {
	return Ledger{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
		locks:  newProjectLocks(),
	}
}

func (l Ledger) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

// Init seeds the settings row from config. Safe to call repeatedly; an
// existing row is left untouched (the owner is fixed at first init).
func (l Ledger) Init(ctx context.Context) (domain.Settings, error) {
	if l.Config == nil {
		return domain.Settings{}, errors.New("config not loaded")
	}
	unlock := l.locks.lockAdmin()
	defer unlock()
	tx, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Settings{}, err
	}
	defer tx.Rollback()
	seed := domain.Settings{
		Owner:    l.Config.Ledger.Owner,
		Treasury: l.Config.Ledger.Treasury,
		FeeBps:   l.Config.Ledger.FeeBps,
	}
	if err := l.Repo.SeedSettingsTx(ctx, tx, seed); err != nil {
		return domain.Settings{}, fmt.Errorf("seed settings: %w", err)
	}
	s, err := l.Repo.GetSettingsTx(ctx, tx)
	if err != nil {
		return domain.Settings{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Settings{}, err
	}
	return s, nil
}

// CreateProjectOptions are parameters for creating a project.
type CreateProjectOptions struct {
	Caller       string
	Title        string
	Amount       int64
	PaymentToken string
	Deadline     string
}

func (l Ledger) CreateProject(ctx context.Context, opts CreateProjectOptions) (domain.Project, error) {
	if l.Config == nil {
		return domain.Project{}, errors.New("config not loaded")
	}
	if opts.Caller == "" {
		return domain.Project{}, errors.New("caller is required")
	}
	if strings.TrimSpace(opts.Title) == "" {
		return domain.Project{}, errors.New("title is required")
	}
	if opts.Amount <= 0 {
		return domain.Project{}, fmt.Errorf("%w: amount must be positive", ErrInvalidAmount)
	}
	if !l.Config.KnownToken(opts.PaymentToken) {
		return domain.Project{}, fmt.Errorf("%w: %s", ErrUnknownPaymentToken, opts.PaymentToken)
	}
	now := l.now().UTC()
	deadline, err := time.Parse(time.RFC3339, opts.Deadline)
	if err != nil {
		return domain.Project{}, fmt.Errorf("%w: %v", ErrInvalidDeadline, err)
	}
	if !deadline.After(now) {
		return domain.Project{}, ErrInvalidDeadline
	}

	unlock := l.locks.lockCreate()
	defer unlock()
	tx, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	id, err := l.Repo.NextProjectID(ctx, tx)
	if err != nil {
		return domain.Project{}, err
	}
	p := domain.Project{
		ID:            id,
		Client:        opts.Caller,
		Title:         opts.Title,
		Amount:        opts.Amount,
		PaymentToken:  opts.PaymentToken,
		Deadline:      deadline.UTC().Format(time.RFC3339),
		Status:        domain.StatusOpen,
		CreatedAt:     now.Format(time.RFC3339),
		DisputeStatus: domain.DisputeNone,
	}
	if err := l.Repo.InsertProjectTx(ctx, tx, p); err != nil {
		return domain.Project{}, fmt.Errorf("insert project: %w", err)
	}
	if err := l.Repo.AddUserProjectTx(ctx, tx, p.Client, p.ID); err != nil {
		return domain.Project{}, err
	}
	if err := l.Events.Append(ctx, tx, events.ProjectCreated, &p.ID, "project", projectEntityID(p.ID), opts.Caller, events.EventPayload{
		"client": p.Client, "title": p.Title, "amount": p.Amount, "payment_token": p.PaymentToken,
	}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	metrics.ProjectsCreated.Inc()
	return p, nil
}

func (l Ledger) AcceptProject(ctx context.Context, projectID int64, caller string) (domain.Project, error) {
	unlock := l.locks.lock(projectID)
	defer unlock()
	tx, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	p, err := l.Repo.GetProjectTx(ctx, tx, projectID)
	if err != nil {
		return p, err
	}
	if caller == p.Client {
		return p, fmt.Errorf("%w: client cannot accept own project", ErrUnauthorized)
	}
	if p.Status != domain.StatusOpen {
		return p, transitionError("accept", p.Status)
	}
	if p.Freelancer != "" {
		return p, fmt.Errorf("%w: project already accepted", ErrInvalidStateTransition)
	}
	p.Freelancer = caller
	if err := l.Repo.UpdateProjectTx(ctx, tx, p); err != nil {
		return p, err
	}
	if err := l.Repo.AddUserProjectTx(ctx, tx, caller, p.ID); err != nil {
		return p, err
	}
	if err := l.Events.Append(ctx, tx, events.ProjectAccepted, &p.ID, "project", projectEntityID(p.ID), caller, events.EventPayload{
		"freelancer": caller,
	}); err != nil {
		return p, err
	}
	if err := tx.Commit(); err != nil {
		return p, err
	}
	return p, nil
}

// FundProject locks the client's payment in the vault. The paid value must
// equal the project amount exactly; over- and under-payment are both
// rejected with no partial-funding state.
func (l Ledger) FundProject(ctx context.Context, projectID int64, caller string, paid int64) (domain.Project, error) {
	unlock := l.locks.lock(projectID)
	defer unlock()
	tx, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	p, err := l.Repo.GetProjectTx(ctx, tx, projectID)
	if err != nil {
		return p, err
	}
	if caller != p.Client {
		return p, fmt.Errorf("%w: only the client may fund", ErrUnauthorized)
	}
	if p.Status != domain.StatusOpen {
		return p, transitionError("fund", p.Status)
	}
	if p.Freelancer == "" {
		return p, fmt.Errorf("%w: no freelancer assigned", ErrInvalidStateTransition)
	}
	if paid != p.Amount {
		return p, fmt.Errorf("%w: paid %d, expected %d", ErrIncorrectPaymentAmount, paid, p.Amount)
	}
	now := l.now().UTC().Format(time.RFC3339)
	p.Status = domain.StatusFunded
	if err := l.Repo.UpdateProjectTx(ctx, tx, p); err != nil {
		return p, err
	}
	if err := l.Repo.InsertVaultTx(ctx, tx, domain.VaultEntry{
		ProjectID: p.ID,
		Token:     p.PaymentToken,
		Amount:    p.Amount,
		LockedAt:  now,
	}); err != nil {
		return p, err
	}
	if err := l.Events.Append(ctx, tx, events.ProjectFunded, &p.ID, "project", projectEntityID(p.ID), caller, events.EventPayload{
		"amount": p.Amount,
	}); err != nil {
		return p, err
	}
	if err := tx.Commit(); err != nil {
		return p, err
	}
	metrics.FundsLocked.Add(float64(p.Amount))
	return p, nil
}

func (l Ledger) StartWork(ctx context.Context, projectID int64, caller string) (domain.Project, error) {
	unlock := l.locks.lock(projectID)
	defer unlock()
	tx, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	p, err := l.Repo.GetProjectTx(ctx, tx, projectID)
	if err != nil {
		return p, err
	}
	if caller != p.Freelancer {
		return p, fmt.Errorf("%w: only the freelancer may start work", ErrUnauthorized)
	}
	if p.Status != domain.StatusFunded {
		return p, transitionError("start work", p.Status)
	}
	p.Status = domain.StatusInProgress
	if err := l.Repo.UpdateProjectTx(ctx, tx, p); err != nil {
		return p, err
	}
	if err := l.Events.Append(ctx, tx, events.ProjectStarted, &p.ID, "project", projectEntityID(p.ID), caller, nil); err != nil {
		return p, err
	}
	if err := tx.Commit(); err != nil {
		return p, err
	}
	return p, nil
}

func (l Ledger) SubmitWork(ctx context.Context, projectID int64, caller, deliverableURI string) (domain.Project, error) {
	if strings.TrimSpace(deliverableURI) == "" {
		return domain.Project{}, errors.New("deliverable URI is required")
	}
	unlock := l.locks.lock(projectID)
	defer unlock()
	tx, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	p, err := l.Repo.GetProjectTx(ctx, tx, projectID)
	if err != nil {
		return p, err
	}
	if caller != p.Freelancer {
		return p, fmt.Errorf("%w: only the freelancer may submit work", ErrUnauthorized)
	}
	if p.Status != domain.StatusInProgress {
		return p, transitionError("submit work", p.Status)
	}
	p.Status = domain.StatusUnderReview
	p.DeliverableURI = deliverableURI
	if err := l.Repo.UpdateProjectTx(ctx, tx, p); err != nil {
		return p, err
	}
	if err := l.Events.Append(ctx, tx, events.WorkSubmitted, &p.ID, "project", projectEntityID(p.ID), caller, events.EventPayload{
		"deliverable_uri": deliverableURI,
	}); err != nil {
		return p, err
	}
	if err := tx.Commit(); err != nil {
		return p, err
	}
	return p, nil
}

// ApproveCompletion releases the vault to the freelancer net of the
// platform fee and records the completion on the freelancer's reputation.
// The fee and the payout always sum exactly to the locked amount.
func (l Ledger) ApproveCompletion(ctx context.Context, projectID int64, caller string) (domain.Project, error) {
	if l.Config == nil {
		return domain.Project{}, errors.New("config not loaded")
	}
	unlock := l.locks.lock(projectID)
	defer unlock()
	tx, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	p, err := l.Repo.GetProjectTx(ctx, tx, projectID)
	if err != nil {
		return p, err
	}
	if caller != p.Client {
		return p, fmt.Errorf("%w: only the client may approve completion", ErrUnauthorized)
	}
	if p.Status != domain.StatusUnderReview {
		return p, transitionError("approve completion", p.Status)
	}
	if p.DisputeStatus != domain.DisputeNone {
		return p, fmt.Errorf("%w: dispute outstanding", ErrInvalidStateTransition)
	}
	settings, err := l.Repo.GetSettingsTx(ctx, tx)
	if err != nil {
		return p, err
	}
	vault, err := l.Repo.GetVaultTx(ctx, tx, p.ID)
	if err != nil {
		return p, err
	}
	if vault.ReleasedAt != nil {
		return p, fmt.Errorf("%w: funds already released", ErrInvalidStateTransition)
	}

	fee := vault.Amount * settings.FeeBps / 10000
	net := vault.Amount - fee
	now := l.now().UTC().Format(time.RFC3339)

	p.Status = domain.StatusCompleted
	p.CompletedAt = &now
	if err := l.Repo.UpdateProjectTx(ctx, tx, p); err != nil {
		return p, err
	}
	if err := l.Repo.MarkVaultReleasedTx(ctx, tx, p.ID, p.Freelancer, now); err != nil {
		return p, err
	}
	rep, err := l.recordCompletionTx(ctx, tx, p.Freelancer, net)
	if err != nil {
		return p, err
	}

	// Internal state is settled; value leaves last.
	if err := l.Repo.InsertTransferTx(ctx, tx, domain.Transfer{
		TS: now, Kind: domain.TransferPayout, Recipient: p.Freelancer,
		Token: vault.Token, Amount: net, ProjectID: &p.ID,
	}); err != nil {
		return p, err
	}
	if fee > 0 {
		if vault.Token == domain.NativeToken {
			if err := l.Repo.InsertTransferTx(ctx, tx, domain.Transfer{
				TS: now, Kind: domain.TransferFee, Recipient: settings.Treasury,
				Token: vault.Token, Amount: fee, ProjectID: &p.ID,
			}); err != nil {
				return p, err
			}
		} else {
			if err := l.Repo.AddFeeAccrualTx(ctx, tx, vault.Token, fee); err != nil {
				return p, err
			}
		}
	}
	if err := l.Events.Append(ctx, tx, events.ProjectCompleted, &p.ID, "project", projectEntityID(p.ID), caller, events.EventPayload{
		"freelancer": p.Freelancer, "payment_amount": net, "fee": fee,
	}); err != nil {
		return p, err
	}
	if err := l.appendReputationEvent(ctx, tx, &p.ID, caller, rep); err != nil {
		return p, err
	}
	if err := tx.Commit(); err != nil {
		return p, err
	}
	metrics.ProjectsCompleted.Inc()
	metrics.FundsReleased.Add(float64(vault.Amount))
	return p, nil
}

func (l Ledger) InitiateDispute(ctx context.Context, projectID int64, caller, reason string) (domain.Project, error) {
	if strings.TrimSpace(reason) == "" {
		return domain.Project{}, errors.New("reason is required")
	}
	unlock := l.locks.lock(projectID)
	defer unlock()
	tx, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	p, err := l.Repo.GetProjectTx(ctx, tx, projectID)
	if err != nil {
		return p, err
	}
	if caller != p.Client && caller != p.Freelancer {
		return p, fmt.Errorf("%w: only a party to the project may dispute", ErrUnauthorized)
	}
	if !p.Status.Disputable() {
		return p, transitionError("dispute", p.Status)
	}
	if p.DisputeStatus != domain.DisputeNone {
		return p, fmt.Errorf("%w: dispute already %s", ErrInvalidStateTransition, p.DisputeStatus)
	}
	p.Status = domain.StatusDisputed
	p.DisputeStatus = domain.DisputeInitiated
	p.DisputeReason = reason
	if err := l.Repo.UpdateProjectTx(ctx, tx, p); err != nil {
		return p, err
	}
	if err := l.Events.Append(ctx, tx, events.DisputeInitiated, &p.ID, "project", projectEntityID(p.ID), caller, events.EventPayload{
		"initiator": caller, "reason": reason,
	}); err != nil {
		return p, err
	}
	if err := tx.Commit(); err != nil {
		return p, err
	}
	metrics.DisputesInitiated.Inc()
	return p, nil
}

// ResolveDispute pays the full locked amount to the winner, fee-free, and
// marks the dispute on both parties' reputation records.
func (l Ledger) ResolveDispute(ctx context.Context, projectID int64, caller, winner, resolution string) (domain.Project, error) {
	if strings.TrimSpace(resolution) == "" {
		return domain.Project{}, errors.New("resolution is required")
	}
	unlock := l.locks.lock(projectID)
	defer unlock()
	tx, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	p, err := l.Repo.GetProjectTx(ctx, tx, projectID)
	if err != nil {
		return p, err
	}
	settings, err := l.Repo.GetSettingsTx(ctx, tx)
	if err != nil {
		return p, err
	}
	if caller != settings.Owner {
		return p, fmt.Errorf("%w: only the owner may resolve disputes", ErrUnauthorized)
	}
	if p.DisputeStatus != domain.DisputeInitiated {
		return p, fmt.Errorf("%w: no dispute to resolve", ErrInvalidStateTransition)
	}
	if winner != p.Client && winner != p.Freelancer {
		return p, fmt.Errorf("%w: winner must be a party to the project", ErrUnauthorized)
	}
	vault, err := l.Repo.GetVaultTx(ctx, tx, p.ID)
	if err != nil {
		return p, err
	}
	if vault.ReleasedAt != nil {
		return p, fmt.Errorf("%w: funds already released", ErrInvalidStateTransition)
	}
	now := l.now().UTC().Format(time.RFC3339)

	p.DisputeStatus = domain.DisputeResolved
	p.DisputeResolution = resolution
	if err := l.Repo.UpdateProjectTx(ctx, tx, p); err != nil {
		return p, err
	}
	if err := l.Repo.MarkVaultReleasedTx(ctx, tx, p.ID, winner, now); err != nil {
		return p, err
	}
	for _, party := range []string{p.Client, p.Freelancer} {
		rep, err := l.recordDisputeTx(ctx, tx, party)
		if err != nil {
			return p, err
		}
		if err := l.appendReputationEvent(ctx, tx, &p.ID, caller, rep); err != nil {
			return p, err
		}
	}
	if err := l.Repo.InsertTransferTx(ctx, tx, domain.Transfer{
		TS: now, Kind: domain.TransferDisputePayout, Recipient: winner,
		Token: vault.Token, Amount: vault.Amount, ProjectID: &p.ID,
	}); err != nil {
		return p, err
	}
	if err := l.Events.Append(ctx, tx, events.DisputeResolved, &p.ID, "project", projectEntityID(p.ID), caller, events.EventPayload{
		"winner": winner, "resolution": resolution, "amount": vault.Amount,
	}); err != nil {
		return p, err
	}
	if err := tx.Commit(); err != nil {
		return p, err
	}
	metrics.DisputesResolved.Inc()
	metrics.FundsReleased.Add(float64(vault.Amount))
	return p, nil
}

// --- reputation ---

func (l Ledger) recordCompletionTx(ctx context.Context, tx *sql.Tx, freelancer string, netAmount int64) (domain.Reputation, error) {
	rep, err := l.Repo.GetReputationTx(ctx, tx, freelancer)
	if err != nil {
		return rep, err
	}
	rep.CompletedProjects++
	rep.TotalEarnings += netAmount
	rep.Karma += l.karmaAward()
	rep.SuccessRate = successRate(rep.CompletedProjects, rep.TotalDisputes)
	return rep, l.Repo.UpsertReputationTx(ctx, tx, rep)
}

func (l Ledger) recordDisputeTx(ctx context.Context, tx *sql.Tx, party string) (domain.Reputation, error) {
	rep, err := l.Repo.GetReputationTx(ctx, tx, party)
	if err != nil {
		return rep, err
	}
	rep.TotalDisputes++
	rep.SuccessRate = successRate(rep.CompletedProjects, rep.TotalDisputes)
	return rep, l.Repo.UpsertReputationTx(ctx, tx, rep)
}

func (l Ledger) appendReputationEvent(ctx context.Context, tx *sql.Tx, projectID *int64, caller string, rep domain.Reputation) error {
	return l.Events.Append(ctx, tx, events.ReputationUpdated, projectID, "reputation", rep.Address, caller, events.EventPayload{
		"completed_projects": rep.CompletedProjects,
		"karma":              rep.Karma,
		"total_disputes":     rep.TotalDisputes,
		"success_rate":       rep.SuccessRate,
	})
}

func (l Ledger) karmaAward() int64 {
	if l.Config != nil && l.Config.Ledger.KarmaAward > 0 {
		return l.Config.Ledger.KarmaAward
	}
	return 100
}

func successRate(completed, disputes int64) int64 {
	total := completed + disputes
	if total == 0 {
		return 0
	}
	return completed * 10000 / total
}

func projectEntityID(id int64) string {
	return strconv.FormatInt(id, 10)
}
