package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"escrowline/internal/config"
	"escrowline/internal/db"
	"escrowline/internal/domain"
	"escrowline/internal/ledger"
	"escrowline/internal/migrate"
	"escrowline/internal/repo"
)

const (
	owner      = "0xowner"
	treasury   = "0xtreasury"
	client     = "0xalice"
	freelancer = "0xbob"
	stranger   = "0xmallory"

	// 1.0 unit in base units.
	oneUnit = int64(1_000_000_000)
)

type testEnv struct {
	Ledger ledger.Ledger
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default(owner, treasury)
	l := ledger.New(conn, cfg)
	frozen := func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	l.Now = frozen
	l.Events.Now = frozen
	ctx := context.Background()
	if _, err := l.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	return testEnv{Ledger: l, Ctx: ctx}
}

func createProject(t *testing.T, env testEnv, amount int64, token string) domain.Project {
	t.Helper()
	p, err := env.Ledger.CreateProject(env.Ctx, ledger.CreateProjectOptions{
		Caller:       client,
		Title:        "Landing page",
		Amount:       amount,
		PaymentToken: token,
		Deadline:     "2024-02-01T00:00:00Z",
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	return p
}

func advanceToUnderReview(t *testing.T, env testEnv, id, amount int64) {
	t.Helper()
	if _, err := env.Ledger.AcceptProject(env.Ctx, id, freelancer); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := env.Ledger.FundProject(env.Ctx, id, client, amount); err != nil {
		t.Fatalf("fund: %v", err)
	}
	if _, err := env.Ledger.StartWork(env.Ctx, id, freelancer); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := env.Ledger.SubmitWork(env.Ctx, id, freelancer, "ipfs://deliverable"); err != nil {
		t.Fatalf("submit: %v", err)
	}
}

func TestFullWorkflowReleasesEscrowWithFee(t *testing.T) {
	env := newTestEnv(t)
	amount := 2 * oneUnit
	p := createProject(t, env, amount, domain.NativeToken)
	if p.ID != 0 {
		t.Fatalf("first project id = %d, want 0", p.ID)
	}
	if p.Status != domain.StatusOpen {
		t.Fatalf("status = %s, want open", p.Status)
	}
	advanceToUnderReview(t, env, p.ID, amount)

	done, err := env.Ledger.ApproveCompletion(env.Ctx, p.ID, client)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if done.Status != domain.StatusCompleted {
		t.Fatalf("status = %s, want completed", done.Status)
	}
	if done.CompletedAt == nil {
		t.Fatalf("completed_at not set")
	}

	// 200 bps of 2.0 units is 0.04 units to the treasury, 1.96 to the freelancer.
	transfers, err := env.Ledger.ListTransfers(env.Ctx, repo.TransferFilters{ProjectID: &p.ID})
	if err != nil {
		t.Fatalf("list transfers: %v", err)
	}
	if len(transfers) != 2 {
		t.Fatalf("transfers = %d, want 2", len(transfers))
	}
	payout, fee := transfers[0], transfers[1]
	if payout.Kind != domain.TransferPayout || payout.Recipient != freelancer || payout.Amount != amount-amount/50 {
		t.Fatalf("payout = %+v", payout)
	}
	if fee.Kind != domain.TransferFee || fee.Recipient != treasury || fee.Amount != amount/50 {
		t.Fatalf("fee = %+v", fee)
	}
	if payout.Amount+fee.Amount != amount {
		t.Fatalf("payout %d + fee %d != %d", payout.Amount, fee.Amount, amount)
	}

	vault, err := env.Ledger.GetVault(env.Ctx, p.ID)
	if err != nil {
		t.Fatalf("get vault: %v", err)
	}
	if vault.ReleasedAt == nil || vault.Recipient == nil || *vault.Recipient != freelancer {
		t.Fatalf("vault not released to freelancer: %+v", vault)
	}

	rep, err := env.Ledger.GetReputation(env.Ctx, freelancer)
	if err != nil {
		t.Fatalf("get reputation: %v", err)
	}
	if rep.CompletedProjects != 1 || rep.Karma != 100 || rep.TotalEarnings != payout.Amount {
		t.Fatalf("reputation = %+v", rep)
	}
	if rep.SuccessRate != 10000 {
		t.Fatalf("success rate = %d, want 10000", rep.SuccessRate)
	}
}

func TestCreateProjectValidation(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Ledger.CreateProject(env.Ctx, ledger.CreateProjectOptions{
		Caller: client, Title: "x", Amount: oneUnit, Deadline: "2023-12-01T00:00:00Z",
	})
	if !errors.Is(err, ledger.ErrInvalidDeadline) {
		t.Fatalf("past deadline err = %v", err)
	}
	_, err = env.Ledger.CreateProject(env.Ctx, ledger.CreateProjectOptions{
		Caller: client, Title: "x", Amount: 0, Deadline: "2024-02-01T00:00:00Z",
	})
	if !errors.Is(err, ledger.ErrInvalidAmount) {
		t.Fatalf("zero amount err = %v", err)
	}
}

func TestSequentialProjectIDs(t *testing.T) {
	env := newTestEnv(t)
	for want := int64(0); want < 3; want++ {
		p := createProject(t, env, oneUnit, domain.NativeToken)
		if p.ID != want {
			t.Fatalf("project id = %d, want %d", p.ID, want)
		}
	}
	total, err := env.Ledger.TotalProjects(env.Ctx)
	if err != nil || total != 3 {
		t.Fatalf("total = %d, err = %v", total, err)
	}
	ids, err := env.Ledger.UserProjects(env.Ctx, client)
	if err != nil || len(ids) != 3 {
		t.Fatalf("user projects = %v, err = %v", ids, err)
	}
}

func TestAcceptRules(t *testing.T) {
	env := newTestEnv(t)
	p := createProject(t, env, oneUnit, domain.NativeToken)

	if _, err := env.Ledger.AcceptProject(env.Ctx, p.ID, client); !errors.Is(err, ledger.ErrUnauthorized) {
		t.Fatalf("self-accept err = %v", err)
	}
	if _, err := env.Ledger.AcceptProject(env.Ctx, p.ID, freelancer); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := env.Ledger.AcceptProject(env.Ctx, p.ID, stranger); !errors.Is(err, ledger.ErrInvalidStateTransition) {
		t.Fatalf("double accept err = %v", err)
	}
	ids, err := env.Ledger.UserProjects(env.Ctx, freelancer)
	if err != nil || len(ids) != 1 || ids[0] != p.ID {
		t.Fatalf("freelancer projects = %v, err = %v", ids, err)
	}
}

func TestFundRules(t *testing.T) {
	env := newTestEnv(t)
	p := createProject(t, env, oneUnit, domain.NativeToken)

	// funding before a freelancer accepts is rejected
	if _, err := env.Ledger.FundProject(env.Ctx, p.ID, client, oneUnit); !errors.Is(err, ledger.ErrInvalidStateTransition) {
		t.Fatalf("fund before accept err = %v", err)
	}
	if _, err := env.Ledger.AcceptProject(env.Ctx, p.ID, freelancer); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := env.Ledger.FundProject(env.Ctx, p.ID, freelancer, oneUnit); !errors.Is(err, ledger.ErrUnauthorized) {
		t.Fatalf("non-client fund err = %v", err)
	}
	if _, err := env.Ledger.FundProject(env.Ctx, p.ID, client, oneUnit-1); !errors.Is(err, ledger.ErrIncorrectPaymentAmount) {
		t.Fatalf("underpay err = %v", err)
	}
	if _, err := env.Ledger.FundProject(env.Ctx, p.ID, client, oneUnit+1); !errors.Is(err, ledger.ErrIncorrectPaymentAmount) {
		t.Fatalf("overpay err = %v", err)
	}
	funded, err := env.Ledger.FundProject(env.Ctx, p.ID, client, oneUnit)
	if err != nil || funded.Status != domain.StatusFunded {
		t.Fatalf("fund: %v status %s", err, funded.Status)
	}
	if _, err := env.Ledger.FundProject(env.Ctx, p.ID, client, oneUnit); !errors.Is(err, ledger.ErrInvalidStateTransition) {
		t.Fatalf("double fund err = %v", err)
	}
}

func TestWorkflowOrderIsEnforced(t *testing.T) {
	env := newTestEnv(t)
	p := createProject(t, env, oneUnit, domain.NativeToken)
	if _, err := env.Ledger.AcceptProject(env.Ctx, p.ID, freelancer); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := env.Ledger.StartWork(env.Ctx, p.ID, freelancer); !errors.Is(err, ledger.ErrInvalidStateTransition) {
		t.Fatalf("start before fund err = %v", err)
	}
	if _, err := env.Ledger.FundProject(env.Ctx, p.ID, client, oneUnit); err != nil {
		t.Fatalf("fund: %v", err)
	}
	if _, err := env.Ledger.SubmitWork(env.Ctx, p.ID, freelancer, "ipfs://x"); !errors.Is(err, ledger.ErrInvalidStateTransition) {
		t.Fatalf("submit before start err = %v", err)
	}
	if _, err := env.Ledger.StartWork(env.Ctx, p.ID, client); !errors.Is(err, ledger.ErrUnauthorized) {
		t.Fatalf("client start err = %v", err)
	}
	if _, err := env.Ledger.StartWork(env.Ctx, p.ID, freelancer); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := env.Ledger.ApproveCompletion(env.Ctx, p.ID, client); !errors.Is(err, ledger.ErrInvalidStateTransition) {
		t.Fatalf("approve before submit err = %v", err)
	}
	if _, err := env.Ledger.SubmitWork(env.Ctx, p.ID, client, "ipfs://x"); !errors.Is(err, ledger.ErrUnauthorized) {
		t.Fatalf("client submit err = %v", err)
	}
	if _, err := env.Ledger.SubmitWork(env.Ctx, p.ID, freelancer, "ipfs://x"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := env.Ledger.ApproveCompletion(env.Ctx, p.ID, freelancer); !errors.Is(err, ledger.ErrUnauthorized) {
		t.Fatalf("freelancer approve err = %v", err)
	}
	if _, err := env.Ledger.ApproveCompletion(env.Ctx, p.ID, client); err != nil {
		t.Fatalf("approve: %v", err)
	}
	// terminal: nothing moves after completion
	if _, err := env.Ledger.ApproveCompletion(env.Ctx, p.ID, client); !errors.Is(err, ledger.ErrInvalidStateTransition) {
		t.Fatalf("double approve err = %v", err)
	}
}

func TestDisputeLifecycle(t *testing.T) {
	env := newTestEnv(t)
	amount := 2 * oneUnit
	p := createProject(t, env, amount, domain.NativeToken)
	advanceToUnderReview(t, env, p.ID, amount)

	if _, err := env.Ledger.InitiateDispute(env.Ctx, p.ID, stranger, "not mine"); !errors.Is(err, ledger.ErrUnauthorized) {
		t.Fatalf("stranger dispute err = %v", err)
	}
	disputed, err := env.Ledger.InitiateDispute(env.Ctx, p.ID, client, "work is broken")
	if err != nil {
		t.Fatalf("dispute: %v", err)
	}
	if disputed.Status != domain.StatusDisputed || disputed.DisputeStatus != domain.DisputeInitiated {
		t.Fatalf("disputed = %+v", disputed)
	}
	// approval is blocked while the dispute is open
	if _, err := env.Ledger.ApproveCompletion(env.Ctx, p.ID, client); !errors.Is(err, ledger.ErrInvalidStateTransition) {
		t.Fatalf("approve during dispute err = %v", err)
	}
	if _, err := env.Ledger.InitiateDispute(env.Ctx, p.ID, freelancer, "again"); !errors.Is(err, ledger.ErrInvalidStateTransition) {
		t.Fatalf("double dispute err = %v", err)
	}

	if _, err := env.Ledger.ResolveDispute(env.Ctx, p.ID, client, client, "refund"); !errors.Is(err, ledger.ErrUnauthorized) {
		t.Fatalf("non-owner resolve err = %v", err)
	}
	if _, err := env.Ledger.ResolveDispute(env.Ctx, p.ID, owner, stranger, "oops"); !errors.Is(err, ledger.ErrUnauthorized) {
		t.Fatalf("outsider winner err = %v", err)
	}
	resolved, err := env.Ledger.ResolveDispute(env.Ctx, p.ID, owner, client, "refund to client")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.DisputeStatus != domain.DisputeResolved {
		t.Fatalf("dispute status = %s", resolved.DisputeStatus)
	}

	// the winner receives the full locked amount, no fee
	transfers, err := env.Ledger.ListTransfers(env.Ctx, repo.TransferFilters{ProjectID: &p.ID})
	if err != nil || len(transfers) != 1 {
		t.Fatalf("transfers = %v, err = %v", transfers, err)
	}
	if transfers[0].Kind != domain.TransferDisputePayout || transfers[0].Recipient != client || transfers[0].Amount != amount {
		t.Fatalf("dispute payout = %+v", transfers[0])
	}

	for _, party := range []string{client, freelancer} {
		rep, err := env.Ledger.GetReputation(env.Ctx, party)
		if err != nil {
			t.Fatalf("reputation %s: %v", party, err)
		}
		if rep.TotalDisputes != 1 {
			t.Fatalf("%s disputes = %d", party, rep.TotalDisputes)
		}
		if rep.SuccessRate != 0 {
			t.Fatalf("%s success rate = %d", party, rep.SuccessRate)
		}
	}

	if _, err := env.Ledger.ResolveDispute(env.Ctx, p.ID, owner, client, "again"); !errors.Is(err, ledger.ErrInvalidStateTransition) {
		t.Fatalf("double resolve err = %v", err)
	}
}

func TestTokenFeesAccrueUntilWithdrawal(t *testing.T) {
	env := newTestEnv(t)
	amount := 2 * oneUnit
	p := createProject(t, env, amount, "USDX")
	advanceToUnderReview(t, env, p.ID, amount)
	if _, err := env.Ledger.ApproveCompletion(env.Ctx, p.ID, client); err != nil {
		t.Fatalf("approve: %v", err)
	}

	wantFee := amount * 200 / 10000
	accrued, err := env.Ledger.AccruedFees(env.Ctx, "USDX")
	if err != nil || accrued != wantFee {
		t.Fatalf("accrued = %d, err = %v, want %d", accrued, err, wantFee)
	}
	// no direct fee transfer yet, only the payout
	transfers, err := env.Ledger.ListTransfers(env.Ctx, repo.TransferFilters{ProjectID: &p.ID})
	if err != nil || len(transfers) != 1 {
		t.Fatalf("transfers = %v, err = %v", transfers, err)
	}

	if _, err := env.Ledger.WithdrawFees(env.Ctx, client, "USDX"); !errors.Is(err, ledger.ErrUnauthorized) {
		t.Fatalf("non-owner withdraw err = %v", err)
	}
	tr, err := env.Ledger.WithdrawFees(env.Ctx, owner, "USDX")
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	// accrued token fees leave to the owner, not the treasury
	if tr.Kind != domain.TransferFeeWithdrawal || tr.Recipient != owner || tr.Amount != wantFee {
		t.Fatalf("withdrawal = %+v", tr)
	}
	if _, err := env.Ledger.WithdrawFees(env.Ctx, owner, "USDX"); !errors.Is(err, ledger.ErrInvalidAmount) {
		t.Fatalf("empty withdraw err = %v", err)
	}
	accrued, err = env.Ledger.AccruedFees(env.Ctx, "USDX")
	if err != nil || accrued != 0 {
		t.Fatalf("accrued after withdraw = %d, err = %v", accrued, err)
	}
}

func TestAdminSettings(t *testing.T) {
	env := newTestEnv(t)

	if _, err := env.Ledger.SetPlatformFee(env.Ctx, client, 300); !errors.Is(err, ledger.ErrUnauthorized) {
		t.Fatalf("non-owner set fee err = %v", err)
	}
	if _, err := env.Ledger.SetPlatformFee(env.Ctx, owner, 1500); !errors.Is(err, ledger.ErrFeeExceedsMaximum) {
		t.Fatalf("over-cap fee err = %v", err)
	}
	s, err := env.Ledger.SetPlatformFee(env.Ctx, owner, 300)
	if err != nil || s.FeeBps != 300 {
		t.Fatalf("set fee: %v, settings %+v", err, s)
	}

	if _, err := env.Ledger.SetTreasuryAddress(env.Ctx, client, "0xnew"); !errors.Is(err, ledger.ErrUnauthorized) {
		t.Fatalf("non-owner set treasury err = %v", err)
	}
	s, err = env.Ledger.SetTreasuryAddress(env.Ctx, owner, "0xnew")
	if err != nil || s.Treasury != "0xnew" {
		t.Fatalf("set treasury: %v, settings %+v", err, s)
	}

	// the new fee applies to subsequent completions
	amount := 2 * oneUnit
	p := createProject(t, env, amount, domain.NativeToken)
	advanceToUnderReview(t, env, p.ID, amount)
	if _, err := env.Ledger.ApproveCompletion(env.Ctx, p.ID, client); err != nil {
		t.Fatalf("approve: %v", err)
	}
	transfers, err := env.Ledger.ListTransfers(env.Ctx, repo.TransferFilters{ProjectID: &p.ID})
	if err != nil || len(transfers) != 2 {
		t.Fatalf("transfers = %v, err = %v", transfers, err)
	}
	wantFee := amount * 300 / 10000
	if transfers[1].Amount != wantFee || transfers[1].Recipient != "0xnew" {
		t.Fatalf("fee transfer = %+v, want %d to 0xnew", transfers[1], wantFee)
	}
}

func TestReputationForUnknownAddressIsZero(t *testing.T) {
	env := newTestEnv(t)
	rep, err := env.Ledger.GetReputation(env.Ctx, stranger)
	if err != nil {
		t.Fatalf("get reputation: %v", err)
	}
	if rep.Address != stranger || rep.CompletedProjects != 0 || rep.Karma != 0 || rep.SuccessRate != 0 {
		t.Fatalf("zero record = %+v", rep)
	}
}

func TestGetProjectNotFound(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Ledger.GetProject(env.Ctx, 42); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("missing project err = %v", err)
	}
}
