package ledger

import (
	"context"
	"fmt"
	"time"

	"escrowline/internal/config"
	"escrowline/internal/domain"
	"escrowline/internal/events"
)

// SetPlatformFee updates the fee charged on completions, in basis points.
// Owner only. The cap is hard; there is no override.
func (l Ledger) SetPlatformFee(ctx context.Context, caller string, feeBps int64) (domain.Settings, error) {
	if feeBps < 0 {
		return domain.Settings{}, fmt.Errorf("%w: fee must not be negative", ErrInvalidAmount)
	}
	if feeBps > config.MaxFeeBps {
		return domain.Settings{}, fmt.Errorf("%w: %d bps", ErrFeeExceedsMaximum, feeBps)
	}
	unlock := l.locks.lockAdmin()
	defer unlock()
	tx, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Settings{}, err
	}
	defer tx.Rollback()

	s, err := l.Repo.GetSettingsTx(ctx, tx)
	if err != nil {
		return s, err
	}
	if caller != s.Owner {
		return s, fmt.Errorf("%w: only the owner may set the platform fee", ErrUnauthorized)
	}
	previous := s.FeeBps
	s.FeeBps = feeBps
	if err := l.Repo.UpdateFeeTx(ctx, tx, feeBps); err != nil {
		return s, err
	}
	if err := l.Events.Append(ctx, tx, events.PlatformFeeChanged, nil, "settings", "fee", caller, events.EventPayload{
		"previous_bps": previous, "fee_bps": feeBps,
	}); err != nil {
		return s, err
	}
	if err := tx.Commit(); err != nil {
		return s, err
	}
	return s, nil
}

// SetTreasuryAddress changes the fee destination. Owner only.
func (l Ledger) SetTreasuryAddress(ctx context.Context, caller, treasury string) (domain.Settings, error) {
	if treasury == "" {
		return domain.Settings{}, fmt.Errorf("treasury address is required")
	}
	unlock := l.locks.lockAdmin()
	defer unlock()
	tx, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Settings{}, err
	}
	defer tx.Rollback()

	s, err := l.Repo.GetSettingsTx(ctx, tx)
	if err != nil {
		return s, err
	}
	if caller != s.Owner {
		return s, fmt.Errorf("%w: only the owner may set the treasury", ErrUnauthorized)
	}
	previous := s.Treasury
	s.Treasury = treasury
	if err := l.Repo.UpdateTreasuryTx(ctx, tx, treasury); err != nil {
		return s, err
	}
	if err := l.Events.Append(ctx, tx, events.TreasuryChanged, nil, "settings", "treasury", caller, events.EventPayload{
		"previous": previous, "treasury": treasury,
	}); err != nil {
		return s, err
	}
	if err := tx.Commit(); err != nil {
		return s, err
	}
	return s, nil
}

// WithdrawFees moves the whole accrued balance for a token to the owner.
// Native-denominated fees never accrue; they are paid to the treasury at
// completion time, so withdrawal only applies to token balances.
func (l Ledger) WithdrawFees(ctx context.Context, caller, token string) (domain.Transfer, error) {
	unlock := l.locks.lockAdmin()
	defer unlock()
	tx, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Transfer{}, err
	}
	defer tx.Rollback()

	s, err := l.Repo.GetSettingsTx(ctx, tx)
	if err != nil {
		return domain.Transfer{}, err
	}
	if caller != s.Owner {
		return domain.Transfer{}, fmt.Errorf("%w: only the owner may withdraw fees", ErrUnauthorized)
	}
	amount, err := l.Repo.TakeFeeAccrualTx(ctx, tx, token)
	if err != nil {
		return domain.Transfer{}, err
	}
	if amount == 0 {
		return domain.Transfer{}, fmt.Errorf("%w: no fees accrued for token %q", ErrInvalidAmount, token)
	}
	t := domain.Transfer{
		TS:        l.now().UTC().Format(time.RFC3339),
		Kind:      domain.TransferFeeWithdrawal,
		Recipient: s.Owner,
		Token:     token,
		Amount:    amount,
	}
	if err := l.Repo.InsertTransferTx(ctx, tx, t); err != nil {
		return domain.Transfer{}, err
	}
	if err := l.Events.Append(ctx, tx, events.FeesWithdrawn, nil, "settings", "fees", caller, events.EventPayload{
		"token": token, "amount": amount, "recipient": s.Owner,
	}); err != nil {
		return domain.Transfer{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Transfer{}, err
	}
	return t, nil
}
