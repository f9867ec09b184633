package domain

// NativeToken is the sentinel payment token denoting the chain's native
// currency. Any other value names a fungible-token denomination.
const NativeToken = ""

type Status string

const (
	StatusOpen        Status = "open"
	StatusFunded      Status = "funded"
	StatusInProgress  Status = "in_progress"
	StatusUnderReview Status = "under_review"
	StatusCompleted   Status = "completed"
	StatusDisputed    Status = "disputed"
	// StatusCancelled is declared for wire parity; no operation currently
	// reaches it.
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further workflow transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Disputable reports whether a dispute may be opened from this status.
func (s Status) Disputable() bool {
	switch s {
	case StatusFunded, StatusInProgress, StatusUnderReview:
		return true
	}
	return false
}

type DisputeStatus string

const (
	DisputeNone      DisputeStatus = "none"
	DisputeInitiated DisputeStatus = "initiated"
	DisputeResolved  DisputeStatus = "resolved"
)

type Project struct {
	ID                int64         `json:"id"`
	Client            string        `json:"client"`
	Freelancer        string        `json:"freelancer,omitempty"`
	Title             string        `json:"title"`
	Amount            int64         `json:"amount"`
	PaymentToken      string        `json:"payment_token,omitempty"`
	Deadline          string        `json:"deadline" format:"date-time"`
	Status            Status        `json:"status" enum:"open,funded,in_progress,under_review,completed,disputed,cancelled"`
	CreatedAt         string        `json:"created_at" format:"date-time"`
	CompletedAt       *string       `json:"completed_at,omitempty" format:"date-time"`
	DisputeStatus     DisputeStatus `json:"dispute_status" enum:"none,initiated,resolved"`
	DisputeReason     string        `json:"dispute_reason,omitempty"`
	DisputeResolution string        `json:"dispute_resolution,omitempty"`
	DeliverableURI    string        `json:"deliverable_uri,omitempty"`
}

// Reputation is the persistent per-address trust record. The zero value is
// the record returned for addresses with no history.
type Reputation struct {
	Address           string `json:"address"`
	CompletedProjects int64  `json:"completed_projects"`
	TotalEarnings     int64  `json:"total_earnings"`
	Karma             int64  `json:"karma"`
	TotalDisputes     int64  `json:"total_disputes"`
	SuccessRate       int64  `json:"success_rate"`
}

// Settings holds the ledger-wide scalars. Owner is fixed at init time.
type Settings struct {
	Owner    string `json:"owner"`
	Treasury string `json:"treasury"`
	FeeBps   int64  `json:"fee_bps"`
}

// VaultEntry tracks custody of a project's locked funds. ReleasedAt is set
// exactly once, when the funds leave the vault.
type VaultEntry struct {
	ProjectID  int64   `json:"project_id"`
	Token      string  `json:"token,omitempty"`
	Amount     int64   `json:"amount"`
	LockedAt   string  `json:"locked_at" format:"date-time"`
	ReleasedAt *string `json:"released_at,omitempty" format:"date-time"`
	Recipient  *string `json:"recipient,omitempty"`
}

type TransferKind string

const (
	TransferPayout        TransferKind = "payout"
	TransferFee           TransferKind = "fee"
	TransferDisputePayout TransferKind = "dispute_payout"
	TransferFeeWithdrawal TransferKind = "fee_withdrawal"
)

// Transfer is one outbound value movement. Transfers are append-only and
// written after every other effect of the same transaction.
type Transfer struct {
	ID        int64        `json:"id"`
	TS        string       `json:"ts" format:"date-time"`
	Kind      TransferKind `json:"kind" enum:"payout,fee,dispute_payout,fee_withdrawal"`
	Recipient string       `json:"recipient"`
	Token     string       `json:"token,omitempty"`
	Amount    int64        `json:"amount"`
	ProjectID *int64       `json:"project_id,omitempty"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  *int64 `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	Caller     string `json:"caller"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	Address   string `json:"address"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
