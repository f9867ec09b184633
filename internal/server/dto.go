package server

import (
	"escrowline/internal/domain"
)

type CreateProjectRequest struct {
	Title        string `json:"title" example:"Landing page redesign"`
	Amount       int64  `json:"amount" example:"2000000000"`
	PaymentToken string `json:"payment_token,omitempty" example:""`
	Deadline     string `json:"deadline" format:"date-time"`
}

type FundProjectRequest struct {
	PaidAmount int64 `json:"paid_amount" example:"2000000000"`
}

type SubmitWorkRequest struct {
	DeliverableURI string `json:"deliverable_uri" example:"ipfs://bafy..."`
}

type InitiateDisputeRequest struct {
	Reason string `json:"reason" example:"work not delivered"`
}

type ResolveDisputeRequest struct {
	Winner     string `json:"winner"`
	Resolution string `json:"resolution"`
}

type SetFeeRequest struct {
	FeeBps int64 `json:"fee_bps" example:"200"`
}

type SetTreasuryRequest struct {
	Treasury string `json:"treasury"`
}

type WithdrawFeesRequest struct {
	Token string `json:"token,omitempty"`
}

type DevLoginRequest struct {
	Address string `json:"address"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

type WhoAmIResponse struct {
	Address string `json:"address"`
	Source  string `json:"source"`
}

type CreateAPIKeyRequest struct {
	Name string `json:"name,omitempty"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	Address   string `json:"address"`
	Name      string `json:"name,omitempty"`
	Key       string `json:"key,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type UserProjectsResponse struct {
	Address    string  `json:"address"`
	ProjectIDs []int64 `json:"project_ids"`
}

type StatsResponse struct {
	TotalProjects int64 `json:"total_projects"`
}

type AccruedFeesResponse struct {
	Token  string `json:"token,omitempty"`
	Amount int64  `json:"amount"`
}

func apiKeyResponse(k domain.APIKey, plaintext string) APIKeyResponse {
	return APIKeyResponse{
		ID:        k.ID,
		Address:   k.Address,
		Name:      k.Name,
		Key:       plaintext,
		CreatedAt: k.CreatedAt,
	}
}
