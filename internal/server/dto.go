package server

import (
	"pactline/internal/config"
	"pactline/internal/domain"
)

// Request payloads

type CreatePactRequest struct {
	ID          string   `json:"id"`
	Parties     []string `json:"parties" minItems:"2" maxItems:"2"`
	Description *string  `json:"description,omitempty"`
}

type ProposeOperationRequest struct {
	Target  string `json:"target" enum:"treasury.withdraw,treasury.set_withdrawer,tasks.assign,tasks.cancel,proposals.execute,proposals.cancel,disputes.review,disputes.resolve,disputes.cancel"`
	Value   int64  `json:"value,omitempty"`
	Payload string `json:"payload,omitempty"`
}

type DepositRequest struct {
	Amount int64 `json:"amount" minimum:"1"`
}

type WithdrawRequest struct {
	Recipient string `json:"recipient"`
	Amount    int64  `json:"amount" minimum:"1"`
}

type SubmitAcknowledgmentRequest struct {
	Target    string `json:"target"`
	Message   string `json:"message"`
	Signature string `json:"signature"`
	TS        string `json:"ts,omitempty" format:"date-time"`
}

type CreateTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type RequestRevisionRequest struct {
	Comment string `json:"comment"`
}

type CreateProposalRequest struct {
	Description string `json:"description"`
	Target      string `json:"target,omitempty"`
	Value       int64  `json:"value,omitempty"`
	Payload     string `json:"payload,omitempty"`
}

type VoteRequest struct {
	Support bool `json:"support"`
}

type CreateDisputeRequest struct {
	Counterparty string `json:"counterparty"`
	Type         string `json:"type,omitempty"`
	RelatedID    int64  `json:"related_id,omitempty"`
	Description  string `json:"description"`
	Evidence     string `json:"evidence,omitempty"`
}

type SubmitEvidenceRequest struct {
	Evidence string `json:"evidence"`
}

type CreateAPIKeyRequest struct {
	ActorID string `json:"actor_id"`
	Name    string `json:"name,omitempty"`
}

type DevLoginRequest struct {
	ActorID string `json:"actor_id"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

// Response payloads

type PactResponse struct {
	ID          string `json:"id"`
	PartyA      string `json:"party_a"`
	PartyB      string `json:"party_b"`
	Status      string `json:"status"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at"`
}

type PactConfigResponse struct {
	PactID       string   `json:"pact_id"`
	Parties      []string `json:"parties"`
	GateOwner    string   `json:"gate_owner"`
	Withdrawers  []string `json:"withdrawers"`
	VotingPeriod string   `json:"voting_period"`
	Quorum       int64    `json:"quorum"`
}

type OperationResponse struct {
	ID         int64    `json:"id"`
	PactID     string   `json:"pact_id"`
	Proposer   string   `json:"proposer"`
	Target     string   `json:"target"`
	Value      int64    `json:"value"`
	Payload    string   `json:"payload,omitempty"`
	Approvals  []string `json:"approvals"`
	Executed   bool     `json:"executed"`
	CreatedAt  string   `json:"created_at"`
	ExecutedAt *string  `json:"executed_at,omitempty"`
}

type TreasuryResponse struct {
	PactID           string `json:"pact_id"`
	Balance          int64  `json:"balance"`
	TotalDeposits    int64  `json:"total_deposits"`
	TotalWithdrawals int64  `json:"total_withdrawals"`
}

type AccountResponse struct {
	Participant string `json:"participant"`
	Balance     int64  `json:"balance"`
}

type AcknowledgmentResponse struct {
	Hash      string `json:"hash"`
	Signer    string `json:"signer"`
	Target    string `json:"target"`
	Message   string `json:"message"`
	Signature string `json:"signature"`
	TS        string `json:"ts"`
}

type HandshakeResponse struct {
	Hash        string  `json:"hash"`
	PartyLow    string  `json:"party_low"`
	PartyHigh   string  `json:"party_high"`
	Active      bool    `json:"active"`
	ActivatedAt *string `json:"activated_at,omitempty"`
}

type TaskResponse struct {
	ID            int64   `json:"id"`
	Creator       string  `json:"creator"`
	Assignee      *string `json:"assignee,omitempty"`
	Assigner      *string `json:"assigner,omitempty"`
	Title         string  `json:"title"`
	Description   string  `json:"description"`
	PaymentAmount int64   `json:"payment_amount"`
	Status        string  `json:"status"`
	ReviewComment string  `json:"review_comment,omitempty"`
	CreatedAt     string  `json:"created_at"`
	UpdatedAt     string  `json:"updated_at"`
	AcceptedAt    *string `json:"accepted_at,omitempty"`
}

type ProposalResponse struct {
	ID           int64  `json:"id"`
	Proposer     string `json:"proposer"`
	Description  string `json:"description"`
	Target       string `json:"target,omitempty"`
	Value        int64  `json:"value"`
	ForVotes     int64  `json:"for_votes"`
	AgainstVotes int64  `json:"against_votes"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
	Executed     bool   `json:"executed"`
	Cancelled    bool   `json:"cancelled"`
}

type DisputeResponse struct {
	ID                   int64   `json:"id"`
	Initiator            string  `json:"initiator"`
	Counterparty         string  `json:"counterparty"`
	Type                 string  `json:"type"`
	RelatedID            int64   `json:"related_id"`
	Description          string  `json:"description"`
	InitiatorEvidence    string  `json:"initiator_evidence,omitempty"`
	CounterpartyEvidence string  `json:"counterparty_evidence,omitempty"`
	Status               string  `json:"status"`
	Resolver             *string `json:"resolver,omitempty"`
	Resolution           string  `json:"resolution,omitempty"`
	CreatedAt            string  `json:"created_at"`
	ResolvedAt           *string `json:"resolved_at,omitempty"`
}

type EventResponse struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	Key       string `json:"key,omitempty"`
	CreatedAt string `json:"created_at"`
}

type WhoAmIResponse struct {
	ActorID string `json:"actor_id"`
	Source  string `json:"source"`
}

// Mappers

func pactResponse(p domain.Pact) PactResponse {
	return PactResponse{
		ID:          p.ID,
		PartyA:      p.PartyA,
		PartyB:      p.PartyB,
		Status:      p.Status,
		Description: p.Description,
		CreatedAt:   p.CreatedAt,
	}
}

func mapPacts(in []domain.Pact) []PactResponse {
	out := make([]PactResponse, 0, len(in))
	for _, p := range in {
		out = append(out, pactResponse(p))
	}
	return out
}

func configResponse(cfg *config.Config) PactConfigResponse {
	return PactConfigResponse{
		PactID:       cfg.Pact.ID,
		Parties:      nonNilSlice(cfg.Pact.Parties),
		GateOwner:    cfg.Gate.Owner,
		Withdrawers:  nonNilSlice(cfg.Treasury.Withdrawers),
		VotingPeriod: cfg.Governance.VotingPeriod,
		Quorum:       cfg.Governance.Quorum,
	}
}

func operationResponse(op domain.Operation) OperationResponse {
	return OperationResponse{
		ID:         op.ID,
		PactID:     op.PactID,
		Proposer:   op.Proposer,
		Target:     op.Target,
		Value:      op.Value,
		Payload:    op.PayloadJSON,
		Approvals:  nonNilSlice(op.Approvals),
		Executed:   op.Executed,
		CreatedAt:  op.CreatedAt,
		ExecutedAt: op.ExecutedAt,
	}
}

func mapOperations(in []domain.Operation) []OperationResponse {
	out := make([]OperationResponse, 0, len(in))
	for _, op := range in {
		out = append(out, operationResponse(op))
	}
	return out
}

func ackResponse(a domain.Acknowledgment) AcknowledgmentResponse {
	return AcknowledgmentResponse{
		Hash:      a.Hash,
		Signer:    a.Signer,
		Target:    a.Target,
		Message:   a.Message,
		Signature: a.Signature,
		TS:        a.TS,
	}
}

func handshakeResponse(h domain.Handshake) HandshakeResponse {
	return HandshakeResponse{
		Hash:        h.Hash,
		PartyLow:    h.PartyLow,
		PartyHigh:   h.PartyHigh,
		Active:      h.Active,
		ActivatedAt: h.ActivatedAt,
	}
}

func taskResponse(t domain.Task) TaskResponse {
	return TaskResponse{
		ID:            t.ID,
		Creator:       t.Creator,
		Assignee:      t.Assignee,
		Assigner:      t.Assigner,
		Title:         t.Title,
		Description:   t.Description,
		PaymentAmount: t.PaymentAmount,
		Status:        t.Status,
		ReviewComment: t.ReviewComment,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
		AcceptedAt:    t.AcceptedAt,
	}
}

func mapTasks(in []domain.Task) []TaskResponse {
	out := make([]TaskResponse, 0, len(in))
	for _, t := range in {
		out = append(out, taskResponse(t))
	}
	return out
}

func proposalResponse(p domain.Proposal) ProposalResponse {
	return ProposalResponse{
		ID:           p.ID,
		Proposer:     p.Proposer,
		Description:  p.Description,
		Target:       p.Target,
		Value:        p.Value,
		ForVotes:     p.ForVotes,
		AgainstVotes: p.AgainstVotes,
		StartTime:    p.StartTime,
		EndTime:      p.EndTime,
		Executed:     p.Executed,
		Cancelled:    p.Cancelled,
	}
}

func mapProposals(in []domain.Proposal) []ProposalResponse {
	out := make([]ProposalResponse, 0, len(in))
	for _, p := range in {
		out = append(out, proposalResponse(p))
	}
	return out
}

func disputeResponse(d domain.Dispute) DisputeResponse {
	return DisputeResponse{
		ID:                   d.ID,
		Initiator:            d.Initiator,
		Counterparty:         d.Counterparty,
		Type:                 d.Type,
		RelatedID:            d.RelatedID,
		Description:          d.Description,
		InitiatorEvidence:    d.InitiatorEvidence,
		CounterpartyEvidence: d.CounterpartyEvidence,
		Status:               d.Status,
		Resolver:             d.Resolver,
		Resolution:           d.Resolution,
		CreatedAt:            d.CreatedAt,
		ResolvedAt:           d.ResolvedAt,
	}
}

func mapDisputes(in []domain.Dispute) []DisputeResponse {
	out := make([]DisputeResponse, 0, len(in))
	for _, d := range in {
		out = append(out, disputeResponse(d))
	}
	return out
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    e.Payload,
	}
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
