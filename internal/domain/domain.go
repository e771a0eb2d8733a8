package domain

// Pact is the deployment unit: it names the two gate parties and scopes every
// other entity.
type Pact struct {
	ID          string `json:"id"`
	PartyA      string `json:"party_a"`
	PartyB      string `json:"party_b"`
	Status      string `json:"status"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

// Operation is a gate-queued privileged call. It executes exactly once, after
// both parties have approved it.
type Operation struct {
	ID          int64    `json:"id"`
	PactID      string   `json:"pact_id"`
	Proposer    string   `json:"proposer"`
	Target      string   `json:"target"`
	Value       int64    `json:"value"`
	PayloadJSON string   `json:"payload_json,omitempty"`
	Approvals   []string `json:"approvals"`
	Executed    bool     `json:"executed"`
	CreatedAt   string   `json:"created_at" format:"date-time"`
	ExecutedAt  *string  `json:"executed_at,omitempty" format:"date-time"`
}

type Deposit struct {
	ID        int64  `json:"id"`
	PactID    string `json:"pact_id"`
	Depositor string `json:"depositor"`
	Amount    int64  `json:"amount"`
	TS        string `json:"ts" format:"date-time"`
}

type Withdrawal struct {
	ID        int64  `json:"id"`
	PactID    string `json:"pact_id"`
	Recipient string `json:"recipient"`
	Amount    int64  `json:"amount"`
	TS        string `json:"ts" format:"date-time"`
	Executed  bool   `json:"executed"`
}

// TreasurySummary carries the running totals; Balance is always
// TotalDeposits-TotalWithdrawals.
type TreasurySummary struct {
	PactID           string `json:"pact_id"`
	Balance          int64  `json:"balance"`
	TotalDeposits    int64  `json:"total_deposits"`
	TotalWithdrawals int64  `json:"total_withdrawals"`
}

// Account is a participant's external balance, credited by treasury
// withdrawals.
type Account struct {
	PactID      string `json:"pact_id"`
	Participant string `json:"participant"`
	Balance     int64  `json:"balance"`
	UpdatedAt   string `json:"updated_at" format:"date-time"`
}

// Acknowledgment is a signed statement by Signer about Target, keyed by the
// content hash of the whole tuple.
type Acknowledgment struct {
	Hash      string `json:"hash"`
	PactID    string `json:"pact_id"`
	Signer    string `json:"signer"`
	Target    string `json:"target"`
	Message   string `json:"message"`
	Signature string `json:"signature"`
	TS        string `json:"ts" format:"date-time"`
}

// Handshake is the synthesized mutual-acknowledgment fact between two
// participants, keyed by the hash of the canonical (low,high) pair.
type Handshake struct {
	Hash        string  `json:"hash"`
	PactID      string  `json:"pact_id"`
	PartyLow    string  `json:"party_low"`
	PartyHigh   string  `json:"party_high"`
	AckLowHash  string  `json:"ack_low_hash,omitempty"`
	AckHighHash string  `json:"ack_high_hash,omitempty"`
	Active      bool    `json:"active"`
	ActivatedAt *string `json:"activated_at,omitempty" format:"date-time"`
}

type Task struct {
	ID            int64   `json:"id"`
	PactID        string  `json:"pact_id"`
	Creator       string  `json:"creator"`
	Assignee      *string `json:"assignee,omitempty"`
	Assigner      *string `json:"assigner,omitempty"`
	Title         string  `json:"title"`
	Description   string  `json:"description"`
	PaymentAmount int64   `json:"payment_amount"`
	Status        string  `json:"status" enum:"created,assigned,in_progress,under_review,accepted,needs_revision,cancelled"`
	ReviewComment string  `json:"review_comment,omitempty"`
	CreatedAt     string  `json:"created_at" format:"date-time"`
	UpdatedAt     string  `json:"updated_at" format:"date-time"`
	AcceptedAt    *string `json:"accepted_at,omitempty" format:"date-time"`
}

type Proposal struct {
	ID           int64  `json:"id"`
	PactID       string `json:"pact_id"`
	Proposer     string `json:"proposer"`
	Description  string `json:"description"`
	Target       string `json:"target,omitempty"`
	Value        int64  `json:"value"`
	PayloadJSON  string `json:"payload_json,omitempty"`
	ForVotes     int64  `json:"for_votes"`
	AgainstVotes int64  `json:"against_votes"`
	StartTime    string `json:"start_time" format:"date-time"`
	EndTime      string `json:"end_time" format:"date-time"`
	Executed     bool   `json:"executed"`
	Cancelled    bool   `json:"cancelled"`
}

type Vote struct {
	ProposalID int64  `json:"proposal_id"`
	Voter      string `json:"voter"`
	Support    bool   `json:"support"`
	TS         string `json:"ts" format:"date-time"`
}

type Dispute struct {
	ID                   int64   `json:"id"`
	PactID               string  `json:"pact_id"`
	Initiator            string  `json:"initiator"`
	Counterparty         string  `json:"counterparty"`
	Type                 string  `json:"type"`
	RelatedID            int64   `json:"related_id"`
	Description          string  `json:"description"`
	InitiatorEvidence    string  `json:"initiator_evidence,omitempty"`
	CounterpartyEvidence string  `json:"counterparty_evidence,omitempty"`
	Status               string  `json:"status" enum:"created,evidence_submitted,under_review,resolved,cancelled"`
	Resolver             *string `json:"resolver,omitempty"`
	Resolution           string  `json:"resolution,omitempty"`
	CreatedAt            string  `json:"created_at" format:"date-time"`
	UpdatedAt            string  `json:"updated_at" format:"date-time"`
	ResolvedAt           *string `json:"resolved_at,omitempty" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	PactID     string `json:"pact_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// Task statuses.
const (
	TaskCreated       = "created"
	TaskAssigned      = "assigned"
	TaskInProgress    = "in_progress"
	TaskUnderReview   = "under_review"
	TaskAccepted      = "accepted"
	TaskNeedsRevision = "needs_revision"
	TaskCancelled     = "cancelled"
)

// Dispute statuses.
const (
	DisputeCreated           = "created"
	DisputeEvidenceSubmitted = "evidence_submitted"
	DisputeUnderReview       = "under_review"
	DisputeResolved          = "resolved"
	DisputeCancelled         = "cancelled"
)
