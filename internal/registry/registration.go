package registry

import "time"

// SquadSize is the exact number of mentioned players a submission must carry.
// The leader is the submitting user and is not counted among them.
const SquadSize = 4

// Status is the lifecycle position of a live registration. Terminal outcomes
// (expired, payment timeout, rejected, cancelled) are not statuses: the record
// is removed from the store and only the audit trail remains.
type Status int

const (
	StatusPending Status = iota
	StatusPaymentPending
	StatusConfirmed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusPaymentPending:
		return "payment_pending"
	case StatusConfirmed:
		return "confirmed"
	default:
		return "unknown"
	}
}

// Reason classifies why a registration left the store.
type Reason string

const (
	ReasonExpired        Reason = "expired"
	ReasonPaymentTimeout Reason = "payment_timeout"
	ReasonRejected       Reason = "rejected"
	ReasonCancelled      Reason = "cancelled"
)

// Registration is one candidate or confirmed squad entry. The store owns all
// instances; callers only ever see copies and mutate through engine
// operations.
type Registration struct {
	ID        int64             `json:"reg_id"`
	MessageID string            `json:"message_id"`
	LobbyKey  string            `json:"lobby_key"`
	TeamName  string            `json:"team_name"`
	LeaderID  string            `json:"leader_id"`
	PlayerIDs [SquadSize]string `json:"player_ids"`
	MatchType string            `json:"match_type,omitempty"`
	EntryFee  int               `json:"entry_fee,omitempty"`
	Status    Status            `json:"-"`
	CreatedAt time.Time         `json:"created_at"`
}

// StatusLabel is the wire form of Status, for the dashboard and CSV export.
func (r *Registration) StatusLabel() string { return r.Status.String() }

func (r *Registration) clone() *Registration {
	cp := *r
	return &cp
}

// MatchType is a competition tier within a lobby. A type with a single fee
// reserves a slot as soon as it is picked; multiple fees trigger a fee
// sub-choice first.
type MatchType struct {
	Key   string
	Label string
	Fees  []int
}

func (m MatchType) HasFee(fee int) bool {
	for _, f := range m.Fees {
		if f == fee {
			return true
		}
	}
	return false
}
