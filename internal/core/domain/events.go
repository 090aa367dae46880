package domain

const (
	SupplyTopic      = "supply"
	RedemptionTopic  = "redemption"
	AttestationTopic = "attestation"
)

type EventType int

const (
	EventTypeUndefined EventType = iota
	EventTypeTokensMinted
	EventTypeTokensBurned
	EventTypePegEnforced
	EventTypeRedemptionUpdated
	EventTypeAttestationPublished
)

type Event interface {
	GetTopic() string
	GetType() EventType
}

type TokensMinted struct {
	Id        string
	Type      EventType
	Amount    string
	Reason    string
	Supply    string
	Timestamp int64
}

func (e TokensMinted) GetTopic() string   { return SupplyTopic }
func (e TokensMinted) GetType() EventType { return EventTypeTokensMinted }

type TokensBurned struct {
	Id        string
	Type      EventType
	Amount    string
	Reason    string
	Supply    string
	Timestamp int64
}

func (e TokensBurned) GetTopic() string   { return SupplyTopic }
func (e TokensBurned) GetType() EventType { return EventTypeTokensBurned }

// PegEnforced is emitted every time a mint is refused for lack of collateral.
type PegEnforced struct {
	Id          string
	Type        EventType
	TokenAmount string
	Locked      string
	Required    string
	Shortfall   string
	Timestamp   int64
}

func (e PegEnforced) GetTopic() string   { return SupplyTopic }
func (e PegEnforced) GetType() EventType { return EventTypePegEnforced }

type RedemptionUpdated struct {
	Id        string
	Type      EventType
	State     RedemptionState
	Reason    string
	Timestamp int64
}

func (e RedemptionUpdated) GetTopic() string   { return RedemptionTopic }
func (e RedemptionUpdated) GetType() EventType { return EventTypeRedemptionUpdated }

type AttestationPublished struct {
	Id              string
	Type            EventType
	IsFullyReserved bool
	ProducedAt      int64
}

func (e AttestationPublished) GetTopic() string   { return AttestationTopic }
func (e AttestationPublished) GetType() EventType { return EventTypeAttestationPublished }
