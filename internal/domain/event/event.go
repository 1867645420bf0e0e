package event

type EventKind int16

const (
	PostCreated EventKind = iota + 1 // [BUSINESS]
)

func (k EventKind) String() string {
	switch k {
	case PostCreated:
		return "PostCreated"
	default:
		return "EventKind(unknown)"
	}
}

// Eventer defines the contract for all data packets flowing through the Hub.
type Eventer interface {
	GetID() string
	GetTraceID() string
	GetKind() EventKind
	GetTopic() string
	GetOccurredAt() int64
	GetPayload() any
	GetCached() any
	SetCached(any)
}
