package registry

import "fmt"

// OverflowPolicy decides what a bounded subscription does when its backlog is full.
type OverflowPolicy int

const (
	// OverflowDropOldest discards the oldest queued event to admit the new one.
	OverflowDropOldest OverflowPolicy = iota
	// OverflowDisconnect unsubscribes the slow consumer.
	OverflowDisconnect
)

func (p OverflowPolicy) String() string {
	switch p {
	case OverflowDropOldest:
		return "drop_oldest"
	case OverflowDisconnect:
		return "disconnect"
	default:
		return fmt.Sprintf("OverflowPolicy(%d)", int(p))
	}
}

// ParseOverflowPolicy maps the configuration spelling onto a policy.
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch s {
	case "", "drop_oldest":
		return OverflowDropOldest, nil
	case "disconnect":
		return OverflowDisconnect, nil
	default:
		return 0, fmt.Errorf("unknown overflow policy %q", s)
	}
}

// Option defines a functional configuration type for the Hub.
type Option func(*Hub)

// WithBacklogLimit sets the [BACKPRESSURE] threshold of every new subscription.
// Zero keeps subscriptions unbounded, which never drops an event for a live subscriber.
func WithBacklogLimit(limit int) Option {
	return func(h *Hub) {
		h.config.backlogLimit = limit
	}
}

// WithOverflowPolicy selects the behaviour of a bounded subscription when full.
func WithOverflowPolicy(p OverflowPolicy) Option {
	return func(h *Hub) {
		h.config.overflowPolicy = p
	}
}
