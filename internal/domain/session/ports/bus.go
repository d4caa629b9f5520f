package ports

import "context"

// Bus carries change signals between the manager and progress observers.
// Payloads are opaque bytes so the transport can cross process boundaries.
type Bus interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(ctx context.Context, topic string) (Subscription, error)
}

type Subscription interface {
	C() <-chan []byte
	Close() error
}

// SessionTopic is the bus topic carrying change signals for one session.
func SessionTopic(id string) string {
	return "session." + id
}
