package progress

import (
	"github.com/nats-io/nats.go"
)

// Bus is the publish/subscribe surface the WebSocket bridge and the
// trackers share.
type Bus interface {
	Publisher
	Subscribe(subject string, handler func(data []byte)) (func(), error)
}

// NATSBus adapts a NATS connection. A nil connection publishes into
// the void and refuses subscriptions, so the service keeps working
// without a broker, just without live progress.
type NATSBus struct {
	conn *nats.Conn
}

func NewNATSBus(conn *nats.Conn) *NATSBus {
	return &NATSBus{conn: conn}
}

func (b *NATSBus) Publish(subject string, data []byte) error {
	if b.conn == nil {
		return nil
	}
	return b.conn.Publish(subject, data)
}

func (b *NATSBus) Subscribe(subject string, handler func(data []byte)) (func(), error) {
	if b.conn == nil {
		return nil, nats.ErrConnectionClosed
	}
	sub, err := b.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return nil, err
	}
	return func() { _ = sub.Unsubscribe() }, nil
}
