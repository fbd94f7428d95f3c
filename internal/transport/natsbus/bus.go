// Package natsbus is the only Bus implementation this repository ships,
// backing both transport/transport.go contracts with a single NATS
// connection: Fanout rides JetStream (a stream per subject gives
// at-least-once delivery that survives a broker restart), Direct rides
// core NATS request/reply (the client's reply inbox is the ephemeral
// address a caller embeds in each request).
//
// This package follows nats.go's own documented client idiom (see
// DESIGN.md for the dependency's grounding).
package natsbus

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/griddfs/griddfs/internal/griddfserr"
)

// Bus wraps a NATS connection and its JetStream context, implementing
// transport.Bus.
type Bus struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// Connect dials url and prepares a JetStream context. Storage nodes
// refuse to start if the initial connect fails; callers should treat a
// non-nil error here as fatal.
func Connect(url string) (*Bus, error) {
	conn, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: connect to %s: %v", griddfserr.ErrTransportFailure, url, err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: jetstream context: %v", griddfserr.ErrTransportFailure, err)
	}

	return &Bus{conn: conn, js: js}, nil
}

func (b *Bus) Close() error {
	b.conn.Close()
	return nil
}

// ensureStream creates a single-subject, file-backed stream for subject if
// one doesn't already exist, so Publish survives a broker restart.
func (b *Bus) ensureStream(subject string) error {
	streamName := streamNameFor(subject)
	if _, err := b.js.StreamInfo(streamName); err == nil {
		return nil
	}
	_, err := b.js.AddStream(&nats.StreamConfig{
		Name:      streamName,
		Subjects:  []string{subject},
		Storage:   nats.FileStorage,
		Retention: nats.LimitsPolicy,
		MaxAge:    24 * time.Hour,
	})
	if err != nil && err != nats.ErrStreamNameAlreadyInUse {
		return fmt.Errorf("%w: create stream %s: %v", griddfserr.ErrTransportFailure, streamName, err)
	}
	return nil
}

func streamNameFor(subject string) string {
	// JetStream stream names may not contain '.', unlike subjects.
	out := make([]byte, len(subject))
	for i := 0; i < len(subject); i++ {
		if subject[i] == '.' {
			out[i] = '_'
		} else {
			out[i] = subject[i]
		}
	}
	return "GRIDDFS_" + string(out)
}

// Publish ensures the backing stream exists and publishes payload to it.
func (b *Bus) Publish(ctx context.Context, subject string, payload []byte) error {
	if err := b.ensureStream(subject); err != nil {
		return err
	}
	_, err := b.js.Publish(subject, payload, nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("%w: publish %s: %v", griddfserr.ErrTransportFailure, subject, err)
	}
	return nil
}

// Subscribe binds a fresh durable JetStream consumer so this subscriber
// receives a full, independent copy of every message published to subject
// from the moment it first subscribes onward (every bound inbox gets
// every message at least once). Each call gets its own durable name, so N
// subscribers to the same subject each see every message, unlike a shared
// queue group.
func (b *Bus) Subscribe(subject string, handler func(payload []byte)) (func(), error) {
	if err := b.ensureStream(subject); err != nil {
		return nil, err
	}

	durable := "sub-" + uuid.NewString()[:8]
	sub, err := b.js.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
		_ = msg.Ack()
	}, nats.Durable(durable), nats.ManualAck(), nats.DeliverNew())
	if err != nil {
		return nil, fmt.Errorf("%w: subscribe %s: %v", griddfserr.ErrTransportFailure, subject, err)
	}

	return func() {
		_ = sub.Unsubscribe()
	}, nil
}

// Request issues a core-NATS request with a connection-owned ephemeral
// reply inbox, blocking until a reply arrives or ctx is done.
func (b *Bus) Request(ctx context.Context, subject string, payload []byte) ([]byte, error) {
	msg, err := b.conn.RequestWithContext(ctx, subject, payload)
	if err != nil {
		return nil, fmt.Errorf("%w: request %s: %v", griddfserr.ErrTransportFailure, subject, err)
	}
	return msg.Data, nil
}

// Reply subscribes to subject and publishes handler's return value back to
// each request's NATS-managed reply address, matching the Direct contract
// without the handler needing to know the reply address itself.
func (b *Bus) Reply(subject string, handler func(payload []byte) []byte) (func(), error) {
	sub, err := b.conn.Subscribe(subject, func(msg *nats.Msg) {
		if reply := handler(msg.Data); msg.Reply != "" {
			_ = b.conn.Publish(msg.Reply, reply)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("%w: reply-subscribe %s: %v", griddfserr.ErrTransportFailure, subject, err)
	}
	return func() {
		_ = sub.Unsubscribe()
	}, nil
}
