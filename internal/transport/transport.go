// Package transport states the two delivery contracts GridDFS's core
// depends on, independent of any specific broker: a fanout for block
// placement and a direct request/reply for block retrieval.
// internal/transport/natsbus provides the only implementation this
// repository ships, but nothing in internal/coordinator or
// internal/datanode imports NATS directly.
package transport

import "context"

// Fanout delivers one published message to every currently bound
// subscriber at least once, persistently across broker restarts. Ordering
// across distinct messages is not guaranteed.
type Fanout interface {
	// Publish fans payload out to every subscriber bound to subject at the
	// time of the publish; a subscriber that binds later does not receive
	// it. ctx only bounds the publish call itself.
	Publish(ctx context.Context, subject string, payload []byte) error
	// Subscribe registers handler to receive every message published to
	// subject from now on. Returns an Unsubscribe func.
	Subscribe(subject string, handler func(payload []byte)) (unsubscribe func(), err error)
}

// Direct is a client-owned request/reply contract: the requester embeds
// its own ephemeral reply address in the request and the responder
// publishes to exactly that address.
type Direct interface {
	// Request publishes payload to subject and waits up to the context
	// deadline for a single reply, addressed to a reply inbox this call
	// creates and tears down itself.
	Request(ctx context.Context, subject string, payload []byte) ([]byte, error)
	// Reply subscribes to subject and invokes handler for each request,
	// publishing handler's return value to the request's embedded reply
	// address. Returns an Unsubscribe func.
	Reply(subject string, handler func(payload []byte) []byte) (unsubscribe func(), err error)
}

// Bus composes both contracts behind one connection, matching how a
// single broker connection (NATS, in this repository) backs both.
type Bus interface {
	Fanout
	Direct
	Close() error
}
