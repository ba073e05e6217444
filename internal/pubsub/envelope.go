package pubsub

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Kind says how an envelope is addressed.
type Kind string

const (
	KindUser Kind = "user"
	KindRoom Kind = "room"
	KindAll  Kind = "all"
)

// Envelope carries one encoded websocket frame between processes. Frame is
// the JSON frame exactly as connections receive it.
type Envelope struct {
	Kind   Kind   `msgpack:"k"`
	Target string `msgpack:"t,omitempty"`
	Except string `msgpack:"x,omitempty"`
	Event  string `msgpack:"e"`
	Frame  []byte `msgpack:"f"`
	Origin string `msgpack:"o"`
}

// Marshal encodes the envelope for the wire.
func (e *Envelope) Marshal() ([]byte, error) {
	return msgpack.Marshal(e)
}

// UnmarshalEnvelope decodes and validates a wire envelope.
func UnmarshalEnvelope(body []byte) (*Envelope, error) {
	var env Envelope
	if err := msgpack.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	switch env.Kind {
	case KindUser, KindRoom:
		if env.Target == "" {
			return nil, fmt.Errorf("%s envelope without target", env.Kind)
		}
	case KindAll:
	default:
		return nil, fmt.Errorf("unknown envelope kind %q", env.Kind)
	}
	if len(env.Frame) == 0 {
		return nil, fmt.Errorf("envelope without frame")
	}
	return &env, nil
}
