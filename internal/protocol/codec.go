package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"ipg-server/internal/shared/errors"
)

// Envelope is a decoded frame whose payload is still in the codec's
// encoding.
type Envelope struct {
	Type MessageType
	Data []byte
}

// Codec converts between typed messages and websocket frames.
type Codec interface {
	Name() string
	// Binary reports whether frames are sent as binary messages.
	Binary() bool
	Marshal(t MessageType, payload any) ([]byte, error)
	Unmarshal(frame []byte) (Envelope, error)
	UnmarshalPayload(env Envelope, v any) error
}

// CodecByName selects a codec from the connection's encoding parameter.
// An empty name selects JSON.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSON{}, nil
	case "msgpack":
		return MsgPack{}, nil
	default:
		return nil, errors.Validationf("unsupported encoding %q", name)
	}
}

type jsonFrame struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type JSON struct{}

func (JSON) Name() string { return "json" }
func (JSON) Binary() bool { return false }

func (JSON) Marshal(t MessageType, payload any) ([]byte, error) {
	frame := jsonFrame{Type: t}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", t, err)
		}
		frame.Data = data
	}
	return json.Marshal(frame)
}

func (JSON) Unmarshal(data []byte) (Envelope, error) {
	var frame jsonFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return Envelope{}, errors.WrapValidation("could not parse the provided message", err)
	}
	if frame.Type == "" {
		return Envelope{}, errors.Validation("message has no type")
	}
	return Envelope{Type: frame.Type, Data: frame.Data}, nil
}

func (JSON) UnmarshalPayload(env Envelope, v any) error {
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return errors.Validationf("%s message has no data", env.Type)
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return errors.WrapValidation(fmt.Sprintf("invalid %s message", env.Type), err)
	}
	return nil
}

type msgpackFrame struct {
	Type MessageType        `msgpack:"type"`
	Data msgpack.RawMessage `msgpack:"data,omitempty"`
}

type MsgPack struct{}

func (MsgPack) Name() string { return "msgpack" }
func (MsgPack) Binary() bool { return true }

func (MsgPack) Marshal(t MessageType, payload any) ([]byte, error) {
	frame := msgpackFrame{Type: t}
	if payload != nil {
		data, err := msgpack.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", t, err)
		}
		frame.Data = data
	}
	return msgpack.Marshal(&frame)
}

func (MsgPack) Unmarshal(data []byte) (Envelope, error) {
	var frame msgpackFrame
	if err := msgpack.Unmarshal(data, &frame); err != nil {
		return Envelope{}, errors.WrapValidation("could not parse the provided message", err)
	}
	if frame.Type == "" {
		return Envelope{}, errors.Validation("message has no type")
	}
	return Envelope{Type: frame.Type, Data: frame.Data}, nil
}

func (MsgPack) UnmarshalPayload(env Envelope, v any) error {
	if len(env.Data) == 0 {
		return errors.Validationf("%s message has no data", env.Type)
	}
	if err := msgpack.Unmarshal(env.Data, v); err != nil {
		return errors.WrapValidation(fmt.Sprintf("invalid %s message", env.Type), err)
	}
	return nil
}
