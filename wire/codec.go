package wire

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrMalformed is returned (wrapped) for any payload that does not decode
// to exactly one well-formed envelope.
var ErrMalformed = errors.New("malformed message")

// Envelope field numbers. The payload of kind k lives in field
// payloadFieldBase+k so exactly one of them may be present.
const (
	fieldEnvelopeID        protowire.Number = 1
	fieldEnvelopeOrigin    protowire.Number = 2
	fieldEnvelopeTimestamp protowire.Number = 3
	payloadFieldBase       protowire.Number = 10
)

// wrongType is reported by the field helpers when the wire type does not
// match what the field requires.
const wrongType = -100

// Encode serializes an envelope.
func Encode(env Envelope) ([]byte, error) {
	if env.Payload == nil {
		return nil, fmt.Errorf("encode envelope %d: nil payload", env.ID)
	}
	body, err := encodePayload(env.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode envelope %d: %w", env.ID, err)
	}

	b := make([]byte, 0, 24+len(body))
	b = protowire.AppendTag(b, fieldEnvelopeID, protowire.VarintType)
	b = protowire.AppendVarint(b, env.ID)
	b = protowire.AppendTag(b, fieldEnvelopeOrigin, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(env.Origin))
	b = protowire.AppendTag(b, fieldEnvelopeTimestamp, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(env.TimestampMillis))
	b = protowire.AppendTag(b, payloadFieldBase+protowire.Number(env.Payload.Kind()), protowire.BytesType)
	b = protowire.AppendBytes(b, body)
	return b, nil
}

// Decode parses an envelope produced by Encode.
func Decode(b []byte) (Envelope, error) {
	var env Envelope
	var origin uint64
	var ts uint64
	err := eachField(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch {
		case num == fieldEnvelopeID:
			return consumeVarint(typ, b, &env.ID)
		case num == fieldEnvelopeOrigin:
			return consumeVarint(typ, b, &origin)
		case num == fieldEnvelopeTimestamp:
			return consumeVarint(typ, b, &ts)
		case num > payloadFieldBase && num <= payloadFieldBase+protowire.Number(KindTransfer):
			if env.Payload != nil {
				return wrongType
			}
			var body []byte
			n := consumeBytes(typ, b, &body)
			if n < 0 {
				return n
			}
			msg, err := decodePayload(Kind(num-payloadFieldBase), body)
			if err != nil {
				return wrongType
			}
			env.Payload = msg
			return n
		}
		return 0
	})
	if err != nil {
		return Envelope{}, err
	}
	if env.Payload == nil {
		return Envelope{}, fmt.Errorf("%w: no payload", ErrMalformed)
	}
	if origin > math.MaxUint32 {
		return Envelope{}, fmt.Errorf("%w: origin out of range", ErrMalformed)
	}
	env.Origin = Address(origin)
	env.TimestampMillis = protowire.DecodeZigZag(ts)
	return env, nil
}

func encodePayload(m Message) ([]byte, error) {
	var b []byte
	switch msg := m.(type) {
	case Ping:
		b = appendFloat(b, 1, msg.DeliveryProbability)
	case ReplicaAnnounce, ElectionRequest:
		b = []byte{}
	case ModeChange:
		b = appendUint(b, 1, uint64(msg.OldReplicator))
		b = appendUint(b, 2, uint64(msg.NewReplicator))
	case ElectionFitness:
		b = appendFloat(b, 1, msg.Fitness)
	case Store:
		b = appendItem(b, 1, msg.Item)
	case LookupRequest:
		b = appendUint(b, 1, msg.ContentID)
		b = appendUint(b, 2, uint64(msg.Requestor))
		b = appendFloat(b, 3, msg.Sigma)
	case LookupResponse:
		b = appendUint(b, 1, msg.RequestID)
		b = appendItem(b, 2, msg.Item)
	case Transfer:
		b = []byte{}
		for _, item := range msg.Items {
			b = appendItem(b, 1, item)
		}
	default:
		return nil, fmt.Errorf("unsupported payload %T", m)
	}
	return b, nil
}

func decodePayload(kind Kind, b []byte) (Message, error) {
	switch kind {
	case KindPing:
		var msg Ping
		err := eachField(b, floatField(1, &msg.DeliveryProbability))
		return msg, err
	case KindReplicaAnnounce:
		return ReplicaAnnounce{}, eachField(b, skipAll)
	case KindElectionRequest:
		return ElectionRequest{}, eachField(b, skipAll)
	case KindModeChange:
		var oldAddr, newAddr uint64
		err := eachField(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
			switch num {
			case 1:
				return consumeVarint(typ, b, &oldAddr)
			case 2:
				return consumeVarint(typ, b, &newAddr)
			}
			return 0
		})
		return ModeChange{OldReplicator: Address(oldAddr), NewReplicator: Address(newAddr)}, err
	case KindElectionFitness:
		var msg ElectionFitness
		err := eachField(b, floatField(1, &msg.Fitness))
		return msg, err
	case KindStore:
		var msg Store
		err := eachField(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
			if num == 1 {
				return consumeItem(typ, b, &msg.Item)
			}
			return 0
		})
		return msg, err
	case KindLookupRequest:
		var msg LookupRequest
		var requestor uint64
		err := eachField(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
			switch num {
			case 1:
				return consumeVarint(typ, b, &msg.ContentID)
			case 2:
				return consumeVarint(typ, b, &requestor)
			case 3:
				return consumeFloat(typ, b, &msg.Sigma)
			}
			return 0
		})
		msg.Requestor = Address(requestor)
		return msg, err
	case KindLookupResponse:
		var msg LookupResponse
		err := eachField(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
			switch num {
			case 1:
				return consumeVarint(typ, b, &msg.RequestID)
			case 2:
				return consumeItem(typ, b, &msg.Item)
			}
			return 0
		})
		return msg, err
	case KindTransfer:
		var msg Transfer
		err := eachField(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
			if num != 1 {
				return 0
			}
			var item ContentItem
			n := consumeItem(typ, b, &item)
			if n > 0 {
				msg.Items = append(msg.Items, item)
			}
			return n
		})
		return msg, err
	}
	return nil, fmt.Errorf("%w: unknown kind %d", ErrMalformed, kind)
}

// eachField walks the fields of b. fn returns the number of bytes it
// consumed, 0 to skip an unknown field, or a negative protowire error code.
func eachField(b []byte, fn func(num protowire.Number, typ protowire.Type, b []byte) int) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]
		m := fn(num, typ, b)
		if m == 0 {
			m = protowire.ConsumeFieldValue(num, typ, b)
		}
		if m == wrongType {
			return fmt.Errorf("%w: field %d has unexpected type or content", ErrMalformed, num)
		}
		if m < 0 {
			return fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(m))
		}
		b = b[m:]
	}
	return nil
}

func skipAll(protowire.Number, protowire.Type, []byte) int { return 0 }

func floatField(want protowire.Number, dst *float64) func(protowire.Number, protowire.Type, []byte) int {
	return func(num protowire.Number, typ protowire.Type, b []byte) int {
		if num == want {
			return consumeFloat(typ, b, dst)
		}
		return 0
	}
}

func consumeVarint(typ protowire.Type, b []byte, dst *uint64) int {
	if typ != protowire.VarintType {
		return wrongType
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return n
	}
	*dst = v
	return n
}

func consumeFloat(typ protowire.Type, b []byte, dst *float64) int {
	if typ != protowire.Fixed64Type {
		return wrongType
	}
	v, n := protowire.ConsumeFixed64(b)
	if n < 0 {
		return n
	}
	*dst = math.Float64frombits(v)
	return n
}

func consumeBytes(typ protowire.Type, b []byte, dst *[]byte) int {
	if typ != protowire.BytesType {
		return wrongType
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return n
	}
	*dst = v
	return n
}

func consumeItem(typ protowire.Type, b []byte, dst *ContentItem) int {
	var body []byte
	n := consumeBytes(typ, b, &body)
	if n < 0 {
		return n
	}
	var item ContentItem
	var owner uint64
	err := eachField(body, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			return consumeVarint(typ, b, &item.ID)
		case 2:
			return consumeVarint(typ, b, &owner)
		case 3:
			var payload []byte
			m := consumeBytes(typ, b, &payload)
			if m > 0 {
				item.Payload = make([]byte, len(payload))
				copy(item.Payload, payload)
			}
			return m
		}
		return 0
	})
	if err != nil || owner > math.MaxUint32 {
		return wrongType
	}
	item.Owner = Address(owner)
	*dst = item
	return n
}

func appendUint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendFloat(b []byte, num protowire.Number, v float64) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(v))
}

func appendItem(b []byte, num protowire.Number, item ContentItem) []byte {
	var body []byte
	body = appendUint(body, 1, item.ID)
	body = appendUint(body, 2, uint64(item.Owner))
	// A nil payload is omitted; an empty one is written so it decodes as empty.
	if item.Payload != nil {
		body = protowire.AppendTag(body, 3, protowire.BytesType)
		body = protowire.AppendBytes(body, item.Payload)
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, body)
}
