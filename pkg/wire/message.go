// Package wire implements the JSON datagram envelope and the five typed
// message payloads exchanged between routers over UDP.
package wire

import (
	"encoding/json"
	"fmt"

	"github.com/mitchellh/mapstructure"
	"github.com/rhicks/simbgp/pkg/rerrors"
)

// Type is a message's type field: the five inbound types the dispatcher
// handles, plus the outbound-only "table" and "no route" replies.
type Type string

const (
	TypeHandshake Type = "handshake"
	TypeUpdate    Type = "update"
	TypeWithdraw  Type = "withdraw"
	TypeData      Type = "data"
	TypeDump      Type = "dump"
	TypeTable     Type = "table"
	TypeNoRoute   Type = "no route"
)

// Envelope is the outer JSON object every datagram carries.
type Envelope struct {
	Src  string          `json:"src"`
	Dst  string          `json:"dst"`
	Type Type            `json:"type"`
	Msg  json.RawMessage `json:"msg"`
}

// Decode parses a raw datagram into its envelope. Malformed JSON is
// ErrParse.
func Decode(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, fmt.Errorf("wire: %w: %v", rerrors.ErrParse, err)
	}
	return e, nil
}

// Encode serializes an envelope back to a datagram.
func Encode(e Envelope) ([]byte, error) {
	return json.Marshal(e)
}

// NewEnvelope builds an envelope around msg, JSON-encoding it into the Msg
// field.
func NewEnvelope(src, dst string, typ Type, msg any) (Envelope, error) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return Envelope{}, fmt.Errorf("wire: %w: %v", rerrors.ErrParse, err)
	}
	return Envelope{Src: src, Dst: dst, Type: typ, Msg: raw}, nil
}

// HandshakePayload is the empty {} body of a handshake message.
type HandshakePayload struct{}

// UpdatePayload is the {network, netmask, localpref, ASPath, origin,
// selfOrigin} body of an inbound update, or the {network, netmask, ASPath}
// stripped form of an outbound re-announcement.
type UpdatePayload struct {
	Network    string `json:"network" mapstructure:"network"`
	Netmask    string `json:"netmask" mapstructure:"netmask"`
	LocalPref  uint32 `json:"localpref,omitempty" mapstructure:"localpref"`
	ASPath     []int  `json:"ASPath" mapstructure:"ASPath"`
	Origin     string `json:"origin,omitempty" mapstructure:"origin"`
	SelfOrigin bool   `json:"selfOrigin,omitempty" mapstructure:"selfOrigin"`
}

// WithdrawEntry is one element of a withdraw message's array body.
type WithdrawEntry struct {
	Network string `json:"network" mapstructure:"network"`
	Netmask string `json:"netmask" mapstructure:"netmask"`
}

// DumpPayload is the empty {} body of a dump request.
type DumpPayload struct{}

// NoRoutePayload is the empty {} body of a "no route" reply.
type NoRoutePayload struct{}

// TableRow is one full route entry in a table response's msg array.
type TableRow struct {
	Network    string `json:"network" mapstructure:"network"`
	Netmask    string `json:"netmask" mapstructure:"netmask"`
	Peer       string `json:"peer" mapstructure:"peer"`
	LocalPref  uint32 `json:"localpref" mapstructure:"localpref"`
	ASPath     []int  `json:"ASPath" mapstructure:"ASPath"`
	Origin     string `json:"origin" mapstructure:"origin"`
	SelfOrigin bool   `json:"selfOrigin" mapstructure:"selfOrigin"`
}

// DecodeUpdate decodes an envelope's msg into an UpdatePayload by first
// unmarshaling the raw JSON into a generic map, then letting mapstructure
// fill the typed struct — the same two-step "dynamic JSON over a tagged
// variant" shape the reference implementation's Message.msg (a bare JSON
// Value) calls for, but decoded once into a concrete Go type instead of
// repeated ad hoc type assertions.
func DecodeUpdate(raw json.RawMessage) (UpdatePayload, error) {
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return UpdatePayload{}, fmt.Errorf("wire: %w: %v", rerrors.ErrParse, err)
	}
	var p UpdatePayload
	if err := decodeInto(generic, &p); err != nil {
		return UpdatePayload{}, err
	}
	return p, nil
}

// DecodeWithdraw decodes an envelope's msg into the array of withdrawn
// prefixes.
func DecodeWithdraw(raw json.RawMessage) ([]WithdrawEntry, error) {
	var generic []any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("wire: %w: %v", rerrors.ErrParse, err)
	}
	entries := make([]WithdrawEntry, len(generic))
	for i, item := range generic {
		if err := decodeInto(item, &entries[i]); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

func decodeInto(generic any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("wire: %w: %v", rerrors.ErrParse, err)
	}
	if err := dec.Decode(generic); err != nil {
		return fmt.Errorf("wire: %w: %v", rerrors.ErrParse, err)
	}
	return nil
}
