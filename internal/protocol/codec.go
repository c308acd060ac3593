package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ErrMalformedFrame is returned for input that is not a JSON object with a
// string "type" field, or whose body does not fit the declared type.
var ErrMalformedFrame = errors.New("malformed frame")

// Decode parses one raw frame.
func Decode(raw []byte) (Frame, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("%w: invalid json", ErrMalformedFrame)
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: not an object", ErrMalformedFrame)
	}
	t := root.Get("type")
	if t.Type != gjson.String || t.Str == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}

	var f Frame
	switch Type(t.Str) {
	case TypeAuth:
		f = &Auth{}
	case TypeRegister:
		f = &Register{}
	case TypeAuthResponse:
		f = &AuthResponse{}
	case TypeRegisterResponse:
		f = &RegisterResponse{}
	case TypeMessage:
		f = &Message{}
	case TypeGetChannelHistory:
		f = &GetChannelHistory{}
	case TypeChannelHistory:
		f = &ChannelHistory{}
	case TypeUserStatus:
		f = &UserStatus{}
	default:
		return &Unknown{Type: Type(t.Str), Raw: raw}, nil
	}

	if err := json.Unmarshal(raw, f); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedFrame, t.Str, err)
	}
	return f, nil
}

// Encode renders f as a JSON object with its "type" field set.
func Encode(f Frame) ([]byte, error) {
	if u, ok := f.(*Unknown); ok {
		return u.Raw, nil
	}
	body, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", f.FrameType(), err)
	}
	out, err := sjson.SetBytes(body, "type", string(f.FrameType()))
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", f.FrameType(), err)
	}
	return out, nil
}
