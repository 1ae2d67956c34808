package wireformat

import (
	"encoding/base64"
	"unicode/utf8"

	"github.com/reglet-dev/reglet-collect/domain/errors"
)

// PayloadCodec turns arbitrary bytes into a boundary-safe representation and back.
// Guest and host must be built against the same codec.
type PayloadCodec interface {
	Name() string
	Encode(src []byte) []byte
	Decode(src []byte) ([]byte, error)
}

// Base64 is the standard alphabet with padding.
var Base64 PayloadCodec = base64Codec{name: "base64", enc: base64.StdEncoding}

type base64Codec struct {
	enc  *base64.Encoding
	name string
}

func (c base64Codec) Name() string { return c.name }

func (c base64Codec) Encode(src []byte) []byte {
	dst := make([]byte, c.enc.EncodedLen(len(src)))
	c.enc.Encode(dst, src)
	return dst
}

func (c base64Codec) Decode(src []byte) ([]byte, error) {
	dst := make([]byte, c.enc.DecodedLen(len(src)))
	n, err := c.enc.Decode(dst, src)
	if err != nil {
		return nil, &errors.DecodeError{Codec: c.name, Err: err}
	}
	return dst[:n], nil
}

// DecodeText decodes src and requires the result to be valid UTF-8.
func DecodeText(codec PayloadCodec, src []byte) (string, error) {
	raw, err := codec.Decode(src)
	if err != nil {
		return "", err
	}
	return Text(codec, raw)
}

// Text converts already decoded bytes to a string, requiring valid UTF-8.
func Text(codec PayloadCodec, raw []byte) (string, error) {
	if !utf8.Valid(raw) {
		return "", &errors.DecodeError{Codec: codec.Name(), Err: errors.ErrInvalidUTF8}
	}
	return string(raw), nil
}
