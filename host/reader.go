package host

import (
	"github.com/reglet-dev/reglet-collect/domain/ports"
	"github.com/reglet-dev/reglet-collect/wireformat"
)

// ReadDescriptor resolves and decodes the descriptor at addr.
func ReadDescriptor(mem ports.Memory, addr uint32) (wireformat.Descriptor, error) {
	span, err := Resolve(mem, "descriptor", addr, wireformat.DescriptorSize)
	if err != nil {
		return wireformat.Descriptor{}, err
	}
	desc, err := wireformat.ParseDescriptor(span.Bytes())
	if err != nil {
		return wireformat.Descriptor{}, err
	}
	if err := desc.Validate(); err != nil {
		return wireformat.Descriptor{}, err
	}
	return desc, nil
}

// PayloadSpan resolves the encoded payload referenced by desc. The terminator
// byte after the payload is not part of the span.
func PayloadSpan(mem ports.Memory, desc wireformat.Descriptor) (Span, error) {
	if err := desc.Validate(); err != nil {
		return Span{}, err
	}
	return Resolve(mem, "payload", desc.Address(), desc.Size())
}

// ReadPayload resolves the payload referenced by desc and decodes it with codec.
// The result is a fresh slice and stays valid after the guest runs again.
func ReadPayload(mem ports.Memory, desc wireformat.Descriptor, codec wireformat.PayloadCodec) ([]byte, error) {
	span, err := PayloadSpan(mem, desc)
	if err != nil {
		return nil, err
	}
	return codec.Decode(span.Bytes())
}
