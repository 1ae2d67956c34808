package host

import (
	"context"
	"fmt"
	"slices"

	"github.com/tetratelabs/wazero/api"

	"github.com/reglet-dev/reglet-collect/domain/errors"
	"github.com/reglet-dev/reglet-collect/wireformat"
)

// Lease owns one guest response until it is released. The payload can be
// read once, and Release hands both guest blocks back through the deallocate
// export exactly once.
type Lease struct {
	plugin   *PluginInstance
	addr     uint32
	read     bool
	released bool
}

// Address returns the descriptor address returned by collect.
func (l *Lease) Address() uint32 { return l.addr }

// Descriptor reads and validates the response descriptor.
func (l *Lease) Descriptor() (wireformat.Descriptor, error) {
	l.plugin.mu.Lock()
	defer l.plugin.mu.Unlock()

	if l.released {
		return wireformat.Descriptor{}, errors.ErrLeaseReleased
	}
	return ReadDescriptor(l.plugin.memory, l.addr)
}

// Response is a decoded collect response.
type Response struct {
	// Encoded is a copy of the payload as the guest wrote it.
	Encoded []byte

	// Data is the decoded payload.
	Data []byte

	Descriptor wireformat.Descriptor
	Address    uint32
}

// Response resolves the descriptor and payload and decodes the payload.
// Response and Read share a single use per lease.
func (l *Lease) Response() (Response, error) {
	l.plugin.mu.Lock()
	defer l.plugin.mu.Unlock()

	if l.released {
		return Response{}, errors.ErrLeaseReleased
	}
	if l.read {
		return Response{}, errors.ErrLeaseConsumed
	}
	l.read = true

	desc, err := ReadDescriptor(l.plugin.memory, l.addr)
	if err != nil {
		return Response{}, err
	}
	span, err := PayloadSpan(l.plugin.memory, desc)
	if err != nil {
		return Response{}, err
	}
	encoded := slices.Clone(span.Bytes())
	data, err := l.plugin.codec.Decode(encoded)
	if err != nil {
		return Response{}, err
	}
	l.plugin.logger.Debug("payload read", "descriptor_addr", l.addr, "offset", desc.Offset, "length", desc.Length)
	return Response{Address: l.addr, Descriptor: desc, Encoded: encoded, Data: data}, nil
}

// Read resolves and decodes the payload. It may be called once per lease.
func (l *Lease) Read() ([]byte, error) {
	resp, err := l.Response()
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// Text reads the payload and returns it as a UTF-8 string.
func (l *Lease) Text() (string, error) {
	data, err := l.Read()
	if err != nil {
		return "", err
	}
	return wireformat.Text(l.plugin.codec, data)
}

// Release calls the guest's deallocate export for this response. A second
// call returns ErrLeaseReleased without reaching the guest.
func (l *Lease) Release(ctx context.Context) error {
	p := l.plugin
	p.mu.Lock()
	defer p.mu.Unlock()

	if l.released {
		return errors.ErrLeaseReleased
	}
	l.released = true
	if p.active == l {
		p.active = nil
	}

	if _, err := p.call(ctx, p.deallocate, p.exports.Deallocate, api.EncodeU32(l.addr)); err != nil {
		return fmt.Errorf("release response at %d: %w", l.addr, err)
	}
	p.stats.Deallocates++
	p.logger.Debug("response released", "descriptor_addr", l.addr)
	return nil
}
