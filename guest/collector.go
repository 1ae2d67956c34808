// Package guest implements the plugin side of the collect protocol: it turns
// a logical payload into an encoded buffer plus a descriptor in linear memory,
// and releases both when the host is done reading.
//
// The wasm exports live in exports_wasip1.go; everything else builds natively
// so the protocol can be tested against a heap over a plain byte slice.
package guest

import (
	"fmt"
	"log/slog"

	"github.com/reglet-dev/reglet-collect/domain/ports"
	"github.com/reglet-dev/reglet-collect/wireformat"
)

// Source produces the logical payload for a capability.
type Source interface {
	Produce(capability int32) ([]byte, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(capability int32) ([]byte, error)

// Produce implements Source.
func (f SourceFunc) Produce(capability int32) ([]byte, error) {
	return f(capability)
}

// Option configures a Collector.
type Option func(*Collector)

// WithCodec sets the payload codec. It must match the host's codec.
func WithCodec(codec wireformat.PayloadCodec) Option {
	return func(c *Collector) {
		c.codec = codec
	}
}

// WithLogger sets the logger used for diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Collector) {
		c.logger = logger
	}
}

// Collector builds collect responses on a guest heap.
type Collector struct {
	heap   ports.Allocator
	source Source
	codec  wireformat.PayloadCodec
	logger *slog.Logger
}

// NewCollector creates a collector that allocates on heap and reads payloads from source.
func NewCollector(heap ports.Allocator, source Source, opts ...Option) *Collector {
	c := &Collector{
		heap:   heap,
		source: source,
		codec:  wireformat.Base64,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Collect produces the payload for capability and returns the address of its
// descriptor, or 0 if anything fails. Nothing stays allocated on failure.
func (c *Collector) Collect(capability int32) uint32 {
	addr, err := c.collect(capability)
	if err != nil {
		c.logger.Error("collect failed", "capability", capability, "error", err)
		return 0
	}
	return addr
}

func (c *Collector) collect(capability int32) (uint32, error) {
	raw, err := c.source.Produce(capability)
	if err != nil {
		return 0, fmt.Errorf("produce payload: %w", err)
	}

	encoded := c.codec.Encode(raw)
	if len(encoded) > wireformat.MaxPayloadLength {
		return 0, fmt.Errorf("encoded payload of %d bytes exceeds descriptor limit", len(encoded))
	}
	desc := wireformat.Descriptor{Length: int32(len(encoded))} //nolint:gosec // G115: bounded above

	payloadAddr, err := c.heap.Alloc(desc.AllocSize())
	if err != nil {
		return 0, fmt.Errorf("allocate payload: %w", err)
	}
	buf, err := c.heap.Bytes(payloadAddr, desc.AllocSize())
	if err != nil {
		c.free(payloadAddr, "payload")
		return 0, err
	}
	n := copy(buf, encoded)
	buf[n] = 0
	desc.Offset = int32(payloadAddr) //nolint:gosec // G115: wasm32 addresses round-trip through int32

	descAddr, err := c.heap.Alloc(wireformat.DescriptorSize)
	if err != nil {
		c.free(payloadAddr, "payload")
		return 0, fmt.Errorf("allocate descriptor: %w", err)
	}
	dst, err := c.heap.Bytes(descAddr, wireformat.DescriptorSize)
	if err == nil {
		err = desc.Put(dst)
	}
	if err != nil {
		c.free(descAddr, "descriptor")
		c.free(payloadAddr, "payload")
		return 0, err
	}

	c.logger.Debug("collect response ready",
		"descriptor_addr", descAddr,
		"payload_addr", payloadAddr,
		"length", desc.Length,
		"codec", c.codec.Name())
	return descAddr, nil
}

// Deallocate releases the descriptor at addr and the payload it points to.
// A zero address is a no-op.
func (c *Collector) Deallocate(addr uint32) {
	if addr == 0 {
		return
	}

	view, err := c.heap.Bytes(addr, wireformat.DescriptorSize)
	if err != nil {
		c.logger.Error("deallocate: unknown descriptor", "addr", addr, "error", err)
		return
	}
	desc, err := wireformat.ParseDescriptor(view)
	if err != nil {
		c.logger.Error("deallocate: unreadable descriptor", "addr", addr, "error", err)
		return
	}

	if size, err := c.heap.BlockSize(desc.Address()); err == nil && size != desc.AllocSize() {
		c.logger.Warn("deallocate: descriptor length disagrees with payload block",
			"addr", addr, "length", desc.Length, "block_size", size)
	}

	c.free(desc.Address(), "payload")
	c.free(addr, "descriptor")
	c.logger.Debug("collect response released", "descriptor_addr", addr)
}

func (c *Collector) free(addr uint32, what string) {
	if err := c.heap.Free(addr); err != nil {
		c.logger.Error("free failed", "block", what, "addr", addr, "error", err)
	}
}
