package host

import (
	"github.com/reglet-dev/reglet-collect/domain/errors"
	"github.com/reglet-dev/reglet-collect/domain/ports"
)

// Span is a borrowed, read-only view of guest memory. It aliases the guest's
// buffer and must not be used after the guest runs again.
type Span struct {
	data    []byte
	Address uint32
}

// Bytes returns the view. Callers must not modify or retain it.
func (s Span) Bytes() []byte { return s.data }

// Len returns the number of bytes in the span.
func (s Span) Len() int { return len(s.data) }

// Resolve validates [addr, addr+length) against the current size of mem and
// returns a view of it. The size and the view are fetched on every call,
// since memory can grow, and move, between guest calls.
func Resolve(mem ports.Memory, target string, addr, length uint32) (Span, error) {
	if addr == 0 {
		return Span{}, &errors.NullPointerError{Target: target}
	}

	size := mem.Size()
	if addr >= size || uint64(addr)+uint64(length) > uint64(size) {
		return Span{}, &errors.OutOfBoundsError{
			Target:     target,
			Address:    addr,
			Length:     length,
			MemorySize: size,
		}
	}

	view, ok := mem.Read(addr, length)
	if !ok {
		return Span{}, &errors.OutOfBoundsError{
			Target:     target,
			Address:    addr,
			Length:     length,
			MemorySize: size,
		}
	}
	return Span{Address: addr, data: view[:length:length]}, nil
}
