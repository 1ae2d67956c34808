package wireformat

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/reglet-dev/reglet-collect/domain/errors"
)

// LayoutVersion identifies the descriptor layout below. Guests report it
// through the abi_version export and hosts refuse modules that disagree.
const LayoutVersion uint32 = 1

// DescriptorSize is the exact wire size of a Descriptor.
const DescriptorSize = 8

// MaxPayloadLength is the largest encoded payload a descriptor can carry.
// One byte is kept back for the trailing terminator.
const MaxPayloadLength = math.MaxInt32 - 1

// Descriptor points at a payload inside guest linear memory.
//
// Wire layout (little-endian, no padding):
//
//	[0:4] offset int32
//	[4:8] length int32
type Descriptor struct {
	Offset int32
	Length int32
}

// ParseDescriptor decodes a descriptor from exactly DescriptorSize bytes.
func ParseDescriptor(src []byte) (Descriptor, error) {
	if len(src) != DescriptorSize {
		return Descriptor{}, &errors.LayoutError{
			Reason: fmt.Sprintf("descriptor needs %d bytes, got %d", DescriptorSize, len(src)),
		}
	}
	return Descriptor{
		Offset: int32(binary.LittleEndian.Uint32(src[0:4])), //nolint:gosec // G115: two's complement reinterpretation
		Length: int32(binary.LittleEndian.Uint32(src[4:8])), //nolint:gosec // G115: two's complement reinterpretation
	}, nil
}

// Put writes the descriptor into dst, which must be exactly DescriptorSize bytes.
func (d Descriptor) Put(dst []byte) error {
	if len(dst) != DescriptorSize {
		return &errors.LayoutError{
			Reason: fmt.Sprintf("descriptor needs %d bytes, got %d", DescriptorSize, len(dst)),
		}
	}
	binary.LittleEndian.PutUint32(dst[0:4], uint32(d.Offset)) //nolint:gosec // G115: two's complement reinterpretation
	binary.LittleEndian.PutUint32(dst[4:8], uint32(d.Length)) //nolint:gosec // G115: two's complement reinterpretation
	return nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (d Descriptor) MarshalBinary() ([]byte, error) {
	buf := make([]byte, DescriptorSize)
	if err := d.Put(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (d *Descriptor) UnmarshalBinary(data []byte) error {
	parsed, err := ParseDescriptor(data)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Validate checks the value invariants that hold independent of memory size.
func (d Descriptor) Validate() error {
	if d.Offset == 0 {
		return &errors.NullPointerError{Target: "payload"}
	}
	if d.Length < 0 {
		return &errors.LayoutError{Reason: fmt.Sprintf("negative payload length %d", d.Length)}
	}
	return nil
}

// Address returns the payload offset as an unsigned linear memory address.
func (d Descriptor) Address() uint32 {
	return uint32(d.Offset) //nolint:gosec // G115: wasm32 addresses are unsigned
}

// Size returns the payload length as an unsigned byte count.
func (d Descriptor) Size() uint32 {
	if d.Length < 0 {
		return 0
	}
	return uint32(d.Length)
}

// AllocSize is the size of the payload allocation, including the terminator.
func (d Descriptor) AllocSize() uint32 {
	return d.Size() + 1
}

func (d Descriptor) String() string {
	return fmt.Sprintf("Descriptor{offset: %d, length: %d}", d.Offset, d.Length)
}
