// Package errors provides domain-specific error types for the collect protocol.
// All error types support error unwrapping via errors.As() and errors.Is().
package errors

import (
	stdErrors "errors"
	"fmt"

	"github.com/reglet-dev/reglet-collect/domain/entities"
)

// Sentinels matched by the typed errors below through errors.Is.
var (
	ErrNullResult       = stdErrors.New("null result")
	ErrNullPointer      = stdErrors.New("null pointer")
	ErrOutOfBounds      = stdErrors.New("out of bounds")
	ErrDecode           = stdErrors.New("decode failure")
	ErrLayout           = stdErrors.New("layout violation")
	ErrMissingExport    = stdErrors.New("missing export")
	ErrInvalidUTF8      = stdErrors.New("payload is not valid UTF-8")
	ErrLeaseConsumed    = stdErrors.New("lease already read")
	ErrLeaseReleased    = stdErrors.New("lease already released")
	ErrLeaseOutstanding = stdErrors.New("previous lease not released")
)

// ErrorDetail is an alias to entities.ErrorDetail for convenience.
type ErrorDetail = entities.ErrorDetail

// DetailedError is an interface for custom error types that can convert themselves
// to a structured ErrorDetail.
type DetailedError interface {
	error
	ToErrorDetail() *entities.ErrorDetail
}

// ToErrorDetail converts a Go error to our structured ErrorDetail.
func ToErrorDetail(err error) *entities.ErrorDetail {
	if err == nil {
		return nil
	}

	var e *entities.ErrorDetail
	if stdErrors.As(err, &e) {
		return e
	}

	var de DetailedError
	if stdErrors.As(err, &de) {
		return de.ToErrorDetail()
	}

	// Lease discipline violations and anything else are internal.
	return &entities.ErrorDetail{
		Message: err.Error(),
		Type:    "internal",
	}
}

// NullResultError is returned when the guest entry point reports failure by returning 0.
type NullResultError struct {
	Export     string
	Capability int32
}

func (e *NullResultError) Error() string {
	return fmt.Sprintf("%s(%d) returned a null descriptor", e.Export, e.Capability)
}

func (e *NullResultError) Is(target error) bool { return target == ErrNullResult }

// ToErrorDetail implements DetailedError.
func (e *NullResultError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "guest", Code: "null_result"}
}

// NullPointerError is returned when a descriptor or payload address is 0.
type NullPointerError struct {
	Target string // "descriptor" or "payload"
}

func (e *NullPointerError) Error() string {
	return fmt.Sprintf("null %s pointer", e.Target)
}

func (e *NullPointerError) Is(target error) bool { return target == ErrNullPointer }

// ToErrorDetail implements DetailedError.
func (e *NullPointerError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "memory", Code: "null_pointer"}
}

// OutOfBoundsError is returned when an address, or an address plus length,
// exceeds the guest memory size observed at resolution time.
type OutOfBoundsError struct {
	Target     string
	Address    uint32
	Length     uint32
	MemorySize uint32
}

func (e *OutOfBoundsError) Error() string {
	return fmt.Sprintf("%s span [%d, %d) outside guest memory of %d bytes",
		e.Target, e.Address, uint64(e.Address)+uint64(e.Length), e.MemorySize)
}

func (e *OutOfBoundsError) Is(target error) bool { return target == ErrOutOfBounds }

// ToErrorDetail implements DetailedError.
func (e *OutOfBoundsError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{
		Message: e.Error(),
		Type:    "memory",
		Code:    "out_of_bounds",
		Details: map[string]any{
			"address":     e.Address,
			"length":      e.Length,
			"memory_size": e.MemorySize,
		},
	}
}

// DecodeError is returned when the payload encoding is malformed or the decoded
// bytes are not the expected text.
type DecodeError struct {
	Err   error
	Codec string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s decode failed: %v", e.Codec, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// ToErrorDetail implements DetailedError.
func (e *DecodeError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "decode", Code: e.Codec}
}

// LayoutError reports descriptor bytes that cannot be a valid descriptor.
type LayoutError struct {
	Reason string
}

func (e *LayoutError) Error() string {
	return "descriptor layout: " + e.Reason
}

func (e *LayoutError) Is(target error) bool { return target == ErrLayout }

// ToErrorDetail implements DetailedError.
func (e *LayoutError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "layout", Code: "invalid_descriptor"}
}

// ABIVersionError is returned at load time when the guest was built against a
// different descriptor layout version.
type ABIVersionError struct {
	Guest uint32
	Host  uint32
}

func (e *ABIVersionError) Error() string {
	return fmt.Sprintf("guest descriptor layout v%d does not match host v%d", e.Guest, e.Host)
}

func (e *ABIVersionError) Is(target error) bool { return target == ErrLayout }

// ToErrorDetail implements DetailedError.
func (e *ABIVersionError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "layout", Code: "abi_version"}
}

// MissingExportError is returned when a required guest export is absent.
type MissingExportError struct {
	Name string
	Kind string // "function" or "memory"
}

func (e *MissingExportError) Error() string {
	return fmt.Sprintf("guest does not export %s %q", e.Kind, e.Name)
}

func (e *MissingExportError) Is(target error) bool { return target == ErrMissingExport }

// ToErrorDetail implements DetailedError.
func (e *MissingExportError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "config", Code: "missing_export", IsNotFound: true}
}

// GuestCallError wraps a trap or engine failure while calling a guest export.
type GuestCallError struct {
	Err     error
	Export  string
	Timeout bool
}

func (e *GuestCallError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("guest call %s timed out: %v", e.Export, e.Err)
	}
	return fmt.Sprintf("guest call %s failed: %v", e.Export, e.Err)
}

func (e *GuestCallError) Unwrap() error { return e.Err }

// ToErrorDetail implements DetailedError.
func (e *GuestCallError) ToErrorDetail() *entities.ErrorDetail {
	detail := &entities.ErrorDetail{Message: e.Error(), Type: "guest", Code: e.Export}
	if e.Timeout {
		detail.Type = "timeout"
		detail.IsTimeout = true
	}
	return detail
}

// MemoryError represents a guest heap allocation failure.
type MemoryError struct {
	Requested int // Requested allocation size
	Current   int // Current total allocated
	Limit     int // Maximum allowed
}

func (e *MemoryError) Error() string {
	return fmt.Sprintf("memory allocation failed: requested %d bytes, current %d bytes, limit %d bytes",
		e.Requested, e.Current, e.Limit)
}

// ToErrorDetail implements DetailedError.
func (e *MemoryError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "internal", Code: "memory_limit"}
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Err   error
	Field string
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config validation failed for field '%s': %v", e.Field, e.Err)
	}
	return fmt.Sprintf("config validation failed: %v", e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *ConfigError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "config", Code: e.Field}
}

// SchemaError represents a schema generation error.
type SchemaError struct {
	Err  error
	Type string
}

func (e *SchemaError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("schema error for type %s: %v", e.Type, e.Err)
	}
	return fmt.Sprintf("schema error: %v", e.Err)
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *SchemaError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "validation", Code: "schema"}
}
