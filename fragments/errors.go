package fragments

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfBounds is returned when a read or a framing offset
	// would extend past the end of the available data.
	ErrOutOfBounds = errors.New("out of bounds range specified")
	// ErrMissingFramingOffset is returned when a compact-format
	// container does not end with a well formed framing offset table.
	ErrMissingFramingOffset = errors.New("missing framing offset at the end of GVariant-encoded container")
)

// PaddingError is the error returned when a padding byte is not zero.
type PaddingError struct {
	// Byte is the offending padding byte.
	Byte byte
	// Offset is the position of the byte in the input.
	Offset int
}

func (e PaddingError) Error() string {
	return fmt.Sprintf("unexpected non-0 padding byte 0x%02x at offset %d", e.Byte, e.Offset)
}
