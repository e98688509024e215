// Package buffer provides bounded read/write cursors over caller-owned
// byte regions. Neither cursor allocates; all data lives in the region
// supplied by the caller.
package buffer

import "errors"

var (
	// ErrOutOfBounds is returned when a read would pass the end of the region.
	ErrOutOfBounds = errors.New("buffer: read out of bounds")

	// ErrOverflow is returned when a write would pass the end of the region.
	ErrOverflow = errors.New("buffer: write overflow")
)
