package memutils

import "github.com/cockroachdb/errors"

var (
	// ErrOutOfMemory is returned when the heap provider cannot supply the bytes needed to satisfy
	// a request. The heap is left exactly as it was before the failed request.
	ErrOutOfMemory error = errors.New("out of memory")

	// ErrInvalidOption is returned when an allocator or provider is created with settings it
	// cannot honor
	ErrInvalidOption error = errors.New("invalid option")

	// PowerOfTwoError is the error returned from CheckPow2 or other methods if the number being tested is not a power of two
	PowerOfTwoError error = errors.New("number must be a power of two")
)
