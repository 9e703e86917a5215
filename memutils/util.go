package memutils

import (
	cerrors "github.com/cockroachdb/errors"
	"golang.org/x/exp/constraints"
)

// CheckPow2 returns an error wrapping PowerOfTwoError if number is not a power of two. name is
// used to identify the offending value in the error message.
func CheckPow2[T constraints.Integer](number T, name string) error {
	if number <= 0 || number&(number-1) != 0 {
		return cerrors.Wrapf(PowerOfTwoError, "%s is %d", name, number)
	}
	return nil
}

// CheckAligned returns an error wrapping ErrInvalidOption if value is not a positive multiple
// of alignment. If alignment is not a power of two, an error wrapping PowerOfTwoError is
// returned instead.
func CheckAligned[T constraints.Integer](value T, alignment T, name string) error {
	err := CheckPow2(alignment, "alignment")
	if err != nil {
		return err
	}

	if value <= 0 || value&(alignment-1) != 0 {
		return cerrors.Wrapf(ErrInvalidOption, "%s is %d, which is not a positive multiple of %d", name, value, alignment)
	}
	return nil
}

// AlignUp rounds value up to the next multiple of alignment, which must be a power of two
func AlignUp[T constraints.Integer](value T, alignment T) T {
	return (value + alignment - 1) &^ (alignment - 1)
}

// IsAligned reports whether value is a multiple of alignment, which must be a power of two
func IsAligned[T constraints.Integer](value T, alignment T) bool {
	return value&(alignment-1) == 0
}

// Max returns the larger of a and b
func Max[T constraints.Integer](a, b T) T {
	if a > b {
		return a
	}
	return b
}

// Min returns the smaller of a and b
func Min[T constraints.Integer](a, b T) T {
	if a < b {
		return a
	}
	return b
}
