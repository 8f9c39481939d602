package image

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingInput is matched by every *MissingInputError.
	ErrMissingInput = errors.New("missing input")

	// ErrLayoutOverflow is matched by every *LayoutError.
	ErrLayoutOverflow = errors.New("layout overflow")
)

// MissingInputError names a required boot component or file which was not
// supplied.
type MissingInputError struct {
	Name string
}

func (e *MissingInputError) Error() string {
	return fmt.Sprintf("%s: required input not supplied", e.Name)
}

func (e *MissingInputError) Is(target error) bool { return target == ErrMissingInput }

// LayoutError describes a region which does not fit the image, its slot or
// collides with another region.
type LayoutError struct {
	Region string
	Reason string
}

func (e *LayoutError) Error() string {
	return fmt.Sprintf("%s: %s", e.Region, e.Reason)
}

func (e *LayoutError) Is(target error) bool { return target == ErrLayoutOverflow }
