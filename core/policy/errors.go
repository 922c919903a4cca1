package policy

import "errors"

var (
	// ErrInvalidActionMask means a mask left {0, 1}, which is a masking defect
	ErrInvalidActionMask = errors.New("action mask outside {0, 1}")
	ErrShapeMismatch     = errors.New("shape mismatch")
	ErrNotImplemented    = errors.New("not implemented")
	ErrEmptyPath         = errors.New("path history is empty")
)
