package allocator

import "errors"

// Sentinel error kinds per spec.md §7. Library code wraps these with
// fmt.Errorf("...: %w", ...) for context; callers should compare with
// errors.Is.
var (
	ErrUninitialized      = errors.New("allocator: not initialized")
	ErrAlreadyInitialized = errors.New("allocator: already initialized")
	ErrInvalidArgument    = errors.New("allocator: invalid argument")
	ErrExhausted          = errors.New("allocator: central heap exhausted")
	ErrOutOfHostMemory    = errors.New("allocator: out of host memory")
	ErrDuplicate          = errors.New("allocator: duplicate slab index entry")
	ErrUnavailable        = errors.New("allocator: extent unavailable")
	ErrMismatch           = errors.New("allocator: size class mismatch on restore")
	ErrOutOfRange         = errors.New("allocator: block index out of range")
)
