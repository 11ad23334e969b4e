package blogvault

import "errors"

// Sentinel errors returned by the document store, the image pipeline, and the
// collection managers. Callers match with errors.Is; the HTTP layer maps them
// to status codes in httpError.
var (
	// ErrNotFound is returned when a post, folder, or image id does not exist.
	ErrNotFound = errors.New("not found")

	// ErrStorageUnavailable wraps transport failures talking to the backing
	// object store. No write has happened when it is returned from Save.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrCorruptDocument is returned when a stored collection document is not
	// valid JSON. It is never auto-repaired; managers decide the fallback.
	ErrCorruptDocument = errors.New("corrupt document")

	// ErrConflict is returned by Save when the document changed since the
	// revision the caller loaded. Retry the whole read-modify-write cycle.
	ErrConflict = errors.New("document revision conflict")

	// ErrUnsupportedMediaType is returned for uploads outside the image
	// allow-list (jpeg, png, gif, webp).
	ErrUnsupportedMediaType = errors.New("unsupported media type")

	// ErrInvalidReorder is returned when a reorder request does not contain
	// exactly the ids currently in the folder.
	ErrInvalidReorder = errors.New("invalid reorder")
)
