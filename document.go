package blogvault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Collection document names. Each collection is one whole JSON blob; writes
// replace the entire object.
const (
	postsDocument   = "posts.json"
	galleryDocument = "gallery.json"
	aboutDocument   = "about.json"
)

// Revision identifies the version of a document as of the last Load. Passing
// it back to Save turns the write into a conditional one: Save fails with
// ErrConflict when the stored document changed in between, which is how the
// read-modify-write cycles of the collection managers detect lost updates.
type Revision string

// AnyRevision makes Save unconditional. This is the posture of the original
// system: concurrent read-modify-write cycles can silently drop one side's
// update. Managers here always pass a real revision.
const AnyRevision Revision = ""

// DocumentStore persists whole collection documents as named objects.
//
// Load on a missing object writes def and returns it — callers never see a
// "not found" for a collection. Save fully overwrites the object's bytes.
type DocumentStore interface {
	Load(ctx context.Context, name string, def []byte) ([]byte, Revision, error)
	Save(ctx context.Context, name string, data []byte, rev Revision) (Revision, error)
}

// conflictRetries bounds how often a manager re-runs a read-modify-write
// cycle that lost a revision race.
const conflictRetries = 3

// withConflictRetry runs fn until it returns anything other than ErrConflict,
// at most conflictRetries times. fn must re-load the document on every call.
func withConflictRetry(fn func() error) error {
	var err error
	for i := 0; i < conflictRetries; i++ {
		err = fn()
		if !errors.Is(err, ErrConflict) {
			return err
		}
	}
	return err
}

// decodeDocument unmarshals a stored collection document. Malformed content
// is reported as ErrCorruptDocument so managers can log loudly and choose a
// fallback instead of crashing.
func decodeDocument(name string, data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorruptDocument, name, err)
	}
	return nil
}

// encodeDocument marshals a collection document with indentation, matching
// the layout the documents have always been stored in.
func encodeDocument(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}
