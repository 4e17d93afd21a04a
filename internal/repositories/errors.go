package repositories

import (
	"errors"

	"github.com/samber/oops"
	"go.mongodb.org/mongo-driver/mongo"
)

var (
	// ErrNotFound indicates the requested document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrDuplicate indicates a unique index rejected the write.
	ErrDuplicate = errors.New("duplicate key")
)

// wrap translates driver errors into repository sentinels and attaches oops context
// to everything else.
func wrap(err error, op string, kv ...any) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return ErrDuplicate
	default:
		return oops.In("repository").Code("STORE_FAILURE").With("op", op).With(kv...).Wrap(err)
	}
}
