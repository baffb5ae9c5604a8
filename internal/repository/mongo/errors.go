package mongo

import (
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// isNoDocuments checks if an error indicates no document matched.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// activeEmailIndex is the partial unique index allowing one Active key per
// email.
const activeEmailIndex = "active_email"

// isActiveEmailViolation reports whether err comes from a second Active key
// for the same email. The server names the violated index in the message.
func isActiveEmailViolation(err error) bool {
	return mongo.IsDuplicateKeyError(err) && strings.Contains(err.Error(), activeEmailIndex)
}

// objectID parses a hex identifier. Malformed ids cannot match any document,
// so callers map the error to their not-found sentinel.
func objectID(id string) (primitive.ObjectID, bool) {
	oid, err := primitive.ObjectIDFromHex(id)
	return oid, err == nil
}
