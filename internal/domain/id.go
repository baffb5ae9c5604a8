package domain

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// IDLength is the length of a hex-encoded record identifier.
const IDLength = 24

// NewID returns a new 24-character hex identifier.
// Identifiers use the MongoDB ObjectID layout on every backend so that keys
// issued against one store stay valid after a migration to another.
func NewID() string {
	return primitive.NewObjectID().Hex()
}

// IsValidID returns true if id is a well-formed 24-character hex identifier.
func IsValidID(id string) bool {
	if len(id) != IDLength {
		return false
	}
	_, err := primitive.ObjectIDFromHex(id)
	return err == nil
}
