package uid

import "github.com/google/uuid"

// New generates a new run identifier.
func New() string {
	return uuid.New().String()
}

// Short returns the leading segment of an identifier, enough to tag
// log lines without the full UUID.
func Short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// IsValid checks if a string is a valid UUID.
func IsValid(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
