// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package thread

// StoreError represents a store-level error condition. It implements the
// error interface and supports errors.Is against the sentinel values below.
type StoreError struct {
	Message string
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	return e.Message
}

// Is implements errors.Is support for comparing store errors.
func (e *StoreError) Is(target error) bool {
	t, ok := target.(*StoreError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}

var (
	// ErrNotFound is returned when a referenced conversation or message
	// id does not exist. Callers surface this as a user-input error.
	ErrNotFound = &StoreError{Message: "conversation not found"}

	// ErrHasChildren is returned when deleting a conversation that still
	// has child conversations. Children must be deleted first so no
	// stored thread path is left referencing a missing ancestor.
	ErrHasChildren = &StoreError{Message: "conversation has children"}

	// ErrInvalidRole is returned when appending a message with an
	// unknown role.
	ErrInvalidRole = &StoreError{Message: "invalid message role"}
)
