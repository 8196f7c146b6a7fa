package models

import "errors"

var (
	// ErrNotFound indicates the requested document does not exist or was deleted.
	ErrNotFound = errors.New("document not found")
	// ErrAlreadyExists indicates a create collided with a live document.
	ErrAlreadyExists = errors.New("document already exists")
	// ErrConflict indicates a concurrent writer changed the document first.
	ErrConflict = errors.New("document update conflict")
	// ErrUnknownCollection indicates a collection or resource name outside the allow-list.
	ErrUnknownCollection = errors.New("unknown collection")
	// ErrInvalidDocument indicates a body that does not decode into its entity type.
	ErrInvalidDocument = errors.New("invalid document")
)
