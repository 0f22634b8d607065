package models

import "errors"

var (
	// Document errors
	ErrDocumentNotFound = errors.New("document not found")
	ErrNotOwner         = errors.New("requester is not the document owner")
	ErrInvalidDocument  = errors.New("invalid document")

	// Grant errors
	ErrGrantNotFound    = errors.New("grant not found")
	ErrGrantExpired     = errors.New("grant expired")
	ErrGrantNoPropagate = errors.New("grant does not permit re-delegation")

	// Repository errors
	ErrDatabaseConnection = errors.New("database connection failed")
	ErrDatabaseQuery      = errors.New("database query failed")
	ErrDatabaseInsert     = errors.New("database insert failed")
	ErrDatabaseDelete     = errors.New("database delete failed")

	// General errors
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")
)
