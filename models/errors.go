package models

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials covers both unknown emails and wrong passwords.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrUnauthenticated covers missing, unknown, expired and logged-out sessions.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrNoSession is ErrUnauthenticated for requests carrying no session id.
	ErrNoSession = fmt.Errorf("%w: no session provided", ErrUnauthenticated)
	// ErrInvalidSession is ErrUnauthenticated for every other rejection.
	ErrInvalidSession = fmt.Errorf("%w: invalid or expired session", ErrUnauthenticated)
	// ErrForbidden is returned when the session role or permissions do not match.
	ErrForbidden = errors.New("insufficient permissions")
	// ErrPrincipalNotFound is returned by repositories for absent records.
	ErrPrincipalNotFound = errors.New("principal not found")
)

// ValidationError reports malformed or missing input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// DuplicateIdentityError reports a uniqueness violation within a variant.
type DuplicateIdentityError struct {
	Field string
}

func (e *DuplicateIdentityError) Error() string {
	return fmt.Sprintf("%s already registered", e.Field)
}
