package api

import (
	"errors"
	"fmt"
)

// Common errors returned by the API
var (
	ErrCreationFailed = errors.New("Failed to create notebook")
	ErrInvalidInput   = errors.New("invalid input")
)

// DeleteError reports a DeleteSources call that stopped at a failing chunk.
// Deleted counts the sources removed by the chunks before it.
type DeleteError struct {
	Deleted   int
	Remaining int
	Err       error
}

func (e *DeleteError) Error() string {
	return fmt.Sprintf("delete sources: %d deleted, %d not attempted: %v", e.Deleted, e.Remaining, e.Err)
}

func (e *DeleteError) Unwrap() error {
	return e.Err
}
