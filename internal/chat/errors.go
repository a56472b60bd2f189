package chat

import "fmt"

// NotFoundError represents an error when a requested chat is not found
type NotFoundError struct {
	ID int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("chat %d not found", e.ID)
}

// StorageError represents an error when a local store operation fails
type StorageError struct {
	Message string
	Err     error
}

func (e *StorageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// NetworkError represents a remote call that failed to complete
type NetworkError struct {
	Message string
	Err     error
}

func (e *NetworkError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// AuthError represents a 401 from the backend. The engine only propagates
// it; session handling is up to the caller.
type AuthError struct {
	Message string
	Status  int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s (status %d)", e.Message, e.Status)
}
