package github

import "fmt"

// CredentialError indicates the App credential could not be produced: the
// private key failed to load or signing failed. This is a configuration
// problem and is not retryable.
type CredentialError struct {
	Err error
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("app credential: %v", e.Err)
}

func (e *CredentialError) Unwrap() error {
	return e.Err
}

// AuthError indicates an installation token exchange was rejected by the
// API. It is fatal for the current task attempt; a fresh attempt must
// re-authenticate from scratch.
type AuthError struct {
	InstallationID int64
	StatusCode     int
	Body           string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("installation token exchange failed for installation %d: status %d, body: %s",
		e.InstallationID, e.StatusCode, e.Body)
}

// NetworkError wraps a failed API call: transport failures and non-2xx
// responses alike. It is retryable at the task level.
type NetworkError struct {
	Operation string
	Err       error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Operation, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}
