package core

import "errors"

var (
	// ErrMissingCredentials means neither usable credentials nor a saved
	// session were supplied.
	ErrMissingCredentials = errors.New("no credentials or saved session supplied")
	// ErrBadCredentials means the portal rejected the submitted credentials.
	ErrBadCredentials = errors.New("portal rejected the credentials")
	// ErrSessionExpired means a restored session is no longer valid and
	// logging in again was not allowed.
	ErrSessionExpired = errors.New("saved session has expired")
	// ErrUnknown means the portal's markup no longer matches what the client
	// expects, so the state of the session cannot be determined.
	ErrUnknown = errors.New("unexpected portal markup")
	// ErrNotAuthenticated is returned by operations that need a session key
	// when there is none.
	ErrNotAuthenticated = errors.New("session is not authenticated")
	// ErrLogoutRejected means the portal answered a logout request but the
	// session is still logged in, usually because the session key was stale.
	ErrLogoutRejected = errors.New("portal did not end the session")
)
