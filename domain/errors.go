package domain

import "errors"

var (
	ErrConfigurationNotFound = errors.New("provider configuration not found")
	ErrUnsupportedProvider   = errors.New("unsupported provider")
	ErrMissingAttribute      = errors.New("required provider attribute is missing")
	ErrUnknownAttribute      = errors.New("unknown provider attribute")

	ErrNotConnected        = errors.New("not connected to provider")
	ErrDuplicateConnection = errors.New("connection already exists")
	ErrInvalidUserID       = errors.New("local user id must not be empty")
	ErrEmptyKeys           = errors.New("at least one provider user id is required")

	ErrUserNotFound      = errors.New("user not found")
	ErrLoginConflict     = errors.New("user with this login already exists")
	ErrDuplicateLogin    = errors.New("login already taken")
	ErrDuplicateEmail    = errors.New("user with this email already exists")
	ErrEmailRequired     = errors.New("provider profile has no email")
	ErrWrongProviderType = errors.New("user belongs to a different identity source")
	ErrAmbiguousOwner    = errors.New("external identity is linked to more than one user")

	ErrWorkspaceNotFound = errors.New("workspace not found")
	ErrWorkspaceExists   = errors.New("workspace already exists")

	ErrContentNotFound = errors.New("content not found")
	ErrAvatarTransfer  = errors.New("avatar transfer failed")

	ErrInvalidAttributeName = errors.New("invalid session attribute name")
	ErrInvalidState         = errors.New("oauth state mismatch")
)
