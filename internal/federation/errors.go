package federation

import "errors"

var (
	ErrProviderMisconfigured  = errors.New("provider is misconfigured")
	ErrFetchUserInfoFailed    = errors.New("failed to fetch user info from provider")
	ErrOrganizationNotAllowed = errors.New("user does not belong to an allowed organization")
)
