package users

import "errors"

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailTaken         = errors.New("user with this email already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrForbidden          = errors.New("not allowed to modify this user")
	ErrConcurrentUpdate   = errors.New("user was modified concurrently")
	ErrOrganizationName   = errors.New("organizationName is required for organizers")
)
