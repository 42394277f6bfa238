package authz

import "errors"

var (
	// ErrInvalidConfig is returned when a rules document fails validation:
	// an unknown group or alias reference, a group cycle, an invalid
	// token, a double-negated rule, a disallowed rule character, a
	// non-canonical section path, or a groups-file/local-groups conflict.
	ErrInvalidConfig = errors.New("invalid authorization config")

	// ErrIllegalTarget is returned when a rules path resolves to
	// something other than a readable file: a directory, a file that
	// exists but can't be opened, or, for a repository URL, a node that
	// does not exist (that error also matches ErrNotFound).
	ErrIllegalTarget = errors.New("illegal target")

	// ErrNotFound is returned when a rules or groups location's
	// underlying file does not exist. A caller that doesn't require the
	// file to exist (must_exist=false) treats ErrNotFound as "no rules
	// configured" rather than a load failure.
	ErrNotFound = errors.New("rules file not found")

	// ErrRepositoryNotFound is returned when a rules URL does not resolve
	// into any known repository.
	ErrRepositoryNotFound = errors.New("repository not found")

	// ErrInvalidPath is a query precondition violation: the caller passed
	// a non-nil path that does not start with '/'.
	ErrInvalidPath = errors.New("path must begin with '/'")
)
