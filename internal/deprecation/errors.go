package deprecation

import "errors"

var (
	// ErrUnmappedDeletedFile means a deleted file belongs to no package directory
	ErrUnmappedDeletedFile = errors.New("deleted file does not belong to a typings package")
	// ErrConflictingDeprecationState means a package still has typings and is
	// also listed as not needed
	ErrConflictingDeprecationState = errors.New("package is both present and marked not needed")
	// ErrReplacementNotFound means the claimed replacement library is not on the registry
	ErrReplacementNotFound = errors.New("replacement library not found on registry")
	// ErrReplacementVersionNotFound means the claimed replacement version is not published
	ErrReplacementVersionNotFound = errors.New("replacement version not published")
	// ErrVersionNotNewer means the replacement version does not exceed the
	// currently published typings version
	ErrVersionNotNewer = errors.New("replacement version is not newer than published typings")
	// ErrUnexpectedRegistryFailure wraps every other registry error
	ErrUnexpectedRegistryFailure = errors.New("unexpected registry failure")
)
