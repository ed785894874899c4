package registry

import "errors"

var (
	// ErrUnauthorized is returned when a mutating call is attributed to an
	// account other than the registry owner. Nothing is written.
	ErrUnauthorized = errors.New("registry: caller is not the owner")

	// ErrNotInitialized rejects operations on a registry that was never
	// initialized, including a zero-value Registry.
	ErrNotInitialized = errors.New("registry: not initialized")

	// ErrAlreadyInitialized is returned by InitializeOnce when the store
	// already holds a header in any schema version.
	ErrAlreadyInitialized = errors.New("registry: already initialized")

	// ErrMigrationRequired is returned by Load when the persisted header uses
	// the ownerless layout. Run Upgrade with an explicit owner first.
	ErrMigrationRequired = errors.New("registry: persisted layout predates owner field; migration required")

	// ErrAlreadyCurrent is returned by Upgrade when there is nothing to do.
	ErrAlreadyCurrent = errors.New("registry: persisted layout already current")

	// ErrUnsupportedSchema is returned for unknown record version tags.
	ErrUnsupportedSchema = errors.New("registry: unsupported schema version")

	// ErrCorruptRecord is returned when a persisted record cannot be decoded.
	ErrCorruptRecord = errors.New("registry: corrupt record")

	// ErrInvalidOwner rejects an empty owner identifier.
	ErrInvalidOwner = errors.New("registry: owner is required")
)
