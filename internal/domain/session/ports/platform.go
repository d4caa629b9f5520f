package ports

// Platform provides OS operations abstracted from the domain so tests can
// observe cleanup.
type Platform interface {
	// Identity returns a stable owner string for leases held by this process.
	Identity() (string, error)

	// RemoveAll removes path and any children. Path must be absolute.
	RemoveAll(path string) error
}
