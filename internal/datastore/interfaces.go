// interfaces.go: result store abstraction
package datastore

// Interface abstracts the result store. Records are append-only: one record
// per submission id, never modified once written.
type Interface interface {
	// Get returns the record for id. A missing record yields an error for
	// which errors.IsNotFound reports true; any other error is a read failure.
	Get(id string) (*AnalysisResult, error)

	// Put persists a new record. Put fails if a record for the id exists.
	Put(result *AnalysisResult) error

	// ListIDs returns the ids of all fully persisted records.
	ListIDs() ([]string, error)

	// WorkDir returns the private working directory for id, creating it if needed.
	WorkDir(id string) (string, error)
}
