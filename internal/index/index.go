package index

import "github.com/starford/gridedit/internal/models"

// NodeIndex defines the interface for node indexing operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type NodeIndex interface {
	UpsertNode(n NodeRow) error
	DeleteNode(path string) error
	GetNode(path string) (*NodeRow, error)
	GetChecksum(path string) (string, error)
	Search(query string, limit int) ([]SearchResult, error)
	Counts() (map[models.Kind]int, error)
	AllPaths() (map[string]struct{}, error)
	AllChecksums() (map[string]string, error)
	Close() error
}

// Verify *DB satisfies NodeIndex at compile time.
var _ NodeIndex = (*DB)(nil)
