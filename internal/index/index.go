package index

import "github.com/starford/ansuz/internal/models"

// DocumentIndex defines the interface for document indexing operations.
// Consumers should depend on this interface rather than the concrete *DB
// type to facilitate testing with fakes.
type DocumentIndex interface {
	UpsertDocument(row DocRow, body string, links []models.Link) error
	DeleteDocument(path string) error
	GetChecksum(path string) (string, error)
	GetDocument(path string) (*DocRow, error)
	ListDocuments(namespace string, limit, offset int) ([]DocRow, int, error)
	Search(query string, limit int) ([]SearchResult, error)
	Graph() ([]GraphNode, []models.Link, error)
	Backlinks(target string) ([]models.Link, error)
	AllChecksums() (map[string]string, error)
	Fingerprints() ([]models.Fingerprint, error)
	Close() error
}

// Verify *DB satisfies DocumentIndex at compile time.
var _ DocumentIndex = (*DB)(nil)
