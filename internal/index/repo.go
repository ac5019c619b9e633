package index

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/starford/ansuz/internal/models"
)

// DocRow represents a row in the documents table.
type DocRow struct {
	Path      string
	Title     string
	Namespace string
	Checksum  string
	Keywords  []string
	UpdatedAt time.Time
}

// SearchResult represents one search hit.
type SearchResult struct {
	Path    string `json:"path"`
	Title   string `json:"title"`
	Snippet string `json:"snippet,omitempty"`
}

// GraphNode is one document vertex of the reference graph.
type GraphNode struct {
	Path      string `json:"path"`
	Title     string `json:"title,omitempty"`
	Namespace string `json:"namespace"`
}

// UpsertDocument inserts or replaces a document row, its FTS entry, and its
// outgoing reference links within a transaction.
func (db *DB) UpsertDocument(row DocRow, body string, links []models.Link) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	kwJSON, _ := json.Marshal(row.Keywords)

	// Upsert documents table (includes body for fallback search).
	_, err = tx.Exec(`
		INSERT INTO documents (path, title, namespace, checksum, keywords, body, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			title      = excluded.title,
			namespace  = excluded.namespace,
			checksum   = excluded.checksum,
			keywords   = excluded.keywords,
			body       = excluded.body,
			updated_at = excluded.updated_at
	`, row.Path, row.Title, row.Namespace, row.Checksum, string(kwJSON), body, row.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert document: %w", err)
	}

	// FTS upsert (no-op when the FTS5 tag is absent).
	if err := ftsUpsert(tx, row.Path, row.Title, body, row.Keywords); err != nil {
		return err
	}

	// Replace links: delete old then bulk insert.
	_, _ = tx.Exec(`DELETE FROM links WHERE source = ?`, row.Path)
	if len(links) > 0 {
		stmt, err := tx.Prepare(`INSERT OR IGNORE INTO links (source, target, section) VALUES (?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("index: prepare link insert: %w", err)
		}
		defer stmt.Close()
		for _, l := range links {
			if _, err := stmt.Exec(row.Path, l.Target, l.Section); err != nil {
				return fmt.Errorf("index: insert link: %w", err)
			}
		}
	}

	return tx.Commit()
}

// DeleteDocument removes a document, its FTS entry, and outgoing links.
// Inbound links from other documents reflect their content and stay until
// those documents are re-indexed.
func (db *DB) DeleteDocument(path string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDelete(tx, path)
	_, _ = tx.Exec(`DELETE FROM links WHERE source = ?`, path)
	_, _ = tx.Exec(`DELETE FROM documents WHERE path = ?`, path)

	return tx.Commit()
}

// GetChecksum returns the stored checksum for a document, or empty string
// when the path is not indexed.
func (db *DB) GetChecksum(path string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM documents WHERE path = ?`, path).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: get checksum: %w", err)
	}
	return cs, nil
}

// GetDocument returns the indexed row for path, or nil when not indexed.
func (db *DB) GetDocument(path string) (*DocRow, error) {
	var row DocRow
	var kwJSON string
	err := db.conn.QueryRow(`
		SELECT path, title, namespace, checksum, keywords, updated_at
		FROM documents WHERE path = ?
	`, path).Scan(&row.Path, &row.Title, &row.Namespace, &row.Checksum, &kwJSON, &row.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("index: get document: %w", err)
	}
	_ = json.Unmarshal([]byte(kwJSON), &row.Keywords)
	return &row, nil
}

// ListDocuments returns one page of indexed documents ordered by path,
// optionally filtered by namespace, plus the total count for the filter.
func (db *DB) ListDocuments(namespace string, limit, offset int) ([]DocRow, int, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	where := ""
	args := []any{}
	if namespace != "" {
		where = ` WHERE namespace = ?`
		args = append(args, namespace)
	}

	var total int
	if err := db.conn.QueryRow(`SELECT count(*) FROM documents`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("index: count documents: %w", err)
	}

	rows, err := db.conn.Query(`
		SELECT path, title, namespace, checksum, keywords, updated_at
		FROM documents`+where+`
		ORDER BY path
		LIMIT ? OFFSET ?
	`, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("index: list documents: %w", err)
	}
	defer rows.Close()

	var out []DocRow
	for rows.Next() {
		var r DocRow
		var kwJSON string
		if err := rows.Scan(&r.Path, &r.Title, &r.Namespace, &r.Checksum, &kwJSON, &r.UpdatedAt); err != nil {
			return nil, 0, err
		}
		_ = json.Unmarshal([]byte(kwJSON), &r.Keywords)
		out = append(out, r)
	}
	return out, total, rows.Err()
}

// AllChecksums returns every indexed path with its stored checksum.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

// Backlinks returns every reference link pointing at target.
func (db *DB) Backlinks(target string) ([]models.Link, error) {
	rows, err := db.conn.Query(`
		SELECT source, target, section
		FROM links WHERE target = ?
		ORDER BY source, section
	`, target)
	if err != nil {
		return nil, fmt.Errorf("index: backlinks: %w", err)
	}
	defer rows.Close()

	var out []models.Link
	for rows.Next() {
		var l models.Link
		if err := rows.Scan(&l.Source, &l.Target, &l.Section); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// Graph returns every indexed document and every reference link.
func (db *DB) Graph() ([]GraphNode, []models.Link, error) {
	nodeRows, err := db.conn.Query(`SELECT path, title, namespace FROM documents ORDER BY path`)
	if err != nil {
		return nil, nil, fmt.Errorf("index: graph nodes: %w", err)
	}
	defer nodeRows.Close()

	var nodes []GraphNode
	for nodeRows.Next() {
		var n GraphNode
		if err := nodeRows.Scan(&n.Path, &n.Title, &n.Namespace); err != nil {
			return nil, nil, err
		}
		nodes = append(nodes, n)
	}
	if err := nodeRows.Err(); err != nil {
		return nil, nil, err
	}

	linkRows, err := db.conn.Query(`SELECT source, target, section FROM links ORDER BY source, target`)
	if err != nil {
		return nil, nil, fmt.Errorf("index: graph links: %w", err)
	}
	defer linkRows.Close()

	var links []models.Link
	for linkRows.Next() {
		var l models.Link
		if err := linkRows.Scan(&l.Source, &l.Target, &l.Section); err != nil {
			return nil, nil, err
		}
		links = append(links, l)
	}
	return nodes, links, linkRows.Err()
}

// Fingerprints returns a lightweight summary row for every indexed
// document, ordered by path.
func (db *DB) Fingerprints() ([]models.Fingerprint, error) {
	rows, err := db.conn.Query(`
		SELECT path, title, namespace, keywords, checksum, updated_at
		FROM documents ORDER BY path
	`)
	if err != nil {
		return nil, fmt.Errorf("index: fingerprints: %w", err)
	}
	defer rows.Close()

	var out []models.Fingerprint
	for rows.Next() {
		var fp models.Fingerprint
		var kwJSON string
		if err := rows.Scan(&fp.Path, &fp.Title, &fp.Namespace, &kwJSON, &fp.Checksum, &fp.UpdatedAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(kwJSON), &fp.Keywords)
		out = append(out, fp)
	}
	return out, rows.Err()
}
