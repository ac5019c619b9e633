package index

import (
	"log/slog"
	"time"

	"github.com/starford/ansuz/internal/addr"
	"github.com/starford/ansuz/internal/fingerprint"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/parser"
	"github.com/starford/ansuz/internal/refs"
	"github.com/starford/ansuz/internal/storage"
)

// Sync walks the workspace and brings the index up to date:
//   - new/changed files are parsed and upserted
//   - files removed from disk are deleted from the index
func Sync(db *DB, store storage.Provider, logger *slog.Logger) error {
	infos, err := store.List("/")
	if err != nil {
		return err
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(infos))
	for _, m := range infos {
		disk[m.Path] = struct{}{}

		if checksums[m.Path] == m.Checksum {
			continue
		}

		data, err := store.Read(m.Path)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		if err := IndexDocument(db, m.Path, data, m.UpdatedAt); err != nil {
			logger.Warn("sync: index failed", slog.String("path", m.Path), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: indexed", slog.String("path", m.Path))
		}
	}

	// Remove stale entries.
	for p := range checksums {
		if _, ok := disk[p]; !ok {
			if err := db.DeleteDocument(p); err != nil {
				logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			} else {
				logger.Debug("sync: removed stale", slog.String("path", p))
			}
		}
	}

	return nil
}

// IndexDocument parses data and upserts the document's metadata, search
// body, and outgoing reference links.
func IndexDocument(idx DocumentIndex, path string, data []byte, updatedAt time.Time) error {
	da, err := addr.ParseDocument(path)
	if err != nil {
		return err
	}
	res := parser.Parse(data)
	body := string(data)[res.BodyOffset:]

	var links []models.Link
	for _, rf := range refs.Normalize(refs.Extract(string(data)), da) {
		links = append(links, models.Link{Source: da.Path, Target: rf.Doc.Path, Section: rf.Section})
	}

	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	row := DocRow{
		Path:      da.Path,
		Title:     res.Title,
		Namespace: da.Namespace,
		Checksum:  fingerprint.Hash(data),
		Keywords:  fingerprint.Keywords(res.Title, res.Headings),
		UpdatedAt: updatedAt,
	}
	return idx.UpsertDocument(row, body, links)
}
