package database

import (
	"log/slog"
)

// Logger is global since we will need it everywhere
var Logger = slog.Default()

// Repository is the persistence boundary for the viewer: a store of recently
// opened documents and the last page viewed in each. The render cache itself
// is in-memory and session-scoped; it is never persisted here.
type Repository interface {
	SaveRecent(doc *RecentDocument) error
	ListRecents(limit int) ([]RecentDocument, error)
	UpdateLastPage(ulidStr string, lastPage int) error
	Close() error
}
