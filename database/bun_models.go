package database

import (
	"time"

	"github.com/uptrace/bun"
)

// RecentDocument represents the recent_documents table for Bun ORM
type RecentDocument struct {
	bun.BaseModel `bun:"table:recent_documents,alias:rd"`

	ID        int       `bun:"id,pk,autoincrement" json:"id"`
	ULID      string    `bun:"ulid,notnull,unique" json:"ulid"`
	Path      string    `bun:"path,notnull,unique" json:"path"`
	Name      string    `bun:"name,notnull" json:"name"`
	PageCount int       `bun:"page_count,notnull" json:"pageCount"`
	LastPage  int       `bun:"last_page,notnull,default:0" json:"lastPage"`
	OpenedAt  time.Time `bun:"opened_at,notnull,default:current_timestamp" json:"openedAt"`
}
