// Package store persists announcements and the fields derived from them.
package store

import (
	"context"

	"github.com/InhaCentury20/pass/internal/model"
)

// ListOpts selects announcements for re-extraction.
type ListOpts struct {
	// Pending restricts the listing to announcements never extracted.
	Pending bool
	// All lists every announcement and takes precedence over Pending.
	All   bool
	Limit int
}

// Store defines the persistence interface of the crawl and extraction engine.
type Store interface {
	// Announcements
	UpsertAnnouncement(ctx context.Context, a *model.Announcement) (int64, error)
	GetAnnouncement(ctx context.Context, id int64) (*model.Announcement, error)
	ListAnnouncements(ctx context.Context, opts ListOpts) ([]model.Announcement, error)

	// Checkpoint sink
	MaxListingNumber(ctx context.Context) (*int64, error)
	MarkVisited(ctx context.Context, id int64) error

	// Extraction
	BaseEligibility(ctx context.Context, name string) (*model.EligibilityProfile, error)
	SaveDerived(ctx context.Context, id int64, d model.Derived) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
