package eligibility

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/InhaCentury20/pass/internal/document"
	"github.com/InhaCentury20/pass/internal/model"
)

// AddendumMarker marks supplemental notices in titles.
const AddendumMarker = "추가"

var bracketTagRe = regexp.MustCompile(`\[.*?\]`)

// BaseLookup finds the eligibility stored for the most recent non-addendum
// announcement whose title contains name. It returns nil when none matches.
type BaseLookup interface {
	BaseEligibility(ctx context.Context, name string) (*model.EligibilityProfile, error)
}

// IsAddendum reports whether title names a supplemental notice.
func IsAddendum(title string) bool {
	return strings.Contains(title, AddendumMarker)
}

// BaseTitle strips bracketed tags and everything from the addendum marker on.
// ok is false when fewer than two characters remain.
func BaseTitle(title string) (name string, ok bool) {
	name = strings.TrimSpace(bracketTagRe.ReplaceAllString(title, ""))
	if i := strings.Index(name, AddendumMarker); i >= 0 {
		name = strings.TrimSpace(name[:i])
	}
	if utf8.RuneCountInString(name) < 2 {
		return "", false
	}
	return name, true
}

// Resolver picks the eligibility profile of an announcement.
type Resolver struct {
	lookup BaseLookup
}

// NewResolver creates a Resolver. lookup may be nil, in which case base
// announcements are never consulted.
func NewResolver(lookup BaseLookup) *Resolver {
	return &Resolver{lookup: lookup}
}

// Resolve extracts eligibility from doc unless the announcement is an
// addendum or has no document; those reuse the base announcement's profile.
// The result is never empty.
func (r *Resolver) Resolve(ctx context.Context, title string, doc *document.Document) model.EligibilityProfile {
	if doc != nil && !IsAddendum(title) {
		p, found := Extract(DocumentText(doc))
		if !found {
			zap.L().Debug("eligibility: no anchors found, using template", zap.String("title", title))
		}
		return p
	}
	if p := r.base(ctx, title); p != nil {
		return *p
	}
	return Default()
}

func (r *Resolver) base(ctx context.Context, title string) *model.EligibilityProfile {
	if r == nil || r.lookup == nil {
		return nil
	}
	name, ok := BaseTitle(title)
	if !ok {
		zap.L().Warn("eligibility: could not derive base title", zap.String("title", title))
		return nil
	}
	p, err := r.lookup.BaseEligibility(ctx, name)
	if err != nil {
		zap.L().Warn("eligibility: base lookup failed",
			zap.String("base_title", name),
			zap.Error(err),
		)
		return nil
	}
	if p == nil || IsEmpty(*p) {
		zap.L().Debug("eligibility: no base announcement", zap.String("base_title", name))
		return nil
	}
	return p
}
