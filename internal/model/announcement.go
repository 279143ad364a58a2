package model

import "time"

// Announcement is a housing subscription notice as stored in the sink. The
// extraction engine reads it as context and only writes the derived fields.
type Announcement struct {
	ID              int64      `json:"announcement_id"`
	ListingNumber   *int64     `json:"listing_number,omitempty"`
	BoardID         string     `json:"board_id,omitempty"`
	Title           string     `json:"title"`
	Organization    string     `json:"source_organization,omitempty"`
	Department      string     `json:"department,omitempty"`
	Category        string     `json:"category,omitempty"`
	HousingType     string     `json:"housing_type,omitempty"`
	SourceURL       string     `json:"source_url,omitempty"`
	PDFURL          string     `json:"original_pdf_url,omitempty"`
	BoardText       string     `json:"board_text,omitempty"`
	AddressDetail   string     `json:"address_detail,omitempty"`
	Region          string     `json:"region,omitempty"`
	TotalHouseholds int        `json:"total_households"`
	PostDate        *time.Time `json:"post_date,omitempty"`
	ApplyDate       *time.Time `json:"apply_date,omitempty"`
	ApplicationEnd  *time.Time `json:"application_end_date,omitempty"`
	ApplicationLink string     `json:"application_link,omitempty"`
	HomepageLink    string     `json:"homepage_link,omitempty"`
	ExtractedAt     *time.Time `json:"extracted_at,omitempty"`
}

// HasDocument reports whether the announcement references a paginated
// attachment that should go through the table path.
func (a *Announcement) HasDocument() bool {
	return a.PDFURL != ""
}
