package model

// Course is an enrolled course site on the portal.
type Course struct {
	// SiteID is the portal's opaque identifier for the course site.
	SiteID string `json:"site_id"`

	// Code is the extracted course code (e.g., "DCIT 301"). It may be empty
	// when the site title carries no recognizable code.
	Code string `json:"code"`

	// Title is the site title as shown on the portal.
	Title string `json:"title"`

	// URL points at the course site.
	URL string `json:"url"`
}

// DisplayName renders the course the way messages show it.
func (c Course) DisplayName() string {
	if c.Code == "" {
		return c.Title
	}
	return c.Code + ": " + c.Title
}
