package match

import "time"

// Post is the subset of a post record used for display and query matching.
type Post struct {
	ID      int64     `json:"ID"`
	SiteID  int64     `json:"site_ID"`
	Type    string    `json:"type"`
	Status  string    `json:"status"`
	Title   string    `json:"title"`
	Excerpt string    `json:"excerpt,omitempty"`
	Content string    `json:"content"`
	Author  int64     `json:"author"`
	Sticky  bool      `json:"sticky"`
	Date    time.Time `json:"date"`

	FeaturedImage  string `json:"featured_image,omitempty"`
	CanonicalImage *Image `json:"canonical_image,omitempty"`
}

// Image is an image chosen to represent a post.
type Image struct {
	URI  string `json:"uri"`
	Type string `json:"type"`
}

// binding exposes every field so rules never hit a missing key. Numbers are
// bound as float64 to compare cleanly with values decoded from JSON keys.
func (p Post) binding() map[string]any {
	date := ""
	if !p.Date.IsZero() {
		date = p.Date.UTC().Format(time.RFC3339)
	}
	return map[string]any{
		"id":      float64(p.ID),
		"site_id": float64(p.SiteID),
		"type":    p.Type,
		"status":  p.Status,
		"title":   p.Title,
		"content": p.Content,
		"author":  float64(p.Author),
		"sticky":  p.Sticky,
		"date":    date,
	}
}
