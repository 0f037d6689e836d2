package models

import "time"

// SearchParams captures the inputs a scraper needs for one keyword.
type SearchParams struct {
	Query    string
	Keywords []string
	Location string
	Country  string
	MaxPages int
	Limit    int
	Sleep    time.Duration
}
