package models

import (
	"fmt"
	"strings"
)

// ContentUnavailable is stored in NoteRecord.Content when a note has no description
const ContentUnavailable = "N/A"

// NoteRecord represents a single note extracted from its detail page
type NoteRecord struct {
	URL      string   `json:"url"`
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Images   []string `json:"images"`
	Comments []string `json:"comments"`
}

// SearchQuery contains the options for a note search
type SearchQuery struct {
	Keywords string `json:"keywords"`
	Limit    int    `json:"limit"`
	OCR      bool   `json:"ocr"`
}

// Validate checks that the query can be executed
func (q SearchQuery) Validate() error {
	if strings.TrimSpace(q.Keywords) == "" {
		return fmt.Errorf("keywords cannot be empty")
	}
	if q.Limit <= 0 {
		return fmt.Errorf("limit must be > 0, got %d", q.Limit)
	}
	return nil
}

// SearchResult is the payload returned to tool callers
type SearchResult struct {
	Results []NoteRecord `json:"results"`
}
