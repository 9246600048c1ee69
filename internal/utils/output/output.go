// Package output writes search results to files.
package output

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/law-makers/rednote/pkg/models"
)

// Save writes records to path in the format named by its extension:
// .json, .csv, or .md/.markdown.
func Save(path, keywords string, records []models.NoteRecord) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return SaveJSON(records, path)
	case ".csv":
		return SaveCSV(records, path)
	case ".md", ".markdown":
		return SaveMarkdown(keywords, records, path)
	default:
		return fmt.Errorf("unsupported output format %q (use .json, .csv or .md)", filepath.Ext(path))
	}
}
