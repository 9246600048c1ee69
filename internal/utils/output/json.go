package output

import (
	"encoding/json"
	"io"
	"os"

	"github.com/law-makers/rednote/pkg/models"
)

// WriteJSON encodes records as the {"results": [...]} payload returned to tool
// callers. A nil slice is written as an empty list.
func WriteJSON(w io.Writer, records []models.NoteRecord) error {
	if records == nil {
		records = []models.NoteRecord{}
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(models.SearchResult{Results: records})
}

// SaveJSON writes the JSON payload to filepath
func SaveJSON(records []models.NoteRecord, filepath string) error {
	file, err := os.Create(filepath)
	if err != nil {
		return err
	}
	if err := WriteJSON(file, records); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
