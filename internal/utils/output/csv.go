package output

import (
	"encoding/csv"
	"os"
	"strings"

	"github.com/law-makers/rednote/pkg/models"
)

var csvHeader = []string{"url", "title", "content", "images", "comments"}

// SaveCSV writes one row per note. Images and comments are joined with
// newlines inside their cells.
func SaveCSV(records []models.NoteRecord, filepath string) error {
	file, err := os.Create(filepath)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range records {
		row := []string{
			r.URL,
			r.Title,
			r.Content,
			strings.Join(r.Images, "\n"),
			strings.Join(r.Comments, "\n"),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}
	return file.Close()
}
