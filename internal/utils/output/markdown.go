package output

import (
	"fmt"
	"os"
	"strings"

	urlutil "github.com/law-makers/rednote/internal/utils/url"
	"github.com/law-makers/rednote/pkg/models"
)

// RenderMarkdown formats records as a Markdown document titled with keywords
func RenderMarkdown(keywords string, records []models.NoteRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", escapeMarkdown(keywords))
	if len(records) == 0 {
		b.WriteString("_No notes found._\n")
		return b.String()
	}

	for i, r := range records {
		title := r.Title
		if title == "" {
			title = r.URL
		}
		fmt.Fprintf(&b, "## %d. [%s](%s)\n\n", i+1, escapeMarkdown(title), r.URL)
		if r.Content != "" && r.Content != models.ContentUnavailable {
			for _, line := range strings.Split(r.Content, "\n") {
				fmt.Fprintf(&b, "> %s\n", line)
			}
			b.WriteString("\n")
		}

		if len(r.Images) > 0 {
			b.WriteString("**Images**\n\n")
			for _, img := range r.Images {
				if urlutil.IsHTTP(img) {
					fmt.Fprintf(&b, "- ![](%s)\n", img)
				} else {
					fmt.Fprintf(&b, "- %s\n", strings.Join(strings.Fields(img), " "))
				}
			}
			b.WriteString("\n")
		}

		if len(r.Comments) > 0 {
			b.WriteString("**Comments**\n\n")
			for _, c := range r.Comments {
				fmt.Fprintf(&b, "- %s\n", strings.Join(strings.Fields(c), " "))
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

// SaveMarkdown writes RenderMarkdown's output to filepath
func SaveMarkdown(keywords string, records []models.NoteRecord, filepath string) error {
	return os.WriteFile(filepath, []byte(RenderMarkdown(keywords, records)), 0644)
}

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`, "[", `\[`, "]", `\]`, "*", `\*`, "_", `\_`, "`", "\\`", "#", `\#`,
)

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
