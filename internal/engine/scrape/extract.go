package scrape

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/law-makers/rednote/internal/driver"
	"github.com/law-makers/rednote/internal/selectors"
	urlutil "github.com/law-makers/rednote/internal/utils/url"
	"github.com/law-makers/rednote/pkg/models"
)

// DefaultTitleSuffix is appended by the site to every document title
const DefaultTitleSuffix = " - 小红书"

// ExtractNote builds a record from a rendered note detail page.
// It never fails: missing parts fall back to the document title, "N/A" or an
// empty list.
func ExtractNote(doc *goquery.Document, pageURL string, contract selectors.Set, titleSuffix string) models.NoteRecord {
	rec := models.NoteRecord{
		URL:      pageURL,
		Content:  models.ContentUnavailable,
		Images:   []string{},
		Comments: []string{},
	}

	root := doc.Selection

	if title := find(root, contract.Get(selectors.DetailTitle)).First(); title.Length() > 0 {
		rec.Title = strings.TrimSpace(title.Text())
	} else {
		docTitle := doc.Find("title").First().Text()
		if titleSuffix != "" {
			docTitle = strings.ReplaceAll(docTitle, titleSuffix, "")
		}
		rec.Title = strings.TrimSpace(docTitle)
	}

	if desc := find(root, contract.Get(selectors.DetailContent)).First(); desc.Length() > 0 {
		rec.Content = strings.TrimSpace(desc.Text())
	}

	find(root, contract.Get(selectors.DetailImages)).Each(func(_ int, img *goquery.Selection) {
		src, ok := img.Attr("src")
		src = strings.TrimSpace(src)
		if !ok || !urlutil.IsHTTP(src) {
			return
		}
		rec.Images = append(rec.Images, src)
	})

	if box := find(root, contract.Get(selectors.DetailComments)).First(); box.Length() > 0 {
		find(box, contract.Get(selectors.DetailCommentText)).Each(func(_ int, c *goquery.Selection) {
			if text := strings.TrimSpace(c.Text()); text != "" {
				rec.Comments = append(rec.Comments, text)
			}
		})
	}

	return rec
}

// find evaluates a contract selector under s, honoring a :has-text filter
func find(s *goquery.Selection, selector string) *goquery.Selection {
	sel := driver.ParseSelector(selector)
	found := s.Find(sel.CSS)
	if !sel.HasTextFilter() {
		return found
	}
	return found.FilterFunction(func(_ int, el *goquery.Selection) bool {
		return sel.MatchText(el.Text())
	})
}
