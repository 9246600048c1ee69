// Package selectors holds the DOM contract: logical element names mapped to
// selectors for the site's current markup.
package selectors

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// Logical element names
const (
	ProfileMarker      = "profile-marker"
	LoginPromptMarker  = "login-prompt-marker"
	SearchInput        = "search-input"
	SearchTrigger      = "search-trigger"
	ImageFilter        = "image-filter"
	ResultItem         = "result-item"
	ResultLink         = "result-link"
	ResultLinkFallback = "result-link-fallback"
	DetailContainer    = "detail-container"
	DetailTitle        = "detail-title"
	DetailContent      = "detail-content"
	DetailImages       = "detail-images"
	DetailComments     = "detail-comments"
	DetailCommentText  = "detail-comment-text"
)

var defaults = map[string]string{
	ProfileMarker:      "span.channel:has-text('我')",
	LoginPromptMarker:  ".login-reason",
	SearchInput:        "input#search-input",
	SearchTrigger:      "div.search-icon",
	ImageFilter:        "div#image.channel",
	ResultItem:         "section.note-item",
	ResultLink:         "a[href^='/search_result/']",
	ResultLinkFallback: "a.cover.mask.ld",
	DetailContainer:    "div.note-content",
	DetailTitle:        "div#detail-title.title",
	DetailContent:      "div#detail-desc span",
	DetailImages:       "div.slide-container img.poster-image, div.swiper-slide img",
	DetailComments:     "div.comments-el",
	DetailCommentText:  "span.note-text span",
}

// Set maps every logical name to a selector
type Set map[string]string

// Defaults returns a copy of the built-in contract
func Defaults() Set {
	s := make(Set, len(defaults))
	for k, v := range defaults {
		s[k] = v
	}
	return s
}

// Get returns the selector for name
func (s Set) Get(name string) string {
	if v, ok := s[name]; ok && v != "" {
		return v
	}
	return defaults[name]
}

// Names returns every logical name in sorted order
func Names() []string {
	names := make([]string, 0, len(defaults))
	for k := range defaults {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Load reads overrides from a JSON object file. Unknown names are rejected
// and names missing from the file keep their defaults.
func Load(path string) (Set, error) {
	s := Defaults()
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read selectors file: %w", err)
	}

	var overrides map[string]string
	if err := json.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("parse selectors file %s: %w", path, err)
	}

	for name, sel := range overrides {
		if _, ok := defaults[name]; !ok {
			return nil, fmt.Errorf("unknown selector name %q in %s", name, path)
		}
		if sel == "" {
			return nil, fmt.Errorf("empty selector for %q in %s", name, path)
		}
		s[name] = sel
	}
	return s, nil
}
