package mcp

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/law-makers/rednote/pkg/models"
)

// DefaultSearchLimit is used when search_note is called without a limit
const DefaultSearchLimit = 10

func getAllTools() []Tool {
	return []Tool{
		{
			Name:        "search_note",
			Description: "Search RedNote (Xiaohongshu) for notes matching keywords and return each note's title, content, images and comments.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"keywords": map[string]any{
						"type":        "string",
						"description": "Search keywords",
					},
					"limit": map[string]any{
						"type":        "integer",
						"description": "Maximum number of notes to return",
						"default":     DefaultSearchLimit,
						"minimum":     1,
					},
					"headless": map[string]any{
						"type":        "boolean",
						"description": "Run the browser without a visible window",
						"default":     false,
					},
					"ocr": map[string]any{
						"type":        "boolean",
						"description": "Replace image URLs with text recognized in the images",
						"default":     false,
					},
				},
				"required": []string{"keywords"},
			},
		},
		{
			Name:        "login",
			Description: "Open the RedNote site and wait for the user to log in. The login is saved for later searches.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"headless": map[string]any{
						"type":        "boolean",
						"description": "Run the browser without a visible window",
						"default":     false,
					},
				},
			},
		},
	}
}

type searchNoteArgs struct {
	Keywords string `json:"keywords"`
	Limit    *int   `json:"limit"`
	Headless bool   `json:"headless"`
	OCR      bool   `json:"ocr"`
}

type loginArgs struct {
	Headless bool `json:"headless"`
}

func (s *Server) handleSearchNote(ctx context.Context, id any, arguments json.RawMessage) *Response {
	var args searchNoteArgs
	if err := unmarshalArgs(arguments, &args); err != nil {
		return s.errorResponse(id, InvalidParams, "Invalid arguments: "+err.Error())
	}
	if strings.TrimSpace(args.Keywords) == "" {
		return s.errorResponse(id, InvalidParams, "keywords is required")
	}
	limit := DefaultSearchLimit
	if args.Limit != nil {
		limit = *args.Limit
	}
	if limit <= 0 {
		return s.errorResponse(id, InvalidParams, "limit must be > 0")
	}
	if s.searcher == nil {
		return s.errorResponse(id, InternalError, "search is not configured")
	}

	query := models.SearchQuery{Keywords: args.Keywords, Limit: limit, OCR: args.OCR}
	records, err := s.searcher.Search(ctx, query, args.Headless)
	if err != nil {
		return s.toolError(id, err)
	}
	if records == nil {
		records = []models.NoteRecord{}
	}
	return s.successResponse(id, models.SearchResult{Results: records})
}

func (s *Server) handleLogin(ctx context.Context, id any, arguments json.RawMessage) *Response {
	var args loginArgs
	if err := unmarshalArgs(arguments, &args); err != nil {
		return s.errorResponse(id, InvalidParams, "Invalid arguments: "+err.Error())
	}
	if s.login == nil {
		return s.errorResponse(id, InternalError, "login is not configured")
	}

	ok, err := s.login.Login(ctx, args.Headless)
	if err != nil {
		return s.toolError(id, err)
	}
	return s.successResponse(id, map[string]any{"logged_in": ok})
}

func unmarshalArgs(arguments json.RawMessage, v any) error {
	if len(arguments) == 0 || string(arguments) == "null" {
		return nil
	}
	return json.Unmarshal(arguments, v)
}

func (s *Server) toolError(id any, err error) *Response {
	return s.toolResponse(id, ToolResult{
		Content: []Content{{Type: "text", Text: err.Error()}},
		IsError: true,
	})
}
