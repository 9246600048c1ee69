package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/law-makers/rednote/internal/engine"
	"github.com/law-makers/rednote/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSearcher struct {
	records  []models.NoteRecord
	err      error
	query    models.SearchQuery
	headless bool
	calls    int
}

func (s *stubSearcher) Search(ctx context.Context, q models.SearchQuery, headless bool) ([]models.NoteRecord, error) {
	s.calls++
	s.query = q
	s.headless = headless
	return s.records, s.err
}

func (s *stubSearcher) Name() string { return "stub" }

type stubLogin struct {
	ok       bool
	err      error
	headless bool
}

func (l *stubLogin) Login(ctx context.Context, headless bool) (bool, error) {
	l.headless = headless
	return l.ok, l.err
}

func call(t *testing.T, s *Server, name, args string) *Response {
	t.Helper()
	params, err := json.Marshal(map[string]any{"name": name, "arguments": json.RawMessage(args)})
	require.NoError(t, err)
	resp := s.HandleRequest(context.Background(), &Request{JSONRPC: "2.0", ID: 7, Method: "tools/call", Params: params})
	require.NotNil(t, resp)
	return resp
}

func toolResult(t *testing.T, resp *Response) ToolResult {
	t.Helper()
	require.Nil(t, resp.Error)
	var res ToolResult
	require.NoError(t, json.Unmarshal(resp.Result, &res))
	require.Len(t, res.Content, 1)
	return res
}

func TestHandleInitialize(t *testing.T) {
	s := NewServer(&stubSearcher{}, nil, "1.2.3")
	resp := s.HandleRequest(context.Background(), &Request{JSONRPC: "2.0", ID: "1", Method: "initialize"})
	require.NotNil(t, resp)

	var result struct {
		ProtocolVersion string         `json:"protocolVersion"`
		Capabilities    map[string]any `json:"capabilities"`
		ServerInfo      map[string]any `json:"serverInfo"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.Equal(t, ProtocolVersion, result.ProtocolVersion)
	assert.Contains(t, result.Capabilities, "tools")
	assert.Equal(t, "rednote", result.ServerInfo["name"])
	assert.Equal(t, "1.2.3", result.ServerInfo["version"])
}

func TestHandleToolsList(t *testing.T) {
	s := NewServer(&stubSearcher{}, nil, "dev")
	resp := s.HandleRequest(context.Background(), &Request{JSONRPC: "2.0", ID: 1, Method: "tools/list"})

	var result struct {
		Tools []Tool `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	require.Len(t, result.Tools, 2)
	assert.Equal(t, "search_note", result.Tools[0].Name)
	assert.Equal(t, []any{"keywords"}, result.Tools[0].InputSchema["required"])
	assert.Equal(t, "login", result.Tools[1].Name)
}

func TestSearchNote_DefaultsAndResult(t *testing.T) {
	searcher := &stubSearcher{records: []models.NoteRecord{{
		URL: "https://www.xiaohongshu.com/explore/1", Title: "咖啡", Content: "N/A",
		Images: []string{}, Comments: []string{"好"},
	}}}
	s := NewServer(searcher, nil, "dev")

	res := toolResult(t, call(t, s, "search_note", `{"keywords":"coffee"}`))
	assert.False(t, res.IsError)
	assert.Equal(t, models.SearchQuery{Keywords: "coffee", Limit: DefaultSearchLimit}, searcher.query)
	assert.False(t, searcher.headless)

	var payload models.SearchResult
	require.NoError(t, json.Unmarshal([]byte(res.Content[0].Text), &payload))
	assert.Equal(t, searcher.records, payload.Results)
}

func TestSearchNote_PassesOptions(t *testing.T) {
	searcher := &stubSearcher{}
	s := NewServer(searcher, nil, "dev")

	res := toolResult(t, call(t, s, "search_note", `{"keywords":"tea","limit":3,"headless":true,"ocr":true}`))
	assert.Equal(t, models.SearchQuery{Keywords: "tea", Limit: 3, OCR: true}, searcher.query)
	assert.True(t, searcher.headless)
	assert.JSONEq(t, `{"results":[]}`, res.Content[0].Text)
}

func TestSearchNote_InvalidArguments(t *testing.T) {
	searcher := &stubSearcher{}
	s := NewServer(searcher, nil, "dev")

	for _, args := range []string{`{}`, `{"keywords":"  "}`, `{"keywords":"x","limit":0}`, `{"keywords":5}`} {
		resp := call(t, s, "search_note", args)
		require.NotNil(t, resp.Error, args)
		assert.Equal(t, InvalidParams, resp.Error.Code, args)
	}
	assert.Zero(t, searcher.calls)
}

func TestSearchNote_FailureIsToolError(t *testing.T) {
	err := engine.NewEngineError(engine.ErrCodeSearchTimeout, "results did not render", errors.New("timeout"))
	s := NewServer(&stubSearcher{err: err}, nil, "dev")

	res := toolResult(t, call(t, s, "search_note", `{"keywords":"coffee"}`))
	assert.True(t, res.IsError)
	assert.Contains(t, res.Content[0].Text, "SEARCH_TIMEOUT")
}

func TestLoginTool(t *testing.T) {
	login := &stubLogin{ok: true}
	s := NewServer(&stubSearcher{}, login, "dev")

	res := toolResult(t, call(t, s, "login", `{"headless":true}`))
	assert.False(t, res.IsError)
	assert.JSONEq(t, `{"logged_in":true}`, res.Content[0].Text)
	assert.True(t, login.headless)

	_ = toolResult(t, call(t, s, "login", `null`))
	assert.False(t, login.headless)

	s = NewServer(&stubSearcher{}, nil, "dev")
	resp := call(t, s, "login", `{}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, InternalError, resp.Error.Code)
}

func TestUnknownToolAndMethod(t *testing.T) {
	s := NewServer(&stubSearcher{}, nil, "dev")

	resp := call(t, s, "nonexistent_tool", `{}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, MethodNotFound, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "Unknown tool")

	resp = s.HandleRequest(context.Background(), &Request{JSONRPC: "2.0", ID: 2, Method: "resources/list"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, MethodNotFound, resp.Error.Code)
}

func TestNotificationsGetNoResponse(t *testing.T) {
	s := NewServer(&stubSearcher{}, nil, "dev")
	assert.Nil(t, s.HandleRequest(context.Background(), &Request{JSONRPC: "2.0", Method: "notifications/initialized"}))
}

func TestServe(t *testing.T) {
	searcher := &stubSearcher{records: []models.NoteRecord{{URL: "u", Images: []string{}, Comments: []string{}}}}
	s := NewServer(searcher, nil, "dev")

	in := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`not json`,
		``,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"search_note","arguments":{"keywords":"coffee","limit":1}}}`,
	}, "\n")
	var out bytes.Buffer
	require.NoError(t, s.Serve(context.Background(), strings.NewReader(in), &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)

	var resps []Response
	for _, l := range lines {
		var r Response
		require.NoError(t, json.Unmarshal([]byte(l), &r))
		resps = append(resps, r)
	}
	assert.EqualValues(t, 1, resps[0].ID)
	assert.Nil(t, resps[0].Error)
	require.NotNil(t, resps[1].Error)
	assert.Equal(t, ParseError, resps[1].Error.Code)
	assert.EqualValues(t, 2, resps[2].ID)
	assert.Nil(t, resps[2].Error)
	assert.Equal(t, 1, searcher.calls)
}

func TestServe_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r, w := io.Pipe()
	defer w.Close()
	err := NewServer(&stubSearcher{}, nil, "dev").Serve(ctx, r, &bytes.Buffer{})
	assert.ErrorIs(t, err, context.Canceled)
}
