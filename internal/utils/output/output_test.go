package output

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/law-makers/rednote/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecords() []models.NoteRecord {
	return []models.NoteRecord{
		{
			URL:      "https://www.xiaohongshu.com/explore/a1",
			Title:    "周末咖啡 <探店>",
			Content:  "第一行\n第二行",
			Images:   []string{"https://img.example.com/1.jpg"},
			Comments: []string{"好看", "在哪里"},
		},
		{
			URL:      "https://www.xiaohongshu.com/explore/b2",
			Title:    "",
			Content:  models.ContentUnavailable,
			Images:   []string{"识别出的 文字"},
			Comments: []string{},
		},
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, sampleRecords()))
	assert.Contains(t, buf.String(), "<探店>")

	var got models.SearchResult
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, sampleRecords(), got.Results)

	buf.Reset()
	require.NoError(t, WriteJSON(&buf, nil))
	assert.JSONEq(t, `{"results":[]}`, buf.String())
}

func TestSave_CSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.csv")
	require.NoError(t, Save(path, "咖啡", sampleRecords()))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, rows, 3)
	assert.Equal(t, []string{"url", "title", "content", "images", "comments"}, rows[0])
	assert.Equal(t, "第一行\n第二行", rows[1][2])
	assert.Equal(t, "好看\n在哪里", rows[1][4])
	assert.Equal(t, "", rows[2][4])
}

func TestSave_JSONAndMarkdown(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "notes.JSON")
	require.NoError(t, Save(jsonPath, "咖啡", sampleRecords()))
	data, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	var got models.SearchResult
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Len(t, got.Results, 2)

	mdPath := filepath.Join(dir, "notes.md")
	require.NoError(t, Save(mdPath, "咖啡", sampleRecords()))
	md, err := os.ReadFile(mdPath)
	require.NoError(t, err)
	assert.Contains(t, string(md), "# 咖啡")
	assert.Contains(t, string(md), "## 1. [周末咖啡 <探店>](https://www.xiaohongshu.com/explore/a1)")
	assert.Contains(t, string(md), "> 第二行")
	assert.Contains(t, string(md), "- ![](https://img.example.com/1.jpg)")
	assert.Contains(t, string(md), "## 2. [https://www.xiaohongshu.com/explore/b2](https://www.xiaohongshu.com/explore/b2)")
	assert.Contains(t, string(md), "- 识别出的 文字")
	assert.NotContains(t, string(md), "> N/A")
}

func TestSave_UnsupportedExtension(t *testing.T) {
	err := Save(filepath.Join(t.TempDir(), "notes.xml"), "x", sampleRecords())
	assert.Error(t, err)
}

func TestRenderMarkdown(t *testing.T) {
	assert.Equal(t, "# a\\_b\n\n_No notes found._\n", RenderMarkdown("a_b", nil))
}
