package scrape

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/law-makers/rednote/internal/selectors"
	"github.com/law-makers/rednote/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullNote = `<!DOCTYPE html>
<html><head><title>手冲咖啡入门 - 小红书</title></head>
<body>
<div class="note-container">
  <div class="media-container">
    <div class="slide-container">
      <img class="poster-image" src="https://sns-webpic-qc.xhscdn.com/cover.jpg">
    </div>
    <div class="swiper-slide"><img src="https://sns-webpic-qc.xhscdn.com/2.jpg"></div>
    <div class="swiper-slide"><img src="blob:https://www.xiaohongshu.com/123"></div>
    <div class="swiper-slide"><img></div>
    <div class="swiper-slide"><img src="//sns-webpic-qc.xhscdn.com/3.jpg"></div>
  </div>
  <div class="note-content">
    <div id="detail-title" class="title">
      手冲咖啡入门
    </div>
    <div id="detail-desc" class="desc">
      <span>  第一步：选豆。 <a class="tag">#咖啡</a></span>
      <span>second span is ignored</span>
    </div>
  </div>
  <div class="comments-el">
    <div class="comment-item"><span class="note-text"><span> 学到了 </span></span></div>
    <div class="comment-item"><span class="note-text"><span>   </span></span></div>
    <div class="comment-item"><span class="note-text"><span>收藏</span></span></div>
  </div>
</div>
<span class="note-text"><span>outside the comment list</span></span>
</body></html>`

func parse(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func TestExtractNote(t *testing.T) {
	rec := ExtractNote(parse(t, fullNote), "https://www.xiaohongshu.com/explore/abc", selectors.Defaults(), DefaultTitleSuffix)

	assert.Equal(t, "https://www.xiaohongshu.com/explore/abc", rec.URL)
	assert.Equal(t, "手冲咖啡入门", rec.Title)
	assert.Equal(t, "第一步：选豆。 #咖啡", rec.Content)
	assert.Equal(t, []string{
		"https://sns-webpic-qc.xhscdn.com/cover.jpg",
		"https://sns-webpic-qc.xhscdn.com/2.jpg",
	}, rec.Images)
	assert.Equal(t, []string{"学到了", "收藏"}, rec.Comments)
}

func TestExtractNote_Fallbacks(t *testing.T) {
	html := `<html><head><title>  Weekend brunch - 小红书 </title></head>
<body><div class="note-content"></div></body></html>`

	rec := ExtractNote(parse(t, html), "u", selectors.Defaults(), DefaultTitleSuffix)

	assert.Equal(t, models.NoteRecord{
		URL:      "u",
		Title:    "Weekend brunch",
		Content:  models.ContentUnavailable,
		Images:   []string{},
		Comments: []string{},
	}, rec)
}

func TestExtractNote_EmptyDescriptionIsKept(t *testing.T) {
	html := `<html><head><title>x</title></head><body>
<div id="detail-title" class="title"></div>
<div id="detail-desc"><span>   </span></div>
</body></html>`

	rec := ExtractNote(parse(t, html), "u", selectors.Defaults(), DefaultTitleSuffix)

	assert.Equal(t, "", rec.Title)
	assert.Equal(t, "", rec.Content)
}

func TestExtractNote_CustomContract(t *testing.T) {
	contract := selectors.Defaults()
	contract[selectors.DetailTitle] = "h1"
	contract[selectors.DetailComments] = "ul.comments"
	contract[selectors.DetailCommentText] = "li:has-text('keep')"

	html := `<html><head><title>t</title></head><body>
<h1>Custom title</h1>
<ul class="comments"><li>keep this</li><li>drop this</li><li>KEEP   too</li></ul>
</body></html>`

	rec := ExtractNote(parse(t, html), "u", contract, DefaultTitleSuffix)

	assert.Equal(t, "Custom title", rec.Title)
	assert.Equal(t, []string{"keep this", "KEEP   too"}, rec.Comments)
}
