package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai_content_pipeline/generator"
)

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func newPublisher(t *testing.T) (*Publisher, string) {
	t.Helper()
	dir := t.TempDir()
	logger, _ := test.NewNullLogger()
	p, err := New(dir, nil, logger)
	require.NoError(t, err)
	return p, dir
}

func TestExportWritesPackage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.png" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(jpegBytes(t, 2000, 100))
	}))
	defer srv.Close()

	inline, err := generator.PlaceholderImage("k", "Cover")
	require.NoError(t, err)

	md := "# Tiny Models [draft]\n\n" +
		"![Tiny Models \\[draft\\]](" + inline + ")\n\n" +
		"## Summary\n\nSmall models, big reach.\n\n" +
		"### One\n\n![One](" + srv.URL + "/one.jpg)\n\nBody one.\n\n" +
		"### Two\n\n![Two](" + srv.URL + "/missing.png)\n\nBody two.\n\n" +
		"### Again\n\n![Again](" + inline + ")\n\nBody three.\n"

	p, out := newPublisher(t)
	pkg, err := p.Export(context.Background(), Article{ID: "p1", Title: "Tiny Models [draft]", Markdown: md})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(out, "tiny-models-draft"), pkg.Dir)
	assert.Equal(t, []string{"image-01.png", "image-02.png"}, pkg.Images)
	assert.Equal(t, []string{srv.URL + "/missing.png"}, pkg.Remote)
	assert.Equal(t, "Small models, big reach. Body one. Body two. Body three.", pkg.Digest)

	written, err := os.ReadFile(pkg.Markdown)
	require.NoError(t, err)
	assert.NotContains(t, string(written), "data:image")
	assert.Equal(t, 2, strings.Count(string(written), "(image-01.png)"))
	assert.Contains(t, string(written), "(image-02.png)")
	assert.Contains(t, string(written), srv.URL+"/missing.png")

	f, err := os.Open(filepath.Join(pkg.Dir, "image-02.png"))
	require.NoError(t, err)
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, maxImageWidth, cfg.Width)
	assert.Equal(t, 80, cfg.Height)

	page, err := os.ReadFile(pkg.HTML)
	require.NoError(t, err)
	assert.Contains(t, string(page), "<title>Tiny Models [draft]</title>")
	assert.Contains(t, string(page), `<img src="image-01.png"`)

	raw, err := os.ReadFile(filepath.Join(pkg.Dir, manifestFile))
	require.NoError(t, err)
	var manifest Package
	require.NoError(t, json.Unmarshal(raw, &manifest))
	assert.Equal(t, "p1", manifest.PostID)
	assert.Equal(t, pkg.Images, manifest.Images)
}

func TestExportPicksFreshDirectory(t *testing.T) {
	p, out := newPublisher(t)
	art := Article{Title: "Same Title", Markdown: "# Same Title\n\nBody\n"}

	first, err := p.Export(context.Background(), art)
	require.NoError(t, err)
	second, err := p.Export(context.Background(), art)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(out, "same-title"), first.Dir)
	assert.Equal(t, filepath.Join(out, "same-title-2"), second.Dir)
	assert.Empty(t, second.Images)
}

func TestExportFailsOnBrokenInlineImage(t *testing.T) {
	p, out := newPublisher(t)
	_, err := p.Export(context.Background(), Article{
		Title:    "Broken",
		Markdown: "# Broken\n\n![x](data:image/png;base64,!!!!)\n",
	})
	require.Error(t, err)

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Empty(t, entries, "partial package must be removed")
}

func TestExportRejectsEmptyMarkdown(t *testing.T) {
	p, _ := newPublisher(t)
	_, err := p.Export(context.Background(), Article{Title: "x"})
	assert.Error(t, err)
}

func TestFetchImage(t *testing.T) {
	_, err := FetchImage(context.Background(), http.DefaultClient, "/etc/passwd")
	assert.ErrorIs(t, err, ErrUnsupportedRef)

	_, err = FetchImage(context.Background(), http.DefaultClient, "data:image/png,plain")
	assert.Error(t, err)

	uri, err := generator.PlaceholderImage("a", "b")
	require.NoError(t, err)
	data, err := FetchImage(context.Background(), http.DefaultClient, uri)
	require.NoError(t, err)
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, "png", format)
}

func TestToPNGKeepsSmallImages(t *testing.T) {
	out, size, err := ToPNG(jpegBytes(t, 40, 30))
	require.NoError(t, err)
	assert.Equal(t, image.Pt(40, 30), size)
	_, err = png.Decode(bytes.NewReader(out))
	require.NoError(t, err)

	_, _, err = ToPNG([]byte("not an image"))
	assert.Error(t, err)
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "what-gradient-descent-has-to-do-with-hiking", Slugify("What Gradient Descent has to do with  Hiking?"))
	assert.Equal(t, "", Slugify("???"))
	assert.Equal(t, "llms-101", Slugify("  LLMs 101 -- "))
	assert.LessOrEqual(t, len(Slugify(strings.Repeat("word ", 40))), 80)
}

func TestDigest(t *testing.T) {
	md := "# Title\n\n![img](x.png)\n\nFirst   line\nsecond line\n"
	assert.Equal(t, "First line second line", Digest(md, 100))
	assert.Equal(t, "First…", Digest(md, 6))
}

func TestMarkdownToHTML(t *testing.T) {
	html, err := MarkdownToHTML("## Key Takeaways\n\n1. one\n2. two\n\n<script>alert(1)</script>\n")
	require.NoError(t, err)
	assert.Contains(t, html, `<h2 id="key-takeaways">Key Takeaways</h2>`)
	assert.Contains(t, html, "<ol>")
	assert.NotContains(t, html, "<script>")
}

func TestExportEscapedAltText(t *testing.T) {
	ref, err := generator.PlaceholderImage("p1", "Paths")
	require.NoError(t, err)
	p, _ := newPublisher(t)

	pkg, err := p.Export(context.Background(), Article{
		Title:    `Paths\`,
		Markdown: "# Paths\\\n\n![Paths\\\\ and \\[brackets\\]](" + ref + ")\n\nBody\n",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"image-01.png"}, pkg.Images)

	md, err := os.ReadFile(pkg.Markdown)
	require.NoError(t, err)
	assert.Contains(t, string(md), "\\[brackets\\]](image-01.png)")
	html, err := os.ReadFile(pkg.HTML)
	require.NoError(t, err)
	assert.Contains(t, string(html), `<img src="image-01.png"`)
}
