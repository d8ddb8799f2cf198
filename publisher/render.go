package publisher

import (
	"bytes"
	"html/template"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
)

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM, extension.Typographer),
	goldmark.WithParserOptions(parser.WithAutoHeadingID()),
)

// MarkdownToHTML converts an article body to an HTML fragment.
func MarkdownToHTML(md string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(md), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

var pageTmpl = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<meta name="description" content="{{.Digest}}">
<style>
body{max-width:46rem;margin:2rem auto;padding:0 1rem;font:17px/1.6 system-ui,sans-serif;color:#1d1d1f}
img{max-width:100%;height:auto;border-radius:6px}
h1{line-height:1.2}
</style>
</head>
<body>
<article>
{{.Body}}
</article>
</body>
</html>
`))

// RenderPage renders md as a standalone HTML document.
func RenderPage(title, md string) (string, error) {
	body, err := MarkdownToHTML(md)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	err = pageTmpl.Execute(&buf, struct {
		Title  string
		Digest string
		Body   template.HTML
	}{title, Digest(md, 160), template.HTML(body)})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Digest returns the first limit runes of md's prose with Markdown headings
// and images dropped and whitespace collapsed.
func Digest(md string, limit int) string {
	var words []string
	for _, line := range strings.Split(md, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "![") {
			continue
		}
		words = append(words, strings.Fields(line)...)
	}
	joined := []rune(strings.Join(words, " "))
	if len(joined) <= limit {
		return string(joined)
	}
	return strings.TrimSpace(string(joined[:limit])) + "…"
}
