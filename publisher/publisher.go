package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	markdownFile = "article.md"
	htmlFile     = "article.html"
	manifestFile = "manifest.json"
)

// Article is the publishable content handed to the exporter.
type Article struct {
	ID       string
	Title    string
	Markdown string
}

// Package describes an exported article directory.
type Package struct {
	Dir        string    `json:"dir"`
	Slug       string    `json:"slug"`
	PostID     string    `json:"post_id"`
	Title      string    `json:"title"`
	Digest     string    `json:"digest"`
	Markdown   string    `json:"markdown"`
	HTML       string    `json:"html"`
	Images     []string  `json:"images"`
	Remote     []string  `json:"remote_images,omitempty"`
	ExportedAt time.Time `json:"exported_at"`
}

// Publisher writes articles to disk as a Markdown file, an HTML page and the
// PNG images they reference.
type Publisher struct {
	outDir string
	client *http.Client
	log    logrus.FieldLogger
}

// New creates a Publisher rooted at outDir.
func New(outDir string, client *http.Client, log logrus.FieldLogger) (*Publisher, error) {
	if outDir == "" {
		return nil, errors.New("output directory is required")
	}
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Publisher{outDir: outDir, client: client, log: log}, nil
}

// Export writes art to a fresh directory named after its title. Inline and
// remote images are saved next to the Markdown as PNG files and the links are
// rewritten to point at them. A remote image that cannot be fetched keeps its
// original URL.
func (p *Publisher) Export(ctx context.Context, art Article) (*Package, error) {
	if strings.TrimSpace(art.Markdown) == "" {
		return nil, errors.New("article markdown is empty")
	}
	slug := Slugify(art.Title)
	if slug == "" {
		slug = "article"
	}
	dir, err := p.uniqueDir(slug)
	if err != nil {
		return nil, err
	}
	log := p.log.WithFields(logrus.Fields{"post_id": art.ID, "dir": dir})

	pkg := &Package{
		Dir:        dir,
		Slug:       filepath.Base(dir),
		PostID:     art.ID,
		Title:      art.Title,
		Digest:     Digest(art.Markdown, 200),
		Markdown:   filepath.Join(dir, markdownFile),
		HTML:       filepath.Join(dir, htmlFile),
		Images:     []string{},
		ExportedAt: time.Now().UTC(),
	}

	md, err := p.replaceMarkdownImages(ctx, art.Markdown, dir, pkg, log)
	if err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	page, err := RenderPage(art.Title, md)
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("render html: %w", err)
	}
	manifest, err := json.MarshalIndent(pkg, "", "  ")
	if err != nil {
		os.RemoveAll(dir)
		return nil, err
	}

	for name, data := range map[string][]byte{
		markdownFile: []byte(md),
		htmlFile:     []byte(page),
		manifestFile: manifest,
	} {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			os.RemoveAll(dir)
			return nil, fmt.Errorf("write %s: %w", name, err)
		}
	}
	log.WithField("images", len(pkg.Images)).Info("article exported")
	return pkg, nil
}

var imgPattern = regexp.MustCompile(`!\[(?:\\.|[^\]\\])*\]\(([^)\s]+)\)`)

// replaceMarkdownImages saves every image the Markdown references and points
// the links at the local files. Repeated references share one file.
func (p *Publisher) replaceMarkdownImages(ctx context.Context, md, dir string, pkg *Package, log logrus.FieldLogger) (string, error) {
	matches := imgPattern.FindAllStringSubmatchIndex(md, -1)
	if len(matches) == 0 {
		return md, nil
	}

	saved := make(map[string]string)
	var builder strings.Builder
	last := 0
	for _, match := range matches {
		start, end := match[2], match[3]
		builder.WriteString(md[last:start])
		last = end
		imgRef := md[start:end]

		if name, ok := saved[imgRef]; ok {
			builder.WriteString(name)
			continue
		}
		data, err := ExportImage(ctx, p.client, imgRef)
		if err != nil {
			if IsRemote(imgRef) {
				log.WithError(err).WithField("url", imgRef).Warn("keeping remote image link")
				pkg.Remote = append(pkg.Remote, imgRef)
				builder.WriteString(imgRef)
				continue
			}
			return "", fmt.Errorf("export image %d: %w", len(pkg.Images)+1, err)
		}
		name := fmt.Sprintf("image-%02d.png", len(pkg.Images)+1)
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			return "", fmt.Errorf("write %s: %w", name, err)
		}
		saved[imgRef] = name
		pkg.Images = append(pkg.Images, name)
		builder.WriteString(name)
	}
	builder.WriteString(md[last:])
	return builder.String(), nil
}

// uniqueDir creates outDir/slug, appending a counter if it already exists.
func (p *Publisher) uniqueDir(slug string) (string, error) {
	if err := os.MkdirAll(p.outDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	candidate := filepath.Join(p.outDir, slug)
	for counter := 2; ; counter++ {
		err := os.Mkdir(candidate, 0o755)
		if err == nil {
			return candidate, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("create package dir: %w", err)
		}
		candidate = filepath.Join(p.outDir, fmt.Sprintf("%s-%d", slug, counter))
	}
}

// Slugify converts a title to a URL-safe slug.
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	prev := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			prev = false
		default:
			if !prev && b.Len() > 0 {
				b.WriteByte('-')
				prev = true
			}
		}
	}
	out := strings.TrimRight(b.String(), "-")
	if len(out) > 80 {
		out = strings.TrimRight(out[:80], "-")
	}
	return out
}
