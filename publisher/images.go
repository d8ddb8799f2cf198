package publisher

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"net/http"
	"strings"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	maxImageWidth = 1600
	maxImageBytes = 20 << 20 // 20MB
)

// ErrUnsupportedRef is returned for image references that are neither data URIs nor http(s) URLs.
var ErrUnsupportedRef = errors.New("unsupported image reference")

// IsRemote reports whether ref is an http(s) URL.
func IsRemote(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

// FetchImage loads the raw bytes behind ref: a base64 data URI or an http(s) URL.
func FetchImage(ctx context.Context, client *http.Client, ref string) ([]byte, error) {
	ref = strings.TrimSpace(ref)
	switch {
	case strings.HasPrefix(ref, "data:"):
		return decodeDataURI(ref)
	case IsRemote(ref):
		return download(ctx, client, ref)
	default:
		return nil, fmt.Errorf("%w: %.40q", ErrUnsupportedRef, ref)
	}
}

func decodeDataURI(ref string) ([]byte, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(ref, "data:"), ",")
	if !ok {
		return nil, errors.New("malformed data uri")
	}
	if !strings.HasSuffix(meta, ";base64") {
		return nil, errors.New("data uri is not base64 encoded")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode data uri: %w", err)
	}
	return data, nil
}

func download(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch image: unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	if len(data) > maxImageBytes {
		return nil, errors.New("fetch image: body exceeds size limit")
	}
	return data, nil
}

// ToPNG decodes PNG, JPEG, GIF or WebP data and re-encodes it as PNG, scaling
// it down to maxImageWidth when wider.
func ToPNG(data []byte) ([]byte, image.Point, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, image.Point{}, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w > maxImageWidth {
		newH := h * maxImageWidth / w
		dst := image.NewRGBA(image.Rect(0, 0, maxImageWidth, newH))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
		img = dst
		w, h = maxImageWidth, newH
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, image.Point{}, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), image.Pt(w, h), nil
}

// ExportImage resolves ref and returns it as PNG bytes.
func ExportImage(ctx context.Context, client *http.Client, ref string) ([]byte, error) {
	raw, err := FetchImage(ctx, client, ref)
	if err != nil {
		return nil, err
	}
	out, _, err := ToPNG(raw)
	return out, err
}
