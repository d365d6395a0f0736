// Package pixelate produces the blocky rendition published for photo messages.
// The image is reduced by pixelSize, then blown back up with
// nearest-neighbour so that every reduced pixel becomes a visible square.
package pixelate

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"pixel-chat/errors"

	"github.com/gabriel-vasile/mimetype"
	"github.com/nfnt/resize"
)

// Quality is fixed: the published rendition is always JPEG at this quality.
const Quality = 90

const OutputContentType = "image/jpeg"

// maxFetchSize bounds the size of a remote image. Larger ones are refused
// rather than cut, since a cut image must never be published as the original.
const maxFetchSize = 32 << 20

// Source is either in-memory bytes or a remote locator.
type Source struct {
	Data        []byte
	ContentType string
	Locator     string
}

type Blob struct {
	Data        []byte
	ContentType string
}

type Encoder struct {
	client   *http.Client
	log      *slog.Logger
	maxFetch int64
}

func NewEncoder(client *http.Client, log *slog.Logger) *Encoder {
	if client == nil {
		client = http.DefaultClient
	}
	return &Encoder{client: client, log: log, maxFetch: maxFetchSize}
}

// Load resolves the source into bytes.
// Remote retrieval failures, whatever their cause, are reported as ErrFetchDenied.
func (e *Encoder) Load(ctx context.Context, src Source) (Blob, error) {
	if len(src.Data) > 0 {
		return Blob{Data: src.Data, ContentType: contentType(src.Data, src.ContentType)}, nil
	}
	if src.Locator == "" {
		return Blob{}, errors.ErrNoSource
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, src.Locator, nil)
	if err != nil {
		return Blob{}, fmt.Errorf("%w: %w", errors.ErrFetchDenied, err)
	}
	response, err := e.client.Do(request)
	if err != nil {
		return Blob{}, fmt.Errorf("%w: %w", errors.ErrFetchDenied, err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return Blob{}, fmt.Errorf("%w: %s answered %s", errors.ErrFetchDenied, src.Locator, response.Status)
	}
	data, err := io.ReadAll(io.LimitReader(response.Body, e.maxFetch+1))
	if err != nil {
		return Blob{}, fmt.Errorf("%w: %w", errors.ErrFetchDenied, err)
	}
	if int64(len(data)) > e.maxFetch {
		return Blob{}, fmt.Errorf("%w: %s is too large, more than %d bytes", errors.ErrFetchDenied, src.Locator, e.maxFetch)
	}
	e.log.Debug("Remote image fetched", "locator", src.Locator, "size", len(data))
	return Blob{Data: data, ContentType: contentType(data, response.Header.Get("Content-Type"))}, nil
}

// Encode decodes the blob, pixelates it and re-encodes it as JPEG.
func (e *Encoder) Encode(blob Blob, pixelSize int) (Blob, error) {
	if pixelSize < 1 {
		return Blob{}, errors.ErrInvalidPixelSize
	}
	if !strings.HasPrefix(mimetype.Detect(blob.Data).String(), "image/") {
		return Blob{}, fmt.Errorf("%w: not an image", errors.ErrInvalidImage)
	}

	img, format, err := image.Decode(bytes.NewReader(blob.Data))
	if err != nil {
		return Blob{}, fmt.Errorf("%w: %w", errors.ErrInvalidImage, err)
	}
	surface, err := Pixelate(img, pixelSize)
	if err != nil {
		return Blob{}, err
	}

	var out bytes.Buffer
	if err = jpeg.Encode(&out, surface, &jpeg.Options{Quality: Quality}); err != nil {
		return Blob{}, fmt.Errorf("%w: %w", errors.ErrEncodeFailed, err)
	}
	if out.Len() == 0 {
		return Blob{}, errors.ErrEncodeFailed
	}

	e.log.Debug("Image pixelated",
		"format", format,
		"width", surface.Bounds().Dx(),
		"height", surface.Bounds().Dy(),
		"pixel_size", pixelSize,
		"size", out.Len())
	return Blob{Data: out.Bytes(), ContentType: OutputContentType}, nil
}

// Pixelate returns a w x h surface made of pixelSize-wide blocks.
// The reduced surface is max(1, w/pixelSize) x max(1, h/pixelSize).
func Pixelate(img image.Image, pixelSize int) (*image.RGBA, error) {
	if pixelSize < 1 {
		return nil, errors.ErrInvalidPixelSize
	}
	if img == nil {
		return nil, errors.ErrInvalidImage
	}
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", errors.ErrInvalidImage, w, h)
	}

	// Working on RGBA keeps chroma subsampling from smearing block edges
	rgba := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(rgba, rgba.Bounds(), img, img.Bounds().Min, draw.Src)

	smallW, smallH := ReducedSize(w, h, pixelSize)
	small := resize.Resize(uint(smallW), uint(smallH), rgba, resize.Bilinear)
	blocky := resize.Resize(uint(w), uint(h), small, resize.NearestNeighbor)

	out, ok := blocky.(*image.RGBA)
	if !ok {
		out = image.NewRGBA(image.Rect(0, 0, w, h))
		draw.Draw(out, out.Bounds(), blocky, blocky.Bounds().Min, draw.Src)
	}
	return out, nil
}

// ReducedSize is the size of the intermediate surface.
func ReducedSize(w, h, pixelSize int) (int, int) {
	return max(1, w/pixelSize), max(1, h/pixelSize)
}

func contentType(data []byte, declared string) string {
	if declared != "" {
		return declared
	}
	return mimetype.Detect(data).String()
}
