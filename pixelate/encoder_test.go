package pixelate

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"pixel-chat/errors"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

// gradient has a strictly increasing red channel along x and green along y,
// so that two neighbouring blocks never share a colour.
func gradient(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8(x * 255 / max(1, w-1)),
				G: uint8(y * 255 / max(1, h-1)),
				B: 128,
				A: 255,
			})
		}
	}
	return img
}

func pngBytes(t *testing.T, img image.Image) []byte {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// runs returns the lengths of the uniform segments found along a line.
func runs(at func(i int) color.Color, length int) []int {
	var lengths []int
	current := 1
	for i := 1; i < length; i++ {
		if at(i) == at(i-1) {
			current++
			continue
		}
		lengths = append(lengths, current)
		current = 1
	}
	return append(lengths, current)
}

func TestPixelate_KeepsDimensionsAndBuildsBlocks(t *testing.T) {
	tests := []struct {
		name      string
		w, h      int
		pixelSize int
	}{
		{"exact multiple", 100, 50, 10},
		{"remainder", 105, 47, 10},
		{"pixel size one", 12, 9, 1},
		{"pixel size larger than image", 8, 6, 20},
		{"tall image", 30, 200, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			out, err := Pixelate(gradient(tt.w, tt.h), tt.pixelSize)
			req.NoError(err)
			req.Equal(tt.w, out.Bounds().Dx())
			req.Equal(tt.h, out.Bounds().Dy())

			smallW, smallH := ReducedSize(tt.w, tt.h, tt.pixelSize)
			row := runs(func(x int) color.Color { return out.At(x, 0) }, tt.w)
			column := runs(func(y int) color.Color { return out.At(0, y) }, tt.h)

			req.InDelta(smallW, len(row), 1)
			req.InDelta(smallH, len(column), 1)
			for _, length := range row {
				req.InDelta(float64(tt.w)/float64(smallW), float64(length), 1)
			}
			for _, length := range column {
				req.InDelta(float64(tt.h)/float64(smallH), float64(length), 1)
			}
		})
	}
}

func TestPixelate_IsDeterministic(t *testing.T) {
	req := require.New(t)
	src := gradient(64, 48)

	first, err := Pixelate(src, 8)
	req.NoError(err)
	second, err := Pixelate(src, 8)
	req.NoError(err)

	req.Equal(first.Pix, second.Pix)
}

func TestPixelate_RejectsInvalidInput(t *testing.T) {
	req := require.New(t)

	_, err := Pixelate(image.NewRGBA(image.Rect(0, 0, 0, 10)), 10)
	req.ErrorIs(err, errors.ErrInvalidImage)

	_, err = Pixelate(gradient(10, 10), 0)
	req.ErrorIs(err, errors.ErrInvalidPixelSize)
}

func TestEncoder_Encode(t *testing.T) {
	req := require.New(t)
	encoder := NewEncoder(nil, logs.GetLoggerFromLevel(slog.LevelDebug))

	blob, err := encoder.Encode(Blob{Data: pngBytes(t, gradient(120, 80))}, 10)
	req.NoError(err)
	req.Equal(OutputContentType, blob.ContentType)
	req.NotEmpty(blob.Data)

	decoded, err := jpeg.Decode(bytes.NewReader(blob.Data))
	req.NoError(err)
	req.Equal(120, decoded.Bounds().Dx())
	req.Equal(80, decoded.Bounds().Dy())
}

func TestEncoder_Encode_NotAnImage(t *testing.T) {
	req := require.New(t)
	encoder := NewEncoder(nil, slog.Default())

	_, err := encoder.Encode(Blob{Data: []byte("definitely not a picture")}, 10)
	req.ErrorIs(err, errors.ErrInvalidImage)

	// PNG signature with a truncated body
	_, err = encoder.Encode(Blob{Data: pngBytes(t, gradient(4, 4))[:20]}, 10)
	req.ErrorIs(err, errors.ErrInvalidImage)
}

func TestEncoder_Load(t *testing.T) {
	picture := pngBytes(t, gradient(20, 20))
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/open.png":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write(picture)
		default:
			w.WriteHeader(http.StatusForbidden)
		}
	}))
	defer server.Close()

	encoder := NewEncoder(server.Client(), slog.Default())
	ctx := context.Background()

	t.Run("in memory data is returned as is", func(t *testing.T) {
		req := require.New(t)
		blob, err := encoder.Load(ctx, Source{Data: picture})
		req.NoError(err)
		req.Equal(picture, blob.Data)
		req.Equal("image/png", blob.ContentType)
	})

	t.Run("remote locator is fetched", func(t *testing.T) {
		req := require.New(t)
		blob, err := encoder.Load(ctx, Source{Locator: server.URL + "/open.png"})
		req.NoError(err)
		req.Equal(picture, blob.Data)
	})

	t.Run("refused locator", func(t *testing.T) {
		_, err := encoder.Load(ctx, Source{Locator: server.URL + "/private.png"})
		require.ErrorIs(t, err, errors.ErrFetchDenied)
	})

	t.Run("unreachable locator", func(t *testing.T) {
		_, err := encoder.Load(ctx, Source{Locator: "http://127.0.0.1:1/nothing.png"})
		require.ErrorIs(t, err, errors.ErrFetchDenied)
	})

	t.Run("empty source", func(t *testing.T) {
		_, err := encoder.Load(ctx, Source{})
		require.ErrorIs(t, err, errors.ErrNoSource)
	})
}

func TestEncoder_Load_RefusesOversizedImage(t *testing.T) {
	req := require.New(t)
	picture := pngBytes(t, gradient(20, 20))
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(picture)
	}))
	defer server.Close()

	encoder := NewEncoder(server.Client(), slog.Default())

	// Given a limit exactly the image size, the image is accepted whole
	encoder.maxFetch = int64(len(picture))
	blob, err := encoder.Load(context.Background(), Source{Locator: server.URL})
	req.NoError(err)
	req.Equal(picture, blob.Data)

	// When the image is one byte over the limit, it is refused instead of cut
	encoder.maxFetch = int64(len(picture)) - 1
	_, err = encoder.Load(context.Background(), Source{Locator: server.URL})
	req.ErrorIs(err, errors.ErrFetchDenied)
	req.ErrorContains(err, "too large")
}
