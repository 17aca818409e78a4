package filehandler

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"
)

func TestIsImage(t *testing.T) {
	tests := []struct {
		ext      string
		expected bool
	}{
		{".jpg", true},
		{".jpeg", true},
		{".JPG", true},
		{".JPEG", true},
		{".png", true},
		{".PNG", true},
		{".gif", true},
		{".bmp", true},
		{".webp", true},
		{".tiff", true},
		{".heic", true},
		{".HEIC", true},
		{".mp4", false},
		{".mov", false},
		{".txt", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.ext, func(t *testing.T) {
			result := IsImage(tt.ext)
			if result != tt.expected {
				t.Errorf("IsImage(%q) = %v, want %v", tt.ext, result, tt.expected)
			}
		})
	}
}

func encodeTestImage(t *testing.T, format string) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 200, A: 255})

	var buf bytes.Buffer
	var err error
	switch format {
	case "jpeg":
		err = jpeg.Encode(&buf, img, nil)
	case "png":
		err = png.Encode(&buf, img)
	case "gif":
		err = gif.Encode(&buf, img, nil)
	}
	if err != nil {
		t.Fatalf("encode %s: %v", format, err)
	}
	return buf.Bytes()
}

func TestDetectMIMEType(t *testing.T) {
	tests := []struct {
		name   string
		data   []byte
		path   string
		want   string
		wantOK bool
	}{
		{"jpeg content", encodeTestImage(t, "jpeg"), "a.jpg", "image/jpeg", true},
		{"png content with wrong extension", encodeTestImage(t, "png"), "a.jpg", "image/png", true},
		{"gif content", encodeTestImage(t, "gif"), "a.gif", "image/gif", true},
		{"undecodable heic falls back to extension", []byte("....ftypheic"), "a.HEIC", "image/heic", true},
		{"garbage with unknown extension", []byte("hello"), "a.txt", "", false},
		{"empty", nil, "a.jpg", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetectMIMEType(tt.data, tt.path)
			if !tt.wantOK {
				if !errors.Is(err, ErrNotImage) {
					t.Errorf("DetectMIMEType() error = %v, want ErrNotImage", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("DetectMIMEType() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("DetectMIMEType() = %q, want %q", got, tt.want)
			}
		})
	}
}
