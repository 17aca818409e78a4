package policy

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"unicode/utf16"

	"github.com/fpang/photo-curator/internal/chat"
	"github.com/fpang/photo-curator/internal/filehandler"
)

func TestParseTags(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    filehandler.Tags
		wantErr bool
	}{
		{
			name: "plain json",
			raw:  `{"title": "Harbor at dusk", "description": "Fishing boats moored in a calm harbor.", "keywords": ["boat", "harbor", "dusk"]}`,
			want: filehandler.Tags{Title: "Harbor at dusk", Description: "Fishing boats moored in a calm harbor.", Keywords: []string{"boat", "harbor", "dusk"}},
		},
		{
			name: "fenced json with prose",
			raw:  "Here you go:\n```json\n{\"title\": \"Cat\", \"description\": \"A cat sleeps.\", \"keywords\": [\"cat\"]}\n```",
			want: filehandler.Tags{Title: "Cat", Description: "A cat sleeps.", Keywords: []string{"cat"}},
		},
		{
			name: "keywords as string, deduplicated",
			raw:  `{"title": "Cat", "description": "A cat sleeps.", "keywords": "cat; Cat, sofa ,"}`,
			want: filehandler.Tags{Title: "Cat", Description: "A cat sleeps.", Keywords: []string{"cat", "sofa"}},
		},
		{
			name: "missing keywords is fine",
			raw:  `{"title": "Cat", "description": "A cat sleeps."}`,
			want: filehandler.Tags{Title: "Cat", Description: "A cat sleeps.", Keywords: []string{}},
		},
		{
			name: "labeled lines",
			raw:  "**Title:** Mountain lake\nDescription: A still lake below snowy peaks.\nKeywords: lake, mountains, snow",
			want: filehandler.Tags{Title: "Mountain lake", Description: "A still lake below snowy peaks.", Keywords: []string{"lake", "mountains", "snow"}},
		},
		{name: "missing description", raw: `{"title": "Cat", "keywords": ["cat"]}`, wantErr: true},
		{name: "missing everything", raw: `{}`, wantErr: true},
		{name: "prose only", raw: "A nice picture of a cat.", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTags(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrIncompleteTags) {
					t.Errorf("ParseTags() error = %v, want ErrIncompleteTags", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseTags() error = %v", err)
			}
			if got.Title != tt.want.Title || got.Description != tt.want.Description || !slices.Equal(got.Keywords, tt.want.Keywords) {
				t.Errorf("ParseTags() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestTagger_ParseIsRetryable(t *testing.T) {
	_, err := NewTagger(nil, true, false).Parse(`{"title": "only a title"}`)
	if !chat.IsRetryable(err) {
		t.Errorf("Parse() error = %v, want retryable", err)
	}
}

type recordingWriter struct {
	mu    sync.Mutex
	calls map[string]filehandler.Tags
	err   error
}

func (w *recordingWriter) WriteTags(path string, tags filehandler.Tags) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	if w.calls == nil {
		w.calls = make(map[string]filehandler.Tags)
	}
	w.calls[path] = tags
	return nil
}

func TestTagger_Apply(t *testing.T) {
	item := filehandler.WorkItem{Path: "/photos/a.jpg", RelPath: "a.jpg"}
	tags := filehandler.Tags{Title: "T", Description: "D", Keywords: []string{"k"}}

	w := &recordingWriter{}
	applied, err := NewTagger(w, false, false).Apply(context.Background(), item, tags)
	if err != nil || !applied {
		t.Fatalf("Apply() = %v, %v", applied, err)
	}
	if got := w.calls["/photos/a.jpg"]; got.Title != "T" {
		t.Errorf("writer got %+v", got)
	}

	failing := &recordingWriter{err: errors.New("disk full")}
	applied, err = NewTagger(failing, false, false).Apply(context.Background(), item, tags)
	if applied || err == nil {
		t.Errorf("Apply() with failing writer = %v, %v", applied, err)
	}
}

func TestTagger_DryRunWritesNothing(t *testing.T) {
	w := &recordingWriter{}
	tagger := NewTagger(w, true, false)
	applied, err := tagger.Apply(context.Background(), filehandler.WorkItem{Path: "/photos/a.jpg"}, filehandler.Tags{Title: "T", Description: "D"})
	if err != nil || applied {
		t.Errorf("dry-run Apply() = %v, %v; want false, nil", applied, err)
	}
	if len(w.calls) != 0 {
		t.Errorf("writer called %d times in dry-run", len(w.calls))
	}

	// nil writer is allowed in dry-run
	if _, err := NewTagger(nil, true, false).Apply(context.Background(), filehandler.WorkItem{}, filehandler.Tags{}); err != nil {
		t.Errorf("dry-run Apply() with nil writer error = %v", err)
	}
}

func TestTagger_Shape(t *testing.T) {
	s := NewTagger(nil, true, false).Shape()
	if s.MaxTokens != 4096 || !s.JSON {
		t.Errorf("Shape() = %+v", s)
	}
}

func TestSkipTagged(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain.jpg")
	if err := os.WriteFile(path, []byte("not really a jpeg"), 0o644); err != nil {
		t.Fatal(err)
	}
	item := filehandler.WorkItem{Path: path, RelPath: "plain.jpg"}

	if skip, _ := SkipTagged(false)(item); skip {
		t.Error("untagged file skipped")
	}
	if skip, _ := SkipTagged(true)(item); skip {
		t.Error("overwrite mode skipped a file")
	}
}

// ucs2z encodes s the way Windows XP* EXIF fields store text.
func ucs2z(s string) []byte {
	var b bytes.Buffer
	for _, u := range utf16.Encode([]rune(s)) {
		_ = binary.Write(&b, binary.LittleEndian, u)
	}
	b.Write([]byte{0, 0})
	return b.Bytes()
}

// xpTaggedJPEG returns a small JPEG whose EXIF IFD0 holds XPTitle and XPKeywords.
func xpTaggedJPEG(t *testing.T, title, keywords string) []byte {
	t.Helper()
	var img bytes.Buffer
	if err := jpeg.Encode(&img, image.NewRGBA(image.Rect(0, 0, 4, 4)), nil); err != nil {
		t.Fatal(err)
	}

	tv, kv := ucs2z(title), ucs2z(keywords)
	le := binary.LittleEndian
	const entries = 2
	dataOff := uint32(8 + 2 + entries*12 + 4)

	var tiff bytes.Buffer
	tiff.WriteString("II*\x00")
	_ = binary.Write(&tiff, le, uint32(8))
	_ = binary.Write(&tiff, le, uint16(entries))
	for _, e := range []struct {
		tag    uint16
		count  uint32
		offset uint32
	}{
		{0x9c9b, uint32(len(tv)), dataOff},                   // XPTitle
		{0x9c9e, uint32(len(kv)), dataOff + uint32(len(tv))}, // XPKeywords
	} {
		_ = binary.Write(&tiff, le, e.tag)
		_ = binary.Write(&tiff, le, uint16(1)) // BYTE
		_ = binary.Write(&tiff, le, e.count)
		_ = binary.Write(&tiff, le, e.offset)
	}
	_ = binary.Write(&tiff, le, uint32(0)) // no next IFD
	tiff.Write(tv)
	tiff.Write(kv)

	payload := append([]byte("Exif\x00\x00"), tiff.Bytes()...)
	raw := img.Bytes()
	var out bytes.Buffer
	out.Write(raw[:2]) // SOI
	out.Write([]byte{0xFF, 0xE1})
	_ = binary.Write(&out, binary.BigEndian, uint16(len(payload)+2))
	out.Write(payload)
	out.Write(raw[2:])
	return out.Bytes()
}

func TestSkipTagged_AlreadyTaggedJPEG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tagged.jpg")
	if err := os.WriteFile(path, xpTaggedJPEG(t, "Harbor", "boat;dusk"), 0o644); err != nil {
		t.Fatal(err)
	}

	tags, err := filehandler.ReadExistingTags(path)
	if err != nil {
		t.Fatalf("ReadExistingTags() error = %v", err)
	}
	if tags.Title != "Harbor" || !slices.Equal(tags.Keywords, []string{"boat", "dusk"}) {
		t.Errorf("ReadExistingTags() = %+v", tags)
	}

	item := filehandler.WorkItem{Path: path, RelPath: "tagged.jpg"}
	if skip, reason := SkipTagged(false)(item); !skip || reason == "" {
		t.Errorf("SkipTagged(false) = %v, %q; want skipped with a reason", skip, reason)
	}
	if skip, _ := SkipTagged(true)(item); skip {
		t.Error("SkipTagged(true) skipped a tagged file; overwrite should re-tag it")
	}
}
