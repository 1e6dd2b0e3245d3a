package zip

import (
	"archive/zip"
	"bytes"
	"testing"
)

func TestArchiveAssetsSkipsEmpty(t *testing.T) {
	archive := ArchiveAssets([]Asset{
		{Filename: "one.png", MIME: "image/png", Data: []byte("first")},
		{Filename: "two.png", MIME: "image/png"},
		{Filename: "three.png", MIME: "image/png", Data: []byte("third")},
	})
	if len(archive) == 0 {
		t.Fatalf("expected archive bytes")
	}

	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	if len(zr.File) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(zr.File))
	}
	if zr.File[0].Name != "one.png" || zr.File[1].Name != "three.png" {
		t.Fatalf("unexpected entries: %s, %s", zr.File[0].Name, zr.File[1].Name)
	}
}
