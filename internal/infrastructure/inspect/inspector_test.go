package inspect

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/kirillkom/media-upload-router/internal/core/domain"
	"github.com/kirillkom/media-upload-router/internal/core/recovery"
)

// minimalPDF builds a one-page document with a correct xref table.
func minimalPDF() []byte {
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>",
	}
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestInspectValidPDF(t *testing.T) {
	info, err := New().Inspect(context.Background(), "brief.pdf", minimalPDF())
	if err != nil {
		t.Fatalf("Inspect() error = %v", err)
	}
	if !info.IsPDF || info.PDFPages != 1 {
		t.Fatalf("expected a one-page pdf, got %+v", info)
	}
	if info.MimeType != "application/pdf" || info.ContentKind != KindDocument {
		t.Fatalf("unexpected classification: %+v", info)
	}
	if len(info.Checksum) != 64 {
		t.Fatalf("expected sha256 hex checksum, got %q", info.Checksum)
	}
}

func TestInspectTruncatedPDFIsCorrupted(t *testing.T) {
	data := minimalPDF()
	_, err := New().Inspect(context.Background(), "brief.pdf", data[:len(data)/2])

	var ue *domain.UploadError
	if !errors.As(err, &ue) {
		t.Fatalf("expected *domain.UploadError, got %v", err)
	}
	if ue.Category != domain.CategoryStorage || ue.Code != recovery.CodeUploadCorrupted {
		t.Fatalf("unexpected error %s.%s", ue.Category, ue.Code)
	}
}

func TestInspectMislabelledPDFIsCorrupted(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	_, err := New().Inspect(context.Background(), "brief.PDF", png)

	var ue *domain.UploadError
	if !errors.As(err, &ue) || ue.Code != recovery.CodeUploadCorrupted {
		t.Fatalf("expected UPLOAD_CORRUPTED, got %v", err)
	}
	details, ok := ue.Details.(domain.StorageDetails)
	if !ok || details.FileType != "image/png" {
		t.Fatalf("unexpected details: %#v", ue.Details)
	}
}

func TestInspectSniffsContentKind(t *testing.T) {
	cases := []struct {
		name string
		file string
		data []byte
		kind string
	}{
		{name: "png", file: "hero.png", data: []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), kind: KindImage},
		{name: "text", file: "notes.txt", data: []byte("campaign notes\n"), kind: KindDocument},
		{name: "zip", file: "bundle.zip", data: []byte("PK\x03\x04\x14\x00\x00\x00"), kind: KindArchive},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			info, err := New().Inspect(context.Background(), tc.file, tc.data)
			if err != nil {
				t.Fatalf("Inspect() error = %v", err)
			}
			if info.ContentKind != tc.kind {
				t.Fatalf("ContentKind = %s (mime %s), want %s", info.ContentKind, info.MimeType, tc.kind)
			}
			if info.Size != int64(len(tc.data)) {
				t.Fatalf("Size = %d", info.Size)
			}
		})
	}
}
