package inspect

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/media-upload-router/internal/core/domain"
	"github.com/kirillkom/media-upload-router/internal/core/recovery"
)

const (
	KindImage    = "image"
	KindVideo    = "video"
	KindDocument = "document"
	KindArchive  = "archive"
	KindOther    = "other"
)

// Inspector sniffs the content type of buffered uploads and probes PDFs
// for structural integrity.
type Inspector struct{}

func New() *Inspector {
	return &Inspector{}
}

func (i *Inspector) Inspect(ctx context.Context, fileName string, data []byte) (domain.PayloadInfo, error) {
	if err := ctx.Err(); err != nil {
		return domain.PayloadInfo{}, err
	}
	sum := sha256.Sum256(data)
	detected := mimetype.Detect(data)
	info := domain.PayloadInfo{
		Size:     int64(len(data)),
		MimeType: detected.String(),
		Checksum: hex.EncodeToString(sum[:]),
	}
	if base, _, ok := strings.Cut(info.MimeType, ";"); ok {
		info.MimeType = strings.TrimSpace(base)
	}
	info.ContentKind = contentKind(info.MimeType)

	claimsPDF := strings.EqualFold(filepath.Ext(fileName), ".pdf")
	info.IsPDF = detected.Is("application/pdf")
	if !claimsPDF && !info.IsPDF {
		return info, nil
	}
	pages, err := pdfPages(data)
	if err != nil || !info.IsPDF {
		reason := "not a pdf document"
		if err != nil {
			reason = err.Error()
		}
		return info, corrupted(fileName, info, reason)
	}
	info.PDFPages = pages
	return info, nil
}

func corrupted(fileName string, info domain.PayloadInfo, reason string) *domain.UploadError {
	ue := domain.NewUploadError(recovery.CodeUploadCorrupted, domain.StorageDetails{
		FileType: info.MimeType,
		FileSize: info.Size,
	})
	ue.Message = fmt.Sprintf("%s failed integrity check: %s", fileName, reason)
	return ue
}

// pdfPages parses the cross-reference table and page tree. The parser
// panics on some malformed inputs, which count as corruption.
func pdfPages(data []byte) (pages int, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages, err = 0, fmt.Errorf("malformed pdf: %v", r)
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("open pdf: %w", err)
	}
	pages = reader.NumPage()
	if pages == 0 {
		return 0, errors.New("pdf has no pages")
	}
	for n := 1; n <= pages; n++ {
		if reader.Page(n).V.IsNull() {
			return 0, fmt.Errorf("pdf page %d is missing", n)
		}
	}
	return pages, nil
}

func contentKind(mime string) string {
	switch {
	case strings.HasPrefix(mime, "image/"):
		return KindImage
	case strings.HasPrefix(mime, "video/"):
		return KindVideo
	case mime == "application/pdf",
		strings.HasPrefix(mime, "text/"),
		strings.Contains(mime, "officedocument"),
		strings.Contains(mime, "msword"),
		strings.Contains(mime, "ms-excel"),
		strings.Contains(mime, "ms-powerpoint"),
		strings.Contains(mime, "opendocument"):
		return KindDocument
	case mime == "application/zip",
		mime == "application/gzip",
		mime == "application/x-tar",
		mime == "application/x-7z-compressed":
		return KindArchive
	default:
		return KindOther
	}
}
