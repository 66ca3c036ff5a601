package recommend

import (
	"path"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/kirillkom/media-upload-router/internal/core/domain"
)

var phaseAffinity = map[domain.PipelineStage]domain.FolderKind{
	domain.StageIdeasPlanning:    domain.FolderDocuments,
	domain.StageCreation:         domain.FolderMedia,
	domain.StageInternalApproval: domain.FolderDocuments,
	domain.StageCustomerApproval: domain.FolderPressReleases,
	domain.StageDistribution:     domain.FolderPressReleases,
	domain.StageMonitoring:       domain.FolderDocuments,
}

var mediaExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".webp": {}, ".svg": {}, ".heic": {},
	".tif": {}, ".tiff": {}, ".bmp": {}, ".mp4": {}, ".mov": {}, ".avi": {}, ".mkv": {},
	".webm": {}, ".mp3": {}, ".wav": {}, ".m4a": {},
}

var documentExtensions = map[string]struct{}{
	".pdf": {}, ".doc": {}, ".docx": {}, ".xls": {}, ".xlsx": {}, ".ppt": {}, ".pptx": {},
	".odt": {}, ".ods": {}, ".odp": {}, ".txt": {}, ".rtf": {}, ".csv": {}, ".md": {},
}

// Bare text/plain is not listed: it only counts as a document through a
// document extension such as .txt or .md.
var documentMIMEPrefixes = []string{
	"application/pdf",
	"application/msword",
	"application/vnd.ms-",
	"application/vnd.openxmlformats-officedocument",
	"application/vnd.oasis.opendocument",
	"application/rtf",
	"text/csv",
	"text/rtf",
	"text/markdown",
	"text/tab-separated-values",
}

var (
	pressNamePatterns    = []string{"pressemitteilung", "press_release", "press-release"}
	mediaNamePatterns    = []string{"logo", "brand"}
	documentNamePatterns = []string{"report", "analyse", "analysis", "briefing"}
)

type fileSignal struct {
	kind   domain.FolderKind
	known  bool
	prefix bool
}

func classifyFile(file domain.FileInfo) fileSignal {
	name := strings.ToLower(strings.TrimSpace(file.Name))
	if strings.HasPrefix(name, "pm_") || containsAny(name, pressNamePatterns) {
		return fileSignal{kind: domain.FolderPressReleases, known: true, prefix: true}
	}

	mime := strings.ToLower(strings.TrimSpace(file.MimeType))
	switch {
	case strings.HasPrefix(mime, "image/"), strings.HasPrefix(mime, "video/"), strings.HasPrefix(mime, "audio/"):
		return fileSignal{kind: domain.FolderMedia, known: true}
	case hasAnyPrefix(mime, documentMIMEPrefixes):
		return fileSignal{kind: domain.FolderDocuments, known: true}
	}

	ext := path.Ext(name)
	if _, ok := mediaExtensions[ext]; ok {
		return fileSignal{kind: domain.FolderMedia, known: true}
	}
	if _, ok := documentExtensions[ext]; ok {
		return fileSignal{kind: domain.FolderDocuments, known: true}
	}

	switch {
	case containsAny(name, mediaNamePatterns):
		return fileSignal{kind: domain.FolderMedia, known: true}
	case containsAny(name, documentNamePatterns):
		return fileSignal{kind: domain.FolderDocuments, known: true}
	}
	return fileSignal{}
}

// inferFolderKind derives a kind from a folder name such as "Medien" or
// "Pressemitteilungen" when the caller did not set one.
func inferFolderKind(folder domain.Folder) (domain.FolderKind, bool) {
	switch folder.Kind {
	case domain.FolderDocuments, domain.FolderMedia, domain.FolderPressReleases:
		return folder.Kind, true
	}

	name := foldName(folder.Name)
	switch {
	case strings.Contains(name, "press"):
		return domain.FolderPressReleases, true
	case strings.Contains(name, "document"), strings.Contains(name, "dokument"):
		return domain.FolderDocuments, true
	case strings.Contains(name, "media"), strings.Contains(name, "medien"):
		return domain.FolderMedia, true
	}
	return "", false
}

func foldName(name string) string {
	folder := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(folder, name)
	if err != nil {
		folded = name
	}
	return strings.ToLower(folded)
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func defaultFolderName(kind domain.FolderKind) string {
	switch kind {
	case domain.FolderDocuments:
		return "Documents"
	case domain.FolderMedia:
		return "Media"
	case domain.FolderPressReleases:
		return "Press Releases"
	default:
		return string(kind)
	}
}
