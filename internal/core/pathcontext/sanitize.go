package pathcontext

import (
	"math"
	"path"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	maxFileNameBytes = 255
	maxExtensionLen  = 16
	DefaultFileName  = "unnamed-file"
)

var reservedNames = map[string]struct{}{
	"CON": {}, "PRN": {}, "AUX": {}, "NUL": {},
	"COM1": {}, "COM2": {}, "COM3": {}, "COM4": {}, "COM5": {}, "COM6": {}, "COM7": {}, "COM8": {}, "COM9": {},
	"LPT1": {}, "LPT2": {}, "LPT3": {}, "LPT4": {}, "LPT5": {}, "LPT6": {}, "LPT7": {}, "LPT8": {}, "LPT9": {},
}

var unsafeChars = strings.NewReplacer(
	"/", "_", `\`, "_", ":", "_", "*", "_", "?", "_",
	`"`, "_", "<", "_", ">", "_", "|", "_",
)

// SanitizeFileName turns arbitrary user input into a single safe path
// element. The result never contains "..", a separator or a NUL byte, is at
// most 255 bytes long and is never empty.
func SanitizeFileName(name string) string {
	out := cleanName(name)
	if out == "" || strings.Trim(out, "_.") == "" {
		return DefaultFileName
	}
	return out
}

func cleanName(name string) string {
	name = strings.ToValidUTF8(name, "")
	cleaner := transform.Chain(runes.Remove(runes.Predicate(unicode.IsControl)), norm.NFC)
	cleaned, _, err := transform.String(cleaner, name)
	if err != nil {
		cleaned = stripControl(name)
	}

	for _, seq := range []string{"../", `..\`, "/..", `\..`} {
		for strings.Contains(cleaned, seq) {
			cleaned = strings.ReplaceAll(cleaned, seq, "")
		}
	}
	cleaned = unsafeChars.Replace(cleaned)
	for strings.Contains(cleaned, "..") {
		cleaned = strings.ReplaceAll(cleaned, "..", ".")
	}
	cleaned = strings.Trim(cleaned, ". ")

	base := strings.TrimSuffix(cleaned, path.Ext(cleaned))
	if _, reserved := reservedNames[strings.ToUpper(base)]; reserved {
		cleaned = "_" + cleaned
	}
	return clampBytes(cleaned, maxFileNameBytes)
}

func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}

// clampBytes shortens s to limit bytes on a rune boundary, keeping a short
// extension intact.
func clampBytes(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	ext := path.Ext(s)
	if len(ext) > maxExtensionLen || len(ext) == len(s) {
		ext = ""
	}
	stem := truncateRunes(strings.TrimSuffix(s, ext), limit-len(ext))
	if ext != "" {
		stem = strings.TrimRight(stem, ". ")
	}
	return stem + ext
}

func truncateRunes(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// segment sanitises one path component; empty input yields fallback.
func segment(value, fallback string) string {
	out := cleanName(strings.TrimSpace(value))
	if out == "" || strings.Trim(out, "_.") == "" {
		return fallback
	}
	return out
}

// NormalizeMetric clamps NaN, infinities and negatives to zero.
func NormalizeMetric(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}
