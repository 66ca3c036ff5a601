package pathcontext

import (
	"math"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSanitizeFileName(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "report.pdf", want: "report.pdf"},
		{name: "traversal", in: "../../etc/passwd", want: "etc_passwd"},
		{name: "windows traversal", in: `..\..\boot.ini`, want: "boot.ini"},
		{name: "null byte", in: "file\x00name.txt", want: "filename.txt"},
		{name: "control chars", in: "a\tb\nc.png", want: "abc.png"},
		{name: "reserved chars", in: `a:b*c?"d<e>f|g.png`, want: "a_b_c__d_e_f_g.png"},
		{name: "reserved name", in: "CON.txt", want: "_CON.txt"},
		{name: "reserved name lowercase", in: "lpt1", want: "_lpt1"},
		{name: "nfc", in: "cafe\u0301.jpg", want: "caf\u00e9.jpg"},
		{name: "emoji", in: "launch 🚀.png", want: "launch 🚀.png"},
		{name: "dots only", in: "...", want: DefaultFileName},
		{name: "empty", in: "", want: DefaultFileName},
		{name: "whitespace", in: "   ", want: DefaultFileName},
		{name: "invalid utf8", in: "\xff\xfe", want: DefaultFileName},
		{name: "trailing dots", in: "notes.txt...", want: "notes.txt"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeFileName(tc.in); got != tc.want {
				t.Fatalf("SanitizeFileName(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestSanitizeFileNameClampsAndKeepsExtension(t *testing.T) {
	got := SanitizeFileName(strings.Repeat("a", 300) + ".pdf")
	if len(got) != maxFileNameBytes {
		t.Fatalf("expected %d bytes, got %d", maxFileNameBytes, len(got))
	}
	if !strings.HasSuffix(got, ".pdf") {
		t.Fatalf("expected extension to survive, got %q", got[len(got)-8:])
	}

	unicodeName := SanitizeFileName(strings.Repeat("ü", 200) + ".docx")
	if len(unicodeName) > maxFileNameBytes || !utf8.ValidString(unicodeName) {
		t.Fatalf("expected valid utf8 within limit, got %d bytes", len(unicodeName))
	}
}

func FuzzSanitizeFileName(f *testing.F) {
	seeds := []string{
		"",
		"../../../../etc/shadow",
		strings.Repeat("😀", 300),
		"\x00\x01\x02",
		"NUL",
		"a..b..c",
		". .. ...",
		`C:\Windows\System32\..\drivers`,
		strings.Repeat("x", 254) + "..pdf",
	}
	for _, seed := range seeds {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, in string) {
		out := SanitizeFileName(in)
		if out == "" {
			t.Fatalf("empty result for %q", in)
		}
		if len(out) > maxFileNameBytes {
			t.Fatalf("result too long (%d) for %q", len(out), in)
		}
		if strings.Contains(out, "..") {
			t.Fatalf("result %q contains traversal", out)
		}
		if strings.ContainsAny(out, "\x00/\\") {
			t.Fatalf("result %q contains separator or NUL", out)
		}
		if !utf8.ValidString(out) {
			t.Fatalf("result %q is not valid utf8", out)
		}
	})
}

func TestNormalizeMetric(t *testing.T) {
	cases := map[string]struct {
		in   float64
		want float64
	}{
		"nan":      {math.NaN(), 0},
		"inf":      {math.Inf(1), 0},
		"neg inf":  {math.Inf(-1), 0},
		"negative": {-3.5, 0},
		"positive": {42.25, 42.25},
	}
	for name, tc := range cases {
		if got := NormalizeMetric(tc.in); got != tc.want {
			t.Fatalf("%s: got %v, want %v", name, got, tc.want)
		}
	}
}
