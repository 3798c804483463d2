package textutil

import "testing"

func TestClean(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "trims", in: "  Ev  ", want: "Ev"},
		{name: "strips markup", in: "<b>Kapı</b> önü<script>alert(1)</script>", want: "Kapı önü"},
		{name: "keeps ampersand", in: "Tom & Jerry <i>x</i>", want: "Tom & Jerry x"},
		{name: "composes", in: "Mu\u0308s\u0327teri", want: "Müşteri"},
		{name: "empty", in: "   ", want: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Clean(tc.in); got != tc.want {
				t.Fatalf("Clean(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestLengthCountsRunes(t *testing.T) {
	if got := Length("Müşteri"); got != 7 {
		t.Fatalf("expected 7 runes, got %d", got)
	}
}

func TestStripSpaces(t *testing.T) {
	if got := StripSpaces(" 0555 000\t00 00 "); got != "05550000000" {
		t.Fatalf("unexpected %q", got)
	}
}

func TestTruncateKeepsRuneBoundaries(t *testing.T) {
	cases := []struct {
		in    string
		limit int
		want  string
	}{
		{in: "çilek", limit: 1, want: "ç"},
		{in: "Şeker ürünü", limit: 8, want: "Şeker ür"},
		{in: "süt", limit: 10, want: "süt"},
		{in: "süt", limit: 0, want: "süt"},
	}
	for _, tc := range cases {
		if got := Truncate(tc.in, tc.limit); got != tc.want {
			t.Fatalf("Truncate(%q, %d) = %q, want %q", tc.in, tc.limit, got, tc.want)
		}
	}
}

func TestSingleLine(t *testing.T) {
	if got := SingleLine(" ürün\nbulunamadı\r\x00 ", 64); got != "ürün bulunamadı" {
		t.Fatalf("unexpected %q", got)
	}
	if got := SingleLine("ğğğğ", 2); got != "ğğ" {
		t.Fatalf("expected rune cut, got %q", got)
	}
}
