package sanitize

import "testing"

func TestText(t *testing.T) {
	cases := []struct{ in, want string }{
		{"  Big   deal ", "Big deal"},
		{"<b>Acme</b> renewal", "Acme renewal"},
		{"&lt;script&gt;alert(1)&lt;/script&gt;ok", "alert(1)ok"},
		{"Tom &amp; Jerry", "Tom & Jerry"},
		{"line\nbreak", "line break"},
	}
	for _, tc := range cases {
		if got := Text(tc.in); got != tc.want {
			t.Fatalf("Text(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestMultilineKeepsLineBreaks(t *testing.T) {
	got := Multiline(" first  line \r\n<i>second</i>\n")
	if got != "first line\nsecond" {
		t.Fatalf("unexpected result %q", got)
	}
}
