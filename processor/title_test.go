package processor

import "testing"

func TestCleanTitle(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"entities and tags", "A &amp; B <b>Co</b>", "A & B Co"},
		{"highlight markup", "<b>wireless</b> mouse 2.4GHz", "wireless mouse 2.4GHz"},
		{"nested tags", "<span class=\"hl\"><em>gaming</em> keyboard</span>", "gaming keyboard"},
		{"quote entities", "&quot;slim&quot; case &#39;new&#39;", `"slim" case 'new'`},
		{"nbsp and whitespace", "usb&nbsp;hub   4  port", "usb hub 4 port"},
		{"plain text untouched", "plain product title", "plain product title"},
		{"empty", "", ""},
	}
	for _, c := range cases {
		if got := CleanTitle(c.in); got != c.want {
			t.Errorf("%s: CleanTitle(%q) = %q, want %q", c.name, c.in, got, c.want)
		}
	}
}
