package checksum

import "testing"

func TestSum(t *testing.T) {
	// sha256("")
	const empty = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got := Sum(nil); got != empty {
		t.Errorf("Sum(nil) = %s", got)
	}
	if ETag(nil) != `"`+empty+`"` {
		t.Errorf("ETag(nil) = %s", ETag(nil))
	}
}

func TestMatch(t *testing.T) {
	data := []byte("# Page\n")
	sum := Sum(data)
	cases := []struct {
		ifMatch string
		want    bool
	}{
		{"", true},
		{"*", true},
		{sum, true},
		{`"` + sum + `"`, true},
		{`W/"` + sum + `"`, true},
		{Sum([]byte("other")), false},
		{"garbage", false},
	}
	for _, c := range cases {
		if got := Match(c.ifMatch, data); got != c.want {
			t.Errorf("Match(%q) = %v, want %v", c.ifMatch, got, c.want)
		}
	}
}
