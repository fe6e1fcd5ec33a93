package build

import "testing"

// TestVersionCmp exercises the ordering the coordinator relies on when
// comparing an encoder agent's reported version against a minimum.
func TestVersionCmp(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"0.1.0", "0.1.0", 0},
		{"0.2", "0.1.9", 1},
		{"0.1", "0.2", -1},
		{"1.0", "0.9.9", 1},
		// Longer strings win when the shared digits tie: "0.1.0" is
		// considered newer than "0.1" despite being numerically equal.
		{"0.1.0", "0.1", 1},
		{"0.1", "0.1.0", -1},
	}
	for _, c := range cases {
		if got := VersionCmp(c.a, c.b); got != c.want {
			t.Errorf("VersionCmp(%q, %q) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}

func TestIsVersion(t *testing.T) {
	valid := []string{"0.1.0", "1", "12.0.3.4"}
	for _, s := range valid {
		if !IsVersion(s) {
			t.Errorf("IsVersion(%q) = false, want true", s)
		}
	}
	invalid := []string{"", ".", "1.", ".1", "v1.0", "1.x", "one.two"}
	for _, s := range invalid {
		if IsVersion(s) {
			t.Errorf("IsVersion(%q) = true, want false", s)
		}
	}
}

// TestCurrentVersionIsWellFormed guards the constant every daemon and
// User-Agent string embeds.
func TestCurrentVersionIsWellFormed(t *testing.T) {
	if !IsVersion(Version) {
		t.Errorf("build.Version %q is not a valid version string", Version)
	}
}
