package config

import "testing"

func TestMaskURL(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"postgres://user:secret@db:5432/chat", "postgres://****:****@db:5432/chat"},
		{"postgres://db:5432/chat", "postgres://db:5432/chat"},
		{"user:p@ss@host", "****:****@host"},
	}
	for _, tc := range cases {
		if got := maskURL(tc.in); got != tc.want {
			t.Errorf("maskURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestLocationFallsBack(t *testing.T) {
	c := &Config{Timezone: "Not/AZone"}
	if c.Location() == nil {
		t.Fatal("expected a usable location for unknown zone")
	}
	c = &Config{Timezone: "UTC"}
	if c.Location().String() != "UTC" {
		t.Errorf("expected UTC, got %s", c.Location())
	}
}
