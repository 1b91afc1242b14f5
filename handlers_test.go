package main

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestFormBoolParsesValues(t *testing.T) {
	cases := []struct {
		raw  string
		want bool
	}{
		{"", false},              // absent falls back to the default
		{"no_normalize=1", true},
		{"no_normalize=true", true},
		{"no_normalize=0", false},
		{"no_normalize=false", false}, // explicit false must not read as set
		{"no_normalize=banana", false},
	}

	for _, c := range cases {
		req := httptest.NewRequest("POST", "/api/waveform/upload", strings.NewReader(c.raw))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if got := formBool(req, "no_normalize", false); got != c.want {
			t.Errorf("formBool(%q) = %v, want %v", c.raw, got, c.want)
		}
	}
}
