package gitsource

import (
	"path/filepath"
	"testing"
)

func TestLocalPath(t *testing.T) {
	base := filepath.Join("data", "repos")
	testCases := []struct {
		name    string
		url     string
		want    string
		wantErr bool
	}{
		{"https", "https://github.com/me/cards.git", filepath.Join(base, "github.com", "me", "cards"), false},
		{"https without suffix", "https://gitlab.com/team/sub/deck", filepath.Join(base, "gitlab.com", "team", "sub", "deck"), false},
		{"scp style", "git@github.com:me/cards.git", filepath.Join(base, "github.com", "me", "cards"), false},
		{"ssh scheme", "ssh://git@example.org:2222/x/y.git", filepath.Join(base, "example.org", "x", "y"), false},
		{"traversal", "https://example.org/../../etc", "", true},
		{"no path", "https://example.org/", "", true},
		{"not a url", "just some words", "", true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := LocalPath(base, tc.url)
			if (err != nil) != tc.wantErr {
				t.Fatalf("Expected error=%v, but got %v", tc.wantErr, err)
			}
			if got != tc.want {
				t.Errorf("Expected '%s', but got '%s'", tc.want, got)
			}
		})
	}
}
