package resolver

import (
	"strings"
	"testing"

	"github.com/sonroyaalmerol/cuebot/internal/faults"
)

func TestValidateReference(t *testing.T) {
	tests := []struct {
		name string
		ref  string
		ok   bool
	}{
		{"https url", "https://www.youtube.com/watch?v=dQw4w9WgXcQ", true},
		{"url with query params", "https://www.youtube.com/watch?v=dQw4w9WgXcQ&t=42", true},
		{"http url", "http://example.com/video1", true},
		{"bare id", "dQw4w9WgXcQ", true},
		{"empty", "", false},
		{"too long", "https://x.com/" + strings.Repeat("a", MaxReferenceLen), false},
		{"semicolon", "https://x.com/a;ls", false},
		{"pipe", "https://x.com/a|ls", false},
		{"backtick", "https://x.com/`id`", false},
		{"subshell", "https://x.com/$(id)", false},
		{"newline", "https://x.com/a\nb", false},
		{"quote", "https://x.com/a'b", false},
		{"ftp scheme", "ftp://x.com/a", false},
		{"file scheme", "file:///etc/passwd", false},
		{"httpx scheme", "httpx://x.com/a", false},
		{"no host", "https:///path", false},
		{"bare with ampersand", "abc&def", false},
		{"bare traversal", "../../etc/passwd", false},
		{"flag injection", "--exec=rm", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateReference(tt.ref)
			if tt.ok && err != nil {
				t.Errorf("ValidateReference(%q) = %v, want nil", tt.ref, err)
			}
			if !tt.ok {
				if err == nil {
					t.Errorf("ValidateReference(%q) = nil, want error", tt.ref)
				} else if !faults.Is(err, faults.UserInput) {
					t.Errorf("ValidateReference(%q) kind = %v, want user input", tt.ref, faults.KindOf(err))
				}
			}
		})
	}
}

func TestValidateQuery(t *testing.T) {
	tests := []struct {
		query string
		ok    bool
	}{
		{"never gonna give you up", true},
		{"AC/DC - Back in Black", true},
		{"", false},
		{"   ", false},
		{strings.Repeat("a", MaxQueryLen), true},
		{strings.Repeat("a", MaxQueryLen+1), false},
		{"song; rm -rf /", false},
		{"a & b", false},
		{"$(whoami)", false},
		{"--exec", false},
	}
	for _, tt := range tests {
		err := ValidateQuery(tt.query)
		if (err == nil) != tt.ok {
			t.Errorf("ValidateQuery(%q) = %v, want ok=%v", tt.query, err, tt.ok)
		}
	}
}

func TestSanitizeQuery(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Queen - Bohemian Rhapsody (Remastered 2011)", "Queen - Bohemian Rhapsody Remastered 2011"},
		{"Simon & Garfunkel - The Boxer", "Simon Garfunkel - The Boxer"},
		{"$uicideboy$ - Paris", "uicideboy - Paris"},
		{"-Intro", "Intro"},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		got := SanitizeQuery(tt.in)
		if got != tt.want {
			t.Errorf("SanitizeQuery(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if err := ValidateQuery(got); err != nil {
			t.Errorf("ValidateQuery(SanitizeQuery(%q)) = %v", tt.in, err)
		}
	}
	if got := SanitizeQuery(strings.Repeat("ab ", 100)); len(got) > MaxQueryLen {
		t.Errorf("len = %d, want <= %d", len(got), MaxQueryLen)
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		in   string
		kind string
		err  bool
	}{
		{"video", videoJSON, "video", false},
		{"leading blank lines", "\n\n" + videoJSON, "video", false},
		{"search", searchJSON, "search", false},
		{"indented", "{\n  \"_type\": \"video\",\n  \"id\": \"a\",\n  \"title\": \"A\"\n}\n", "video", false},
		{"playlist", `{"_type":"playlist","id":"PL1","title":"Mix","entries":[{"id":"a","title":"A","url":"https://y/a"}]}`, "playlist", false},
		{"unknown tag", `{"_type":"multi_video"}`, "", true},
		{"no tag", `{"title":"x"}`, "", true},
		{"empty", "", "", true},
		{"whitespace", " \n\t\n", "", true},
		{"truncated", `{"_type":"video",`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Parse([]byte(tt.in))
			if tt.err {
				if err == nil {
					t.Errorf("Parse() = %T, want error", res)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if got := res.kind(); got != tt.kind {
				t.Errorf("kind = %q, want %q", got, tt.kind)
			}
		})
	}
}
