package apply

import (
	"testing"

	"github.com/objectplan/objectplan/internal/config"
)

func TestParseMode(t *testing.T) {
	cases := map[string]config.BuildMode{
		"":               config.ModeBuildAndDrop,
		"build-and-drop": config.ModeBuildAndDrop,
		"build-only":     config.ModeBuildOnly,
		"drop-only":      config.ModeDropOnly,
	}
	for in, want := range cases {
		got, err := parseMode(in)
		if err != nil {
			t.Fatalf("parseMode(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("parseMode(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestParseModeRejectsUnknown(t *testing.T) {
	if _, err := parseMode("bogus"); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}
