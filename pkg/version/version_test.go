package version

import (
	"strings"
	"testing"
)

func TestVersion(t *testing.T) {
	if Version == "" {
		t.Fatal("embedded version is empty")
	}
	if strings.TrimSpace(Version) != Version {
		t.Errorf("version %q carries whitespace", Version)
	}
	if String() != Version {
		t.Errorf("String() = %q", String())
	}
	if want := "jidl version " + Version; Full() != want {
		t.Errorf("Full() = %q, want %q", Full(), want)
	}
}
