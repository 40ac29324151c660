package version

import (
	"strings"
	"testing"
)

func TestGet(t *testing.T) {
	v := Get()
	if v == "" {
		t.Fatal("embedded version should not be empty")
	}
	if strings.ContainsAny(v, " \n\t") {
		t.Errorf("version %q should be trimmed", v)
	}
}

func TestInfoString(t *testing.T) {
	info := Info{Version: "1.2.3", GoVersion: "go1.24.0", Platform: "linux/amd64"}
	if got := info.String(); got != "buildcheck 1.2.3 (go1.24.0, linux/amd64)" {
		t.Errorf("String() = %q", got)
	}

	info.Revision = "0123456789abcdef"
	info.Modified = true
	if got := info.String(); !strings.HasSuffix(got, " 0123456789ab-dirty") {
		t.Errorf("String() = %q", got)
	}
}

func TestBuild(t *testing.T) {
	info := Build()
	if info.Version != Get() {
		t.Errorf("Build().Version = %q, want %q", info.Version, Get())
	}
	if info.Platform == "" || info.GoVersion == "" {
		t.Error("platform and go version should be populated")
	}
}
