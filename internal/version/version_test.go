package version

import (
	"runtime/debug"
	"strings"
	"testing"
)

func TestFull(t *testing.T) {
	got := Full()
	if !strings.Contains(got, Version) || !strings.Contains(got, Commit) {
		t.Errorf("Full() = %q, want version %q and commit %q", got, Version, Commit)
	}
}

func TestUserAgent(t *testing.T) {
	ua := UserAgent()
	if !strings.Contains(ua, "UPnP/1.1") {
		t.Errorf("UserAgent() = %q, want UPnP/1.1 token", ua)
	}
	if !strings.HasSuffix(ua, Product+"/"+Version) {
		t.Errorf("UserAgent() = %q, want suffix %q", ua, Product+"/"+Version)
	}
}

func TestResolve(t *testing.T) {
	vcs := []debug.BuildSetting{
		{Key: "vcs.revision", Value: "0123456789abcdef"},
		{Key: "vcs.modified", Value: "true"},
	}

	tests := []struct {
		name                  string
		version, commit       string
		info                  *debug.BuildInfo
		wantVersion, wantHash string
	}{
		{"no build info", "", "", nil, "dev", "unknown"},
		{"ldflags win", "v1.2.0", "abc", &debug.BuildInfo{Main: debug.Module{Version: "v9.9.9"}, Settings: vcs}, "v1.2.0", "abc"},
		{"module version and dirty revision", "", "", &debug.BuildInfo{Main: debug.Module{Version: "v0.4.1"}, Settings: vcs}, "v0.4.1", "0123456-dirty"},
		{"devel build", "", "", &debug.BuildInfo{Main: debug.Module{Version: "(devel)"}}, "dev", "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, c := resolve(tt.version, tt.commit, tt.info)
			if v != tt.wantVersion || c != tt.wantHash {
				t.Errorf("resolve() = (%q, %q), want (%q, %q)", v, c, tt.wantVersion, tt.wantHash)
			}
		})
	}
}
