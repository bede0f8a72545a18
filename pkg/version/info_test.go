package version

import (
	"runtime/debug"
	"strings"
	"testing"
)

func overrideBuildMetadata(t *testing.T, bi *debug.BuildInfo) {
	t.Helper()
	oldVersion, oldCommit, oldBuildTime, oldRead := AppVersion, GitCommit, BuildTime, readBuildInfo
	t.Cleanup(func() {
		AppVersion, GitCommit, BuildTime, readBuildInfo = oldVersion, oldCommit, oldBuildTime, oldRead
	})
	readBuildInfo = func() (*debug.BuildInfo, bool) { return bi, bi != nil }
}

func TestCurrent_Defaults(t *testing.T) {
	overrideBuildMetadata(t, nil)
	AppVersion = ""
	GitCommit = ""
	BuildTime = ""

	info := Current("")

	if info.Service != Unknown {
		t.Fatalf("expected service %q, got %q", Unknown, info.Service)
	}
	if info.Version != DevelopmentVersion {
		t.Fatalf("expected version %q, got %q", DevelopmentVersion, info.Version)
	}
	if info.Commit != Unknown || info.BuildTime != Unknown {
		t.Fatalf("expected unknown commit and build time, got %q %q", info.Commit, info.BuildTime)
	}
	if info.GoVersion == "" {
		t.Fatal("expected go version")
	}
}

func TestCurrent_FallsBackToBuildInfo(t *testing.T) {
	overrideBuildMetadata(t, &debug.BuildInfo{
		Main: debug.Module{Version: "v0.3.1"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "abc123"},
			{Key: "vcs.time", Value: "2026-10-01T10:00:00Z"},
		},
	})
	AppVersion = DevelopmentVersion
	GitCommit = Unknown
	BuildTime = Unknown

	info := Current("ticketwarden")

	if info.Version != "v0.3.1" || info.Commit != "abc123" || info.BuildTime != "2026-10-01T10:00:00Z" {
		t.Fatalf("unexpected info %+v", info)
	}
}

func TestCurrent_LinkerFlagsWin(t *testing.T) {
	overrideBuildMetadata(t, &debug.BuildInfo{
		Main:     debug.Module{Version: "(devel)"},
		Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "abc123"}},
	})
	AppVersion = "v1.0.0"
	GitCommit = "fff000"
	BuildTime = Unknown

	info := Current("ticketwarden")

	if info.Version != "v1.0.0" || info.Commit != "fff000" {
		t.Fatalf("unexpected info %+v", info)
	}
	if !strings.HasPrefix(info.String(), "ticketwarden@v1.0.0 (commit=fff000") {
		t.Fatalf("unexpected String() %q", info.String())
	}
}
