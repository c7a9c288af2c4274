package version

import (
	"runtime/debug"
	"testing"
)

func TestResolve(t *testing.T) {
	t.Parallel()
	bi := &debug.BuildInfo{
		Main: debug.Module{Version: "v0.3.0"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789abcdef0123"},
			{Key: "vcs.time", Value: "2026-01-02T03:04:05Z"},
			{Key: "vcs.modified", Value: "true"},
		},
	}

	got := resolve(Info{}, bi)
	if got.Version != "v0.3.0" || got.BuildTime != "2026-01-02T03:04:05Z" || !got.Modified {
		t.Fatalf("resolve() = %+v", got)
	}
	if s := got.String(); s != "v0.3.0 (0123456789ab-dirty)" {
		t.Fatalf("String() = %q", s)
	}

	got = resolve(Info{Version: "v1.0.0", Commit: "abc"}, bi)
	if got.Version != "v1.0.0" || got.Commit != "abc" {
		t.Fatalf("ldflags should win, got %+v", got)
	}

	got = resolve(Info{}, &debug.BuildInfo{Main: debug.Module{Version: "(devel)"}})
	if got.String() != "dev" {
		t.Fatalf("devel build = %q", got.String())
	}
	if resolve(Info{}, nil).Version != "dev" {
		t.Fatal("nil build info should resolve to dev")
	}
}

func TestString(t *testing.T) {
	t.Parallel()
	if got, want := String(), Resolve().String(); got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}
