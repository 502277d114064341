package matcher

import (
	"testing"
	"time"

	"github.com/steward-sh/steward/pkg/errs"
	"github.com/steward-sh/steward/pkg/pathid"
	"github.com/steward-sh/steward/pkg/types"
)

func baseApp() *types.ApplicationSpec {
	return &types.ApplicationSpec{
		Command:   "echo hi",
		Image:     "alpine:latest",
		Instances: 1,
		Version:   time.Unix(0, 0).UTC(),
		Resources: types.ResourceRequest{CPUs: 0.5, MemMB: 64},
		Ports:     []types.PortDefinition{{Name: "http", Port: 0}},
	}
}

func baseOffer() Offer {
	return Offer{
		ID:      "offer-1",
		AgentID: "agent-1",
		Host:    "agent-1.example",
		Resources: []Resource{
			{Role: "*", Name: "cpus", Value: 2},
			{Role: "*", Name: "mem", Value: 512},
		},
		PortRanges: []PortRange{{Begin: 31000, End: 31010}},
	}
}

func TestMatchApplicationSuccess(t *testing.T) {
	m := New("")
	runSpec := &types.RunSpec{Path: pathid.Clean("/prod/web"), Kind: types.KindApplication, App: baseApp()}

	result, err := m.Match(Input{RunSpec: runSpec, Offer: baseOffer(), TaskID: "task-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Matched {
		t.Fatalf("expected match, got reasons %v", result.Reasons)
	}
	if len(result.Descriptor.Ports) != 1 || result.Descriptor.Ports[0].HostPort == nil {
		t.Fatalf("expected one allocated dynamic port, got %+v", result.Descriptor.Ports)
	}
	if result.Descriptor.Env["MESOS_TASK_ID"] != "task-1" {
		t.Fatalf("expected task id propagated into env, got %v", result.Descriptor.Env)
	}
}

func TestMatchApplicationInsufficientResources(t *testing.T) {
	m := New("")
	app := baseApp()
	app.Resources.CPUs = 100
	runSpec := &types.RunSpec{Path: pathid.Clean("/prod/web"), Kind: types.KindApplication, App: app}

	result, err := m.Match(Input{RunSpec: runSpec, Offer: baseOffer(), TaskID: "task-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Matched {
		t.Fatalf("expected no-match for oversized cpu demand")
	}
	if len(result.Reasons) == 0 {
		t.Fatalf("expected at least one no-match reason")
	}
}

func TestMatchApplicationDuplicatePortNameIsValidationError(t *testing.T) {
	m := New("")
	app := baseApp()
	app.Ports = []types.PortDefinition{{Name: "http"}, {Name: "http"}}
	runSpec := &types.RunSpec{Path: pathid.Clean("/prod/web"), Kind: types.KindApplication, App: app}

	_, err := m.Match(Input{RunSpec: runSpec, Offer: baseOffer(), TaskID: "task-1"})
	if err == nil {
		t.Fatalf("expected duplicate port names to be rejected as a Validation-class error before offer evaluation")
	}
	if !errs.Is(err, errs.KindValidation) {
		t.Fatalf("expected a Validation-class error, got %v", err)
	}
}

func TestMatchNeitherVariantSetIsValidationError(t *testing.T) {
	m := New("")
	runSpec := &types.RunSpec{Path: pathid.Clean("/prod/empty"), Kind: types.KindApplication}
	_, err := m.Match(Input{RunSpec: runSpec, Offer: baseOffer()})
	if err == nil {
		t.Fatalf("expected an error when neither App nor Pod is set")
	}
	if !errs.Is(err, errs.KindValidation) {
		t.Fatalf("expected a Validation-class error, got %v", err)
	}
}

func TestMatchPodSumsContainerResources(t *testing.T) {
	m := New("")
	pod := &types.PodSpec{
		Instances: 1,
		Version:   time.Unix(0, 0).UTC(),
		Containers: []types.ContainerSpec{
			{Name: "app", Resources: types.ResourceRequest{CPUs: 0.5, MemMB: 128}},
			{Name: "sidecar", Resources: types.ResourceRequest{CPUs: 0.25, MemMB: 64}},
		},
	}
	runSpec := &types.RunSpec{Path: pathid.Clean("/prod/bundle"), Kind: types.KindPod, Pod: pod}

	result, err := m.Match(Input{RunSpec: runSpec, Offer: baseOffer(), TaskID: "task-2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Matched {
		t.Fatalf("expected pod match, got reasons %v", result.Reasons)
	}
}
