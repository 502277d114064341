package matcher

import (
	"testing"

	"github.com/steward-sh/steward/pkg/types"
)

func TestBuildEnvPortsAndWhitelist(t *testing.T) {
	p8080 := 8080
	p9090 := 9090
	bindings := []PortBinding{
		{Name: "http", ContainerPort: 80, HostPort: &p8080},
		{Name: "admin", ContainerPort: 81, HostPort: &p9090},
	}
	env := buildEnv(envInputs{
		AppID:      "/prod/web",
		AppVersion: "2026-08-03T00:00:00.000Z",
		TaskID:     "task-1",
		Host:       "agent-1",
		Resources:  types.ResourceRequest{CPUs: 1, MemMB: 128},
		Bindings:   bindings,
	})

	if env["PORT0"] != "8080" || env["PORT1"] != "9090" {
		t.Fatalf("expected positional PORT0/PORT1, got %v / %v", env["PORT0"], env["PORT1"])
	}
	if env["PORTS"] != "8080,9090" {
		t.Fatalf("expected PORTS to list both ports, got %q", env["PORTS"])
	}
	if env["PORT_80"] != "8080" || env["PORT_HTTP"] != "8080" {
		t.Fatalf("expected PORT_<containerport> and PORT_<NAME> aliases, got %v / %v", env["PORT_80"], env["PORT_HTTP"])
	}
	if env["MESOS_TASK_ID"] != "task-1" {
		t.Fatalf("expected unprefixed MESOS_TASK_ID, got %q", env["MESOS_TASK_ID"])
	}
	if env["MARATHON_APP_ID"] != "/prod/web" {
		t.Fatalf("expected unprefixed MARATHON_APP_ID, got %q", env["MARATHON_APP_ID"])
	}
}

func TestBuildEnvUserOverrideWins(t *testing.T) {
	env := buildEnv(envInputs{
		Host:    "agent-1",
		UserEnv: map[string]string{"HOST": "overridden"},
	})
	if env["HOST"] != "overridden" {
		t.Fatalf("expected user env to override the generated HOST variable, got %q", env["HOST"])
	}
}

func TestBuildEnvLabelSanitization(t *testing.T) {
	env := buildEnv(envInputs{
		Host:   "agent-1",
		Labels: map[string]string{"team-name": "payments", "": "dropped"},
	})
	if env["MARATHON_APP_LABEL_TEAM_NAME"] != "payments" {
		t.Fatalf("expected sanitized label key, got keys %v", env)
	}
}
