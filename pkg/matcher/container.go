package matcher

import (
	specs "github.com/opencontainers/runtime-spec/specs-go"

	"github.com/steward-sh/steward/pkg/types"
)

// buildContainerSpecForApp translates an application's image/command into
// an OCI runtime spec fragment. Only the process and the image reference
// (carried as Root.Path) are populated; namespaces and mounts are left
// empty, and nothing else in this module fills them in.
func buildContainerSpecForApp(app *types.ApplicationSpec) *specs.Spec {
	args := commandArgs(app.Command)
	var env []string
	for k, v := range app.Env {
		env = append(env, k+"="+v)
	}
	return &specs.Spec{
		Version: specs.Version,
		Process: &specs.Process{
			Args: args,
			Env:  env,
			Cwd:  "/",
		},
		Root: &specs.Root{
			Path: app.Image,
		},
	}
}

func commandArgs(command string) []string {
	if command == "" {
		return nil
	}
	return []string{"/bin/sh", "-c", command}
}
