package matcher

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/steward-sh/steward/pkg/types"
)

// envSafeKey mirrors the environment-safety limits of spec.md section
// 4.1.1: only letters, digits and underscore, and a maximum length.
var envSafeKey = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

const envKeyMaxLen = 255
const envValueMaxLen = 4096

func sanitizeLabelKey(key string) (string, bool) {
	upper := strings.ToUpper(key)
	var b strings.Builder
	for _, r := range upper {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	sanitized := b.String()
	if sanitized == "" || len(sanitized) > envKeyMaxLen || !envSafeKey.MatchString(sanitized) {
		return "", false
	}
	return sanitized, true
}

// envInputs bundles what buildEnv needs, independent of RunSpec variant.
type envInputs struct {
	AppID       string
	AppVersion  string
	TaskID      string
	Host        string
	Resources   types.ResourceRequest
	Labels      map[string]string
	UserEnv     map[string]string
	EnvPrefix   string
	Bindings    []PortBinding // declared order
}

// buildEnv constructs the launch descriptor's environment map per the
// contract of spec.md section 4.1.1.
func buildEnv(in envInputs) map[string]string {
	auto := make(map[string]string)
	prefix := in.EnvPrefix

	var hostPorts []int
	for _, b := range in.Bindings {
		if b.HostPort != nil {
			hostPorts = append(hostPorts, *b.HostPort)
		}
	}
	for i, p := range hostPorts {
		auto[prefix+"PORT"+strconv.Itoa(i)] = strconv.Itoa(p)
	}
	if len(hostPorts) > 0 {
		strs := make([]string, len(hostPorts))
		for i, p := range hostPorts {
			strs[i] = strconv.Itoa(p)
		}
		auto[prefix+"PORTS"] = strings.Join(strs, ",")
	}

	for _, b := range in.Bindings {
		if b.HostPort == nil {
			continue
		}
		if b.ContainerPort != 0 {
			auto[prefix+"PORT_"+strconv.Itoa(b.ContainerPort)] = strconv.Itoa(*b.HostPort)
		}
		if b.Name != "" {
			auto[prefix+"PORT_"+strings.ToUpper(b.Name)] = strconv.Itoa(*b.HostPort)
		}
	}

	auto[prefix+"HOST"] = in.Host

	// Whitelisted unprefixed variables (spec.md 4.1.1: "a small whitelist
	// ... is emitted unprefixed regardless").
	unprefixed := map[string]string{
		"MESOS_TASK_ID":                in.TaskID,
		"MARATHON_APP_ID":              in.AppID,
		"MARATHON_APP_VERSION":         in.AppVersion,
		"MARATHON_APP_RESOURCE_CPUS":   formatFloat(in.Resources.CPUs),
		"MARATHON_APP_RESOURCE_MEM":    formatFloat(in.Resources.MemMB),
		"MARATHON_APP_RESOURCE_DISK":   formatFloat(in.Resources.DiskMB),
		"MARATHON_APP_RESOURCE_GPUS":   formatFloat(in.Resources.GPUs),
	}

	var labelKeys []string
	for k := range in.Labels {
		labelKeys = append(labelKeys, k)
	}
	sort.Strings(labelKeys)

	var validLabelKeys []string
	for _, k := range labelKeys {
		v := in.Labels[k]
		sanitized, keyOK := sanitizeLabelKey(k)
		if keyOK {
			validLabelKeys = append(validLabelKeys, k)
		}
		if keyOK && len(v) <= envValueMaxLen {
			auto[prefix+"MARATHON_APP_LABEL_"+sanitized] = v
		}
		// A key that fits still appears in MARATHON_APP_LABELS even if its
		// value doesn't (spec.md 4.1.1).
	}
	unprefixed["MARATHON_APP_LABELS"] = strings.Join(validLabelKeys, " ")

	result := make(map[string]string, len(auto)+len(unprefixed)+len(in.UserEnv))
	for k, v := range auto {
		result[k] = v
	}
	for k, v := range unprefixed {
		result[k] = v
	}
	// User-supplied env overrides any automatically-generated variable of
	// the same name (spec.md 4.1.1).
	for k, v := range in.UserEnv {
		result[k] = v
	}
	return result
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
