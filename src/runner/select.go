package runner

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// ParseExec splits an --exec value into "local" or ("incus", instance).
func ParseExec(spec string) (kind, instance string, err error) {
	spec = strings.TrimSpace(spec)
	switch {
	case spec == "" || spec == "local":
		return "local", "", nil
	case strings.HasPrefix(spec, "incus:"):
		instance = strings.TrimPrefix(spec, "incus:")
		if instance == "" {
			return "", "", fmt.Errorf("--exec incus: needs an instance name")
		}
		return "incus", instance, nil
	}
	return "", "", fmt.Errorf("unsupported --exec %q (want local or incus:<instance>)", spec)
}

// FromSpec returns the Runner for an --exec value.
func FromSpec(spec string, log *zap.Logger) (Runner, error) {
	kind, instance, err := ParseExec(spec)
	if err != nil {
		return nil, err
	}
	if kind == "incus" {
		return ConnectIncus(instance, log)
	}
	return NewLocal(log), nil
}
