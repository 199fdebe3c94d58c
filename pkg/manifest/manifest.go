package manifest

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/maruhq/maru/pkg/errdefs"
	"github.com/maruhq/maru/pkg/types"
)

// Manifest is one YAML document describing a deployment.
type Manifest struct {
	Kind string         `yaml:"kind"`
	Spec DeploymentSpec `yaml:"spec"`
}

// DeploymentSpec is the user-facing deployment description.
type DeploymentSpec struct {
	Name      string       `yaml:"name"`
	Image     string       `yaml:"image"`
	Replicas  *int         `yaml:"replicas"`
	Resources ResourceSpec `yaml:"resources"`
}

// ResourceSpec carries the raw quantity values. Either field may be a bare
// integer or a suffixed string ("100m", "512Mi", "1Gi").
type ResourceSpec struct {
	CPU    any `yaml:"cpu"`
	Memory any `yaml:"memory"`
}

// Parse reads a multi-document YAML stream and returns the validated
// manifests. Empty documents are skipped.
func Parse(r io.Reader) ([]Manifest, error) {
	decoder := yaml.NewDecoder(r)

	var manifests []Manifest
	for {
		var doc Manifest
		err := decoder.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, errdefs.InvalidSpec("parse manifest: %v", err)
		}
		if doc.Kind == "" && doc.Spec.Name == "" && doc.Spec.Image == "" {
			continue
		}
		if err := doc.Validate(); err != nil {
			return nil, err
		}
		manifests = append(manifests, doc)
	}
	return manifests, nil
}

// Validate checks structural requirements and the resource grammar.
func (m *Manifest) Validate() error {
	if m.Kind != "Deployment" {
		return errdefs.InvalidSpec("unsupported kind %q", m.Kind)
	}
	if m.Spec.Name == "" {
		return errdefs.InvalidSpec("deployment name cannot be empty")
	}
	if m.Spec.Image == "" {
		return errdefs.InvalidSpec("image cannot be empty")
	}
	if m.Spec.Replicas != nil && *m.Spec.Replicas < 0 {
		return errdefs.InvalidSpec("replicas cannot be negative")
	}
	if _, err := m.Resources(); err != nil {
		return err
	}
	return nil
}

// Replicas returns the declared replica count, defaulting to 1.
func (m *Manifest) Replicas() int {
	if m.Spec.Replicas == nil {
		return 1
	}
	return *m.Spec.Replicas
}

// Resources resolves the quantity grammar into millicores and MB.
func (m *Manifest) Resources() (types.Resources, error) {
	cpu, err := ParseCPU(m.Spec.Resources.CPU)
	if err != nil {
		return types.Resources{}, err
	}
	mem, err := ParseMemory(m.Spec.Resources.Memory)
	if err != nil {
		return types.Resources{}, err
	}
	return types.Resources{CPUMillis: cpu, MemoryMB: mem}, nil
}

// ToCreateRequest converts the manifest into the API create request.
func (m *Manifest) ToCreateRequest() (types.CreateDeploymentRequest, error) {
	res, err := m.Resources()
	if err != nil {
		return types.CreateDeploymentRequest{}, err
	}
	replicas := m.Replicas()
	return types.CreateDeploymentRequest{
		Name:      m.Spec.Name,
		Image:     m.Spec.Image,
		Replicas:  &replicas,
		Resources: res,
	}, nil
}

// ParseCPU resolves a CPU quantity to millicores: a trailing "m" means
// millicores ("100m" = 100), a bare integer means whole cores ("2" =
// 2000). Fractional values are rejected.
func ParseCPU(v any) (uint64, error) {
	switch val := v.(type) {
	case nil:
		return 0, nil
	case int:
		return wholeCores(int64(val))
	case int64:
		return wholeCores(val)
	case uint64:
		return uint64(val) * 1000, nil
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return 0, nil
		}
		if stripped, ok := strings.CutSuffix(s, "m"); ok {
			millis, err := strconv.ParseUint(stripped, 10, 64)
			if err != nil {
				return 0, errdefs.InvalidSpec("invalid cpu quantity %q", val)
			}
			return millis, nil
		}
		cores, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return 0, errdefs.InvalidSpec("invalid cpu quantity %q (fractional cores are not supported; use millicores like \"500m\")", val)
		}
		return cores * 1000, nil
	default:
		return 0, errdefs.InvalidSpec("invalid cpu quantity %v", v)
	}
}

func wholeCores(cores int64) (uint64, error) {
	if cores < 0 {
		return 0, errdefs.InvalidSpec("cpu quantity cannot be negative")
	}
	return uint64(cores) * 1000, nil
}

// ParseMemory resolves a memory quantity to MB: a bare integer is MB, "Mi"
// multiplies by 1, "Gi" by 1024. Fractional values are rejected.
func ParseMemory(v any) (uint64, error) {
	switch val := v.(type) {
	case nil:
		return 0, nil
	case int:
		if val < 0 {
			return 0, errdefs.InvalidSpec("memory quantity cannot be negative")
		}
		return uint64(val), nil
	case int64:
		if val < 0 {
			return 0, errdefs.InvalidSpec("memory quantity cannot be negative")
		}
		return uint64(val), nil
	case uint64:
		return val, nil
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return 0, nil
		}
		multiplier := uint64(1)
		if stripped, ok := strings.CutSuffix(s, "Gi"); ok {
			multiplier, s = 1024, stripped
		} else if stripped, ok := strings.CutSuffix(s, "Mi"); ok {
			multiplier, s = 1, stripped
		}
		mb, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return 0, errdefs.InvalidSpec("invalid memory quantity %q", val)
		}
		return mb * multiplier, nil
	default:
		return 0, errdefs.InvalidSpec("invalid memory quantity %v", v)
	}
}

// Describe renders a short identity for error messages.
func (m *Manifest) Describe() string {
	return fmt.Sprintf("%s/%s", strings.ToLower(m.Kind), m.Spec.Name)
}
