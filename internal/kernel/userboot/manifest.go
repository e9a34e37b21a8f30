package userboot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"

	"github.com/meshx-org/fiber/internal/fx"
	"github.com/meshx-org/fiber/internal/kernel"
)

// Manifest describes what userboot starts: processes in the root job and a
// tree of child jobs with their own policies and processes.
type Manifest struct {
	// Wait keeps userboot running until every started process terminates
	Wait      bool          `yaml:"wait" toml:"wait" json:"wait"`
	Jobs      []JobSpec     `yaml:"jobs" toml:"jobs" json:"jobs,omitempty"`
	Processes []ProcessSpec `yaml:"processes" toml:"processes" json:"processes,omitempty"`
}

// JobSpec is a child job. Policy is applied relative to the parent's.
type JobSpec struct {
	Name      string        `yaml:"name" toml:"name" json:"name"`
	Policy    []PolicySpec  `yaml:"policy" toml:"policy" json:"policy,omitempty"`
	Jobs      []JobSpec     `yaml:"jobs" toml:"jobs" json:"jobs,omitempty"`
	Processes []ProcessSpec `yaml:"processes" toml:"processes" json:"processes,omitempty"`
}

// PolicySpec names a condition and action, e.g. new_channel and deny
type PolicySpec struct {
	Condition string `yaml:"condition" toml:"condition" json:"condition"`
	Action    string `yaml:"action" toml:"action" json:"action"`
}

// ProcessSpec is a process started with a registered program
type ProcessSpec struct {
	Name    string   `yaml:"name" toml:"name" json:"name"`
	Program string   `yaml:"program" toml:"program" json:"program"`
	Args    []string `yaml:"args" toml:"args" json:"args,omitempty"`
	Env     []string `yaml:"env" toml:"env" json:"env,omitempty"`
}

// ErrInvalidManifest is wrapped by every parse and validation failure
var ErrInvalidManifest = errors.New("invalid boot manifest")

// LoadManifest reads and parses the manifest at path. The format follows
// the file extension.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return ParseManifest(data, filepath.Ext(path))
}

// ParseManifest decodes data as YAML (".yaml", ".yml") or TOML (".toml")
func ParseManifest(data []byte, ext string) (*Manifest, error) {
	var m Manifest
	var err error
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &m)
	case ".toml":
		err = toml.Unmarshal(data, &m)
	default:
		return nil, fmt.Errorf("%w: unsupported format %q", ErrInvalidManifest, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}
	return &m, nil
}

// Validate checks names, policies and that every program is registered
func (m *Manifest) Validate(programs *kernel.Registry) error {
	if err := validateProcesses(m.Processes, "root", programs); err != nil {
		return err
	}
	return validateJobs(m.Jobs, "root", programs)
}

func validateJobs(jobs []JobSpec, parent string, programs *kernel.Registry) error {
	for _, j := range jobs {
		if j.Name == "" {
			return fmt.Errorf("%w: unnamed job under %s", ErrInvalidManifest, parent)
		}
		path := parent + "/" + j.Name
		if _, err := j.basicPolicy(); err != nil {
			return fmt.Errorf("job %s: %w", path, err)
		}
		if err := validateProcesses(j.Processes, path, programs); err != nil {
			return err
		}
		if err := validateJobs(j.Jobs, path, programs); err != nil {
			return err
		}
	}
	return nil
}

func validateProcesses(procs []ProcessSpec, job string, programs *kernel.Registry) error {
	for _, p := range procs {
		if p.Name == "" {
			return fmt.Errorf("%w: unnamed process in %s", ErrInvalidManifest, job)
		}
		if _, ok := programs.Get(p.Program); !ok {
			return fmt.Errorf("%w: process %s/%s runs unknown program %q", ErrInvalidManifest, job, p.Name, p.Program)
		}
	}
	return nil
}

func (j *JobSpec) basicPolicy() ([]fx.PolicyBasic, error) {
	entries := make([]fx.PolicyBasic, 0, len(j.Policy))
	for _, p := range j.Policy {
		cond, ok := fx.ParsePolicyCondition(p.Condition)
		if !ok {
			return nil, fmt.Errorf("%w: unknown policy condition %q", ErrInvalidManifest, p.Condition)
		}
		action, ok := fx.ParsePolicyAction(p.Action)
		if !ok {
			return nil, fmt.Errorf("%w: unknown policy action %q", ErrInvalidManifest, p.Action)
		}
		entries = append(entries, fx.PolicyBasic{Condition: cond, Action: action})
	}
	return entries, nil
}
