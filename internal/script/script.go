// Package script describes lifecycle scripts: ordered lists of arena
// operations with optional expectations, loaded from YAML.
package script

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/pavanmanishd/genarena"
)

// Op is a single arena operation.
type Op string

const (
	OpAllocate  Op = "allocate"
	OpConstruct Op = "construct"
	OpNew       Op = "new"
	OpGet       Op = "get"
	OpDestroy   Op = "destroy"
	OpTake      Op = "take"
	OpLeaks     Op = "leaks"
	OpRelease   Op = "release"
)

// expectations maps the names accepted in Step.Expect to arena errors.
var expectations = map[string]error{
	"stale_handle": genarena.ErrStaleHandle,
	"already_live": genarena.ErrAlreadyLive,
	"arena_full":   genarena.ErrArenaFull,
	"released":     genarena.ErrReleased,
}

// Step is one line of a script.
type Step struct {
	Op Op `yaml:"op"`
	// Ref names the handle the step works on. allocate and new bind it,
	// every other op reads it. Unbound refs resolve to the zero Handle.
	Ref   string `yaml:"ref,omitempty"`
	Value int    `yaml:"value,omitempty"`
	// Want is the payload get and take are expected to return.
	Want *int `yaml:"want,omitempty"`
	// Expect names the error the step is expected to fail with.
	Expect string `yaml:"expect,omitempty"`
}

// Script is a named sequence of steps run against a fresh arena.
type Script struct {
	Arena genarena.Config `yaml:"arena"`
	Steps []Step          `yaml:"steps"`
}

// Load reads the script at path. Arena settings missing from the file are
// taken from defaults.
func Load(path string, defaults genarena.Config) (*Script, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open script")
	}
	defer f.Close()

	s, err := Parse(f, defaults)
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	return s, nil
}

// Parse decodes a YAML script from r. Arena settings missing from the
// document are taken from defaults.
func Parse(r io.Reader, defaults genarena.Config) (*Script, error) {
	s := &Script{Arena: defaults}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(s); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrap(err, "decode script")
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks the arena config and every step.
func (s *Script) Validate() error {
	if err := s.Arena.Validate(); err != nil {
		return errors.Wrap(err, "invalid arena config")
	}
	for i, st := range s.Steps {
		switch st.Op {
		case OpAllocate, OpConstruct, OpNew, OpGet, OpDestroy, OpTake:
			if st.Ref == "" {
				return errors.Errorf("step %d: %s requires a ref", i, st.Op)
			}
		case OpLeaks, OpRelease:
		default:
			return errors.Errorf("step %d: unknown op %q", i, st.Op)
		}
		if st.Expect != "" {
			if _, ok := expectations[st.Expect]; !ok {
				return errors.Errorf("step %d: unknown expectation %q", i, st.Expect)
			}
		}
		if st.Want != nil && st.Op != OpGet && st.Op != OpTake {
			return errors.Errorf("step %d: want is only valid for get and take", i)
		}
	}
	return nil
}
