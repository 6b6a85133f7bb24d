// Package scenario loads YAML scenario files: chains of steps that are
// attached to the frame loop's process managers.
//
//	name: demo
//	watch: [tick]
//	chains:
//	  - name: intro
//	    manager: logic
//	    steps:
//	      - delay: 250ms
//	      - publish: greeting
//	        payload: {who: world}
//	      - script: |
//	          function update(dt) { succeed(); }
//	      - fail: giving up
package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/DanielMTyler/ellie-sub000/internal/script"
	"github.com/DanielMTyler/ellie-sub000/pkg/model"
)

// DefaultManager is used by chains that do not name one.
const DefaultManager = "logic"

// DefaultScriptTimeout bounds a script step's top-level code and each of its
// init and update calls when the step sets no timeout.
const DefaultScriptTimeout = time.Second

// Step kinds.
const (
	KindDelay   = "delay"
	KindPublish = "publish"
	KindScript  = "script"
	KindFail    = "fail"
)

// Scenario is a parsed scenario file.
type Scenario struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description,omitempty"`
	Watch       []string `yaml:"watch,omitempty"` // extra event types to log
	Chains      []Chain  `yaml:"chains"`
}

// Chain is a list of steps run one after another as a process chain.
type Chain struct {
	Name    string `yaml:"name"`
	Manager string `yaml:"manager,omitempty"`
	Steps   []Step `yaml:"steps"`
}

// Step is one process in a chain. Exactly one of Delay, Publish, Script,
// ScriptFile or Fail must be set.
type Step struct {
	Name string `yaml:"name,omitempty"`

	Delay *time.Duration `yaml:"delay,omitempty"`

	Publish string `yaml:"publish,omitempty"`
	Payload any    `yaml:"payload,omitempty"`

	Script     string         `yaml:"script,omitempty"`
	ScriptFile string         `yaml:"script_file,omitempty"`
	Vars       map[string]any `yaml:"vars,omitempty"`
	Timeout    time.Duration  `yaml:"timeout,omitempty"`

	Fail *string `yaml:"fail,omitempty"`
}

// Kind returns the step kind, or "" when no kind is set.
func (s Step) Kind() string {
	switch {
	case s.Delay != nil:
		return KindDelay
	case s.Publish != "":
		return KindPublish
	case s.Script != "" || s.ScriptFile != "":
		return KindScript
	case s.Fail != nil:
		return KindFail
	}
	return ""
}

func (s Step) kinds() int {
	n := 0
	for _, set := range []bool{s.Delay != nil, s.Publish != "", s.Script != "" || s.ScriptFile != "", s.Fail != nil} {
		if set {
			n++
		}
	}
	return n
}

// ManagerName returns the chain's manager, defaulting to DefaultManager.
func (c Chain) ManagerName() string {
	if c.Manager == "" {
		return DefaultManager
	}
	return c.Manager
}

// Load reads and validates the scenario at path. Relative script_file
// references are resolved against the scenario's directory.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	sc, err := Parse(data, filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sc, nil
}

// Parse decodes a scenario document, inlines script files found under dir and
// validates the result. Unknown fields are rejected.
func Parse(data []byte, dir string) (*Scenario, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var sc Scenario
	if err := dec.Decode(&sc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, model.NewValidationError("scenario is empty")
		}
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if err := sc.resolveScripts(dir); err != nil {
		return nil, err
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

func (sc *Scenario) resolveScripts(dir string) error {
	for ci := range sc.Chains {
		for si := range sc.Chains[ci].Steps {
			st := &sc.Chains[ci].Steps[si]
			if st.ScriptFile == "" || st.Script != "" {
				continue
			}
			p := st.ScriptFile
			if !filepath.IsAbs(p) {
				p = filepath.Join(dir, p)
			}
			src, err := os.ReadFile(p)
			if err != nil {
				return fmt.Errorf("chains[%d].steps[%d]: read script: %w", ci, si, err)
			}
			st.Script = string(src)
		}
	}
	return nil
}

// Validate checks the scenario's structure and compiles every script. It
// returns a *model.ValidationError listing all problems found.
func (sc *Scenario) Validate() error {
	var errs []model.FieldError

	if len(sc.Chains) == 0 {
		errs = append(errs, model.FieldError{Field: "chains", Message: "at least one chain is required"})
	}
	for _, w := range sc.Watch {
		if w == "" {
			errs = append(errs, model.FieldError{Field: "watch", Message: "event type must not be empty"})
		}
	}
	for ci, c := range sc.Chains {
		errs = append(errs, validateChain(ci, c)...)
	}

	if len(errs) == 0 {
		return nil
	}
	return model.NewValidationError("scenario validation failed", errs...)
}

func validateChain(ci int, c Chain) []model.FieldError {
	var errs []model.FieldError
	field := fmt.Sprintf("chains[%d]", ci)
	if len(c.Steps) == 0 {
		errs = append(errs, model.FieldError{Field: field + ".steps", Message: "chain has no steps"})
	}
	for si, st := range c.Steps {
		sf := fmt.Sprintf("%s.steps[%d]", field, si)
		switch n := st.kinds(); {
		case n == 0:
			errs = append(errs, model.FieldError{Field: sf, Message: "step must set one of delay, publish, script, script_file, fail"})
			continue
		case n > 1:
			errs = append(errs, model.FieldError{Field: sf, Message: "step sets more than one kind"})
			continue
		}
		switch st.Kind() {
		case KindDelay:
			if *st.Delay < 0 {
				errs = append(errs, model.FieldError{Field: sf + ".delay", Message: "delay must not be negative"})
			}
		case KindScript:
			if st.Script == "" {
				// script_file was not resolved
				errs = append(errs, model.FieldError{Field: sf + ".script_file", Message: "script file not loaded"})
			} else if err := script.Compile(stepName(c, si, st), st.Script); err != nil {
				errs = append(errs, model.FieldError{Field: sf + ".script", Message: err.Error()})
			}
			if st.Timeout < 0 {
				errs = append(errs, model.FieldError{Field: sf + ".timeout", Message: "timeout must not be negative"})
			}
		}
		if st.Payload != nil && st.Kind() != KindPublish {
			errs = append(errs, model.FieldError{Field: sf + ".payload", Message: "payload is only valid on publish steps"})
		}
	}
	return errs
}

// PublishedTypes returns every event type named by a publish step or the
// watch list, in first-seen order.
func (sc *Scenario) PublishedTypes() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(t string) {
		if t != "" && !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	for _, c := range sc.Chains {
		for _, st := range c.Steps {
			if st.Kind() == KindPublish {
				add(st.Publish)
			}
		}
	}
	for _, w := range sc.Watch {
		add(w)
	}
	return out
}

func stepName(c Chain, si int, st Step) string {
	if st.Name != "" {
		return st.Name
	}
	chain := c.Name
	if chain == "" {
		chain = "chain"
	}
	return fmt.Sprintf("%s/%d-%s", chain, si, st.Kind())
}
