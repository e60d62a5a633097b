package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
	"gopkg.in/yaml.v3"
)

// DefaultMatrix returns the standard scenarios: the dev server, and a production build
// followed by the production server, both with server-side rendering.
func DefaultMatrix() []Scenario {
	return []Scenario{
		{
			Command: "dev --with-ssr",
		},
		{
			Build:   ldvalue.NewOptionalString("build --with-ssr"),
			Command: "start --with-ssr",
		},
	}
}

type matrixFile struct {
	Scenarios []scenarioParams `yaml:"scenarios"`
}

type scenarioParams struct {
	Name           string  `yaml:"name"`
	Build          *string `yaml:"build"`
	Command        string  `yaml:"command"`
	ReadyTimeoutMS *int    `yaml:"readyTimeoutMs"`
}

// LoadMatrix reads a scenario matrix from a YAML file such as:
//
//	scenarios:
//	  - command: dev --with-ssr
//	  - build: build --with-ssr
//	    command: start --with-ssr
//	    readyTimeoutMs: 60000
func LoadMatrix(path string) ([]Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	scenarios, err := ParseMatrix(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return scenarios, nil
}

// ParseMatrix parses the YAML format described for LoadMatrix.
func ParseMatrix(data []byte) ([]Scenario, error) {
	var f matrixFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&f); err != nil {
		return nil, fmt.Errorf("malformed scenario matrix: %w", err)
	}
	if len(f.Scenarios) == 0 {
		return nil, errors.New("scenario matrix has no scenarios")
	}
	ret := make([]Scenario, 0, len(f.Scenarios))
	names := make(map[string]bool)
	for i, p := range f.Scenarios {
		if strings.TrimSpace(p.Command) == "" {
			return nil, fmt.Errorf("scenario %d has no command", i+1)
		}
		if p.Build != nil && strings.TrimSpace(*p.Build) == "" {
			p.Build = nil
		}
		if p.ReadyTimeoutMS != nil && *p.ReadyTimeoutMS <= 0 {
			return nil, fmt.Errorf("scenario %d has a non-positive readyTimeoutMs", i+1)
		}
		s := Scenario{
			Name:           p.Name,
			Build:          ldvalue.NewOptionalStringFromPointer(p.Build),
			Command:        p.Command,
			ReadyTimeoutMS: ldvalue.NewOptionalIntFromPointer(p.ReadyTimeoutMS),
		}
		if names[s.String()] {
			return nil, fmt.Errorf("duplicate scenario %q", s)
		}
		names[s.String()] = true
		ret = append(ret, s)
	}
	return ret, nil
}
