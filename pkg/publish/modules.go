package publish

import (
	"io"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/rpmmirror/pkg/content"
)

type moduleProfileYAML struct {
	RPMs []string `yaml:"rpms"`
}

type moduleDataYAML struct {
	Name         string                       `yaml:"name"`
	Stream       string                       `yaml:"stream"`
	Version      int64                        `yaml:"version"`
	Context      string                       `yaml:"context,omitempty"`
	Arch         string                       `yaml:"arch,omitempty"`
	Summary      string                       `yaml:"summary,omitempty"`
	Description  string                       `yaml:"description,omitempty"`
	Profiles     map[string]moduleProfileYAML `yaml:"profiles,omitempty"`
	Dependencies []moduleDepsYAML             `yaml:"dependencies,omitempty"`
	Artifacts    *moduleProfileYAML           `yaml:"artifacts,omitempty"`
}

type moduleDepsYAML struct {
	Requires map[string][]string `yaml:"requires"`
}

type moduleDocYAML struct {
	Document string         `yaml:"document"`
	Version  int            `yaml:"version"`
	Data     moduleDataYAML `yaml:"data"`
}

type moduleDefaultsDataYAML struct {
	Module   string              `yaml:"module"`
	Stream   string              `yaml:"stream,omitempty"`
	Profiles map[string][]string `yaml:"profiles,omitempty"`
}

type moduleDefaultsDocYAML struct {
	Document string                 `yaml:"document"`
	Version  int                    `yaml:"version"`
	Data     moduleDefaultsDataYAML `yaml:"data"`
}

// writeModules serializes module and defaults records as a multi-document
// YAML stream. yaml.v3 sorts map keys, so output is deterministic.
func writeModules(w io.Writer, modules []*content.ModuleRecord, defaults []*content.ModuleDefaultsRecord) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)

	for _, m := range modules {
		data := moduleDataYAML{
			Name:        m.Name,
			Stream:      m.Stream,
			Version:     m.Version,
			Context:     m.Context,
			Arch:        m.Arch,
			Summary:     m.Summary,
			Description: m.Description,
		}
		if len(m.Profiles) > 0 {
			data.Profiles = make(map[string]moduleProfileYAML, len(m.Profiles))
			for name, rpms := range m.Profiles {
				data.Profiles[name] = moduleProfileYAML{RPMs: rpms}
			}
		}
		if len(m.Dependencies) > 0 {
			requires := make(map[string][]string, len(m.Dependencies))
			for _, d := range m.Dependencies {
				requires[d.Module] = d.Streams
			}
			data.Dependencies = []moduleDepsYAML{{Requires: requires}}
		}
		if len(m.Artifacts) > 0 {
			data.Artifacts = &moduleProfileYAML{RPMs: m.Artifacts}
		}

		doc := moduleDocYAML{Document: "modulemd", Version: 2, Data: data}
		if err := enc.Encode(doc); err != nil {
			return err
		}
	}

	for _, d := range defaults {
		doc := moduleDefaultsDocYAML{
			Document: "modulemd-defaults",
			Version:  1,
			Data: moduleDefaultsDataYAML{
				Module:   d.Module,
				Stream:   d.Stream,
				Profiles: d.Profiles,
			},
		}
		if err := enc.Encode(doc); err != nil {
			return err
		}
	}

	return enc.Close()
}
