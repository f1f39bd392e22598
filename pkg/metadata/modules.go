package metadata

import (
	"errors"
	"io"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/rpmmirror/pkg/content"
)

// modulemd document tags.
const (
	modulemdDocument         = "modulemd"
	modulemdDefaultsDocument = "modulemd-defaults"
)

// flexString accepts YAML scalars that may be written as numbers, the way
// module streams ("18") frequently are.
type flexString string

func (s *flexString) UnmarshalYAML(node *yaml.Node) error {
	*s = flexString(node.Value)
	return nil
}

type modulemdEnvelope struct {
	Document string    `yaml:"document"`
	Version  int       `yaml:"version"`
	Data     yaml.Node `yaml:"data"`
}

type modulemdDataYAML struct {
	Name        flexString `yaml:"name"`
	Stream      flexString `yaml:"stream"`
	Version     int64      `yaml:"version"`
	Context     flexString `yaml:"context"`
	Arch        string     `yaml:"arch"`
	Summary     string     `yaml:"summary"`
	Description string     `yaml:"description"`
	Profiles    map[string]struct {
		RPMs []string `yaml:"rpms"`
	} `yaml:"profiles"`
	Dependencies []struct {
		Requires map[string][]flexString `yaml:"requires"`
	} `yaml:"dependencies"`
	Artifacts struct {
		RPMs []string `yaml:"rpms"`
	} `yaml:"artifacts"`
}

type modulemdDefaultsDataYAML struct {
	Module   flexString              `yaml:"module"`
	Stream   flexString              `yaml:"stream"`
	Profiles map[string][]flexString `yaml:"profiles"`
}

// ModulesParser streams ModuleRecord and ModuleDefaultsRecord out of a
// modulemd multi-document YAML stream. Unknown document types are skipped.
type ModulesParser struct {
	dec     *yaml.Decoder
	lenient bool
	skipped int
}

// NewModulesParser wraps an already-decompressed modules.yaml stream.
func NewModulesParser(r io.Reader) *ModulesParser {
	return &ModulesParser{dec: yaml.NewDecoder(r)}
}

// NewLenientModulesParser is like NewModulesParser but skips documents whose
// data section fails to decode instead of failing the stream. Stream-level
// YAML syntax errors still fail: the decoder cannot resynchronize past them.
func NewLenientModulesParser(r io.Reader) *ModulesParser {
	return &ModulesParser{dec: yaml.NewDecoder(r), lenient: true}
}

// Skipped returns how many invalid documents a lenient parser has dropped.
func (p *ModulesParser) Skipped() int {
	return p.skipped
}

// Next returns the next record, or io.EOF when the stream is exhausted.
func (p *ModulesParser) Next() (content.Record, error) {
	for {
		var env modulemdEnvelope
		err := p.dec.Decode(&env)
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		if err != nil {
			return nil, malformed(FileModules, 0, err)
		}

		switch env.Document {
		case modulemdDocument:
			var data modulemdDataYAML
			if err := env.Data.Decode(&data); err != nil {
				if p.lenient {
					p.skipped++
					continue
				}
				return nil, malformed(FileModules, 0, err)
			}
			return moduleRecord(data), nil
		case modulemdDefaultsDocument:
			var data modulemdDefaultsDataYAML
			if err := env.Data.Decode(&data); err != nil {
				if p.lenient {
					p.skipped++
					continue
				}
				return nil, malformed(FileModules, 0, err)
			}
			return moduleDefaultsRecord(data), nil
		default:
			// modulemd-translations and friends are not mirrored.
			continue
		}
	}
}

func moduleRecord(data modulemdDataYAML) *content.ModuleRecord {
	rec := &content.ModuleRecord{
		Name:        string(data.Name),
		Stream:      string(data.Stream),
		Version:     data.Version,
		Context:     string(data.Context),
		Arch:        data.Arch,
		Summary:     strings.TrimSpace(data.Summary),
		Description: strings.TrimSpace(data.Description),
		Artifacts:   data.Artifacts.RPMs,
	}

	if len(data.Profiles) > 0 {
		rec.Profiles = make(map[string][]string, len(data.Profiles))
		for name, prof := range data.Profiles {
			rec.Profiles[name] = prof.RPMs
		}
	}

	for _, dep := range data.Dependencies {
		names := make([]string, 0, len(dep.Requires))
		for name := range dep.Requires {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			streams := make([]string, 0, len(dep.Requires[name]))
			for _, s := range dep.Requires[name] {
				streams = append(streams, string(s))
			}
			rec.Dependencies = append(rec.Dependencies, content.ModuleDependency{
				Module:  name,
				Streams: streams,
			})
		}
	}
	return rec
}

func moduleDefaultsRecord(data modulemdDefaultsDataYAML) *content.ModuleDefaultsRecord {
	rec := &content.ModuleDefaultsRecord{
		Module: string(data.Module),
		Stream: string(data.Stream),
	}
	if len(data.Profiles) > 0 {
		rec.Profiles = make(map[string][]string, len(data.Profiles))
		for stream, profiles := range data.Profiles {
			out := make([]string, 0, len(profiles))
			for _, p := range profiles {
				out = append(out, string(p))
			}
			rec.Profiles[stream] = out
		}
	}
	return rec
}
