package content

import (
	"fmt"
	"strings"
)

// RecordType identifies one of the closed set of content record variants.
type RecordType string

const (
	TypePackage        RecordType = "package"
	TypeGroup          RecordType = "group"
	TypeCategory       RecordType = "category"
	TypeEnvironment    RecordType = "environment"
	TypeAdvisory       RecordType = "advisory"
	TypeModule         RecordType = "module"
	TypeModuleDefaults RecordType = "module-defaults"
)

// AllRecordTypes lists every record type in a stable order.
func AllRecordTypes() []RecordType {
	return []RecordType{
		TypePackage,
		TypeGroup,
		TypeCategory,
		TypeEnvironment,
		TypeAdvisory,
		TypeModule,
		TypeModuleDefaults,
	}
}

// ParseRecordType converts a string to a RecordType.
func ParseRecordType(s string) (RecordType, error) {
	switch RecordType(s) {
	case TypePackage, TypeGroup, TypeCategory, TypeEnvironment,
		TypeAdvisory, TypeModule, TypeModuleDefaults:
		return RecordType(s), nil
	}
	return "", fmt.Errorf("unknown record type: %s", s)
}

// NaturalKey is the stable identity of a content record, independent of its
// content digest. Two records with the same NaturalKey occupy the same
// logical content slot.
type NaturalKey struct {
	Type RecordType
	ID   string
}

func (k NaturalKey) String() string {
	return string(k.Type) + ":" + k.ID
}

// Less orders keys by type then ID. Package IDs encode
// name/epoch/version/release/arch, so architecture is the trailing
// tiebreak within a name.
func (k NaturalKey) Less(other NaturalKey) bool {
	if k.Type != other.Type {
		return k.Type < other.Type
	}
	return k.ID < other.ID
}

// Record is the common interface over all content record variants.
type Record interface {
	Type() RecordType
	Key() NaturalKey
	Fingerprint() Digest
}

// DepFlag is a dependency version comparison operator.
type DepFlag string

const (
	DepFlagAny DepFlag = ""
	DepFlagEQ  DepFlag = "EQ"
	DepFlagLT  DepFlag = "LT"
	DepFlagLE  DepFlag = "LE"
	DepFlagGT  DepFlag = "GT"
	DepFlagGE  DepFlag = "GE"
)

// Dependency is a single requires/provides/conflicts/obsoletes declaration.
type Dependency struct {
	Name       string
	Flags      DepFlag
	Epoch      string
	Version    string
	Release    string
	PreInstall bool
}

// Changelog is one changelog entry merged from other.xml.
type Changelog struct {
	Author string
	Date   int64
	Text   string
}

// PackageRecord is a normalized RPM package as described by primary.xml,
// with file lists and changelogs merged from filelists.xml and other.xml.
type PackageRecord struct {
	Name          string
	Epoch         string
	Version       string
	Release       string
	Arch          string
	ChecksumType  string
	Checksum      string
	Location      string
	Summary       string
	Description   string
	License       string
	Vendor        string
	SourceRPM     string
	BuildTime     int64
	PackageSize   int64
	InstalledSize int64
	ArchiveSize   int64

	Requires  []Dependency
	Provides  []Dependency
	Conflicts []Dependency
	Obsoletes []Dependency

	Files      []string
	Changelogs []Changelog
}

// NEVRA returns the canonical name-epoch:version-release.arch identifier.
func (p *PackageRecord) NEVRA() string {
	epoch := p.Epoch
	if epoch == "" {
		epoch = "0"
	}
	return fmt.Sprintf("%s-%s:%s-%s.%s", p.Name, epoch, p.Version, p.Release, p.Arch)
}

func (p *PackageRecord) Type() RecordType { return TypePackage }

func (p *PackageRecord) Key() NaturalKey {
	epoch := p.Epoch
	if epoch == "" {
		epoch = "0"
	}
	id := strings.Join([]string{p.Name, epoch, p.Version, p.Release, p.Arch, p.Checksum}, "/")
	return NaturalKey{Type: TypePackage, ID: id}
}

// GroupPackageType classifies a group member's install behavior.
type GroupPackageType string

const (
	GroupPackageMandatory   GroupPackageType = "mandatory"
	GroupPackageDefault     GroupPackageType = "default"
	GroupPackageOptional    GroupPackageType = "optional"
	GroupPackageConditional GroupPackageType = "conditional"
)

// GroupPackage is one package reference inside a comps group.
type GroupPackage struct {
	Name     string
	Type     GroupPackageType
	Requires string
}

// GroupRecord is a comps package group.
type GroupRecord struct {
	ID           string
	Name         string
	Description  string
	Default      bool
	UserVisible  bool
	DisplayOrder int
	LangOnly     string

	TranslatedNames        map[string]string
	TranslatedDescriptions map[string]string

	Packages []GroupPackage
}

func (g *GroupRecord) Type() RecordType { return TypeGroup }

func (g *GroupRecord) Key() NaturalKey {
	return NaturalKey{Type: TypeGroup, ID: g.ID}
}

// CategoryRecord is a comps category: an ordered list of group ids.
type CategoryRecord struct {
	ID           string
	Name         string
	Description  string
	DisplayOrder int

	TranslatedNames        map[string]string
	TranslatedDescriptions map[string]string

	Groups []string
}

func (c *CategoryRecord) Type() RecordType { return TypeCategory }

func (c *CategoryRecord) Key() NaturalKey {
	return NaturalKey{Type: TypeCategory, ID: c.ID}
}

// EnvironmentRecord is a comps environment: member groups plus option groups.
type EnvironmentRecord struct {
	ID           string
	Name         string
	Description  string
	DisplayOrder int

	TranslatedNames        map[string]string
	TranslatedDescriptions map[string]string

	Groups  []string
	Options []string
}

func (e *EnvironmentRecord) Type() RecordType { return TypeEnvironment }

func (e *EnvironmentRecord) Key() NaturalKey {
	return NaturalKey{Type: TypeEnvironment, ID: e.ID}
}

// AdvisoryReference is one reference entry of an advisory (bugzilla, CVE...).
type AdvisoryReference struct {
	Type  string
	ID    string
	Href  string
	Title string
}

// AdvisoryPackage is one affected package inside an advisory collection.
type AdvisoryPackage struct {
	Name            string
	Epoch           string
	Version         string
	Release         string
	Arch            string
	Src             string
	Filename        string
	ChecksumType    string
	Checksum        string
	RebootSuggested bool
}

// NEVRA returns the canonical identifier of the affected package.
func (p AdvisoryPackage) NEVRA() string {
	epoch := p.Epoch
	if epoch == "" {
		epoch = "0"
	}
	return fmt.Sprintf("%s-%s:%s-%s.%s", p.Name, epoch, p.Version, p.Release, p.Arch)
}

// AdvisoryModule identifies the module stream a collection applies to.
type AdvisoryModule struct {
	Name    string
	Stream  string
	Version string
	Context string
	Arch    string
}

// AdvisoryCollection is one pkglist collection of an advisory.
type AdvisoryCollection struct {
	Name      string
	ShortName string
	Module    *AdvisoryModule
	Packages  []AdvisoryPackage
}

// AdvisoryRecord is a normalized updateinfo advisory (erratum).
type AdvisoryRecord struct {
	ID              string
	AdvisoryType    string
	Severity        string
	Title           string
	Summary         string
	Description     string
	Solution        string
	Rights          string
	From            string
	Status          string
	Version         string
	Issued          string
	Updated         string
	RebootSuggested bool

	References  []AdvisoryReference
	Collections []AdvisoryCollection
}

func (a *AdvisoryRecord) Type() RecordType { return TypeAdvisory }

func (a *AdvisoryRecord) Key() NaturalKey {
	return NaturalKey{Type: TypeAdvisory, ID: a.ID}
}

// Packages flattens all collection package entries of the advisory.
func (a *AdvisoryRecord) Packages() []AdvisoryPackage {
	var out []AdvisoryPackage
	for _, c := range a.Collections {
		out = append(out, c.Packages...)
	}
	return out
}

// ModuleDependency is a module-level dependency on streams of another module.
type ModuleDependency struct {
	Module  string
	Streams []string
}

// ModuleRecord is one modulemd document (a module stream build).
type ModuleRecord struct {
	Name        string
	Stream      string
	Version     int64
	Context     string
	Arch        string
	Summary     string
	Description string

	Profiles     map[string][]string
	Artifacts    []string
	Dependencies []ModuleDependency
}

func (m *ModuleRecord) Type() RecordType { return TypeModule }

func (m *ModuleRecord) Key() NaturalKey {
	id := fmt.Sprintf("%s/%s/%d/%s/%s", m.Name, m.Stream, m.Version, m.Context, m.Arch)
	return NaturalKey{Type: TypeModule, ID: id}
}

// ModuleDefaultsRecord is one modulemd-defaults document.
type ModuleDefaultsRecord struct {
	Module   string
	Stream   string
	Profiles map[string][]string
}

func (m *ModuleDefaultsRecord) Type() RecordType { return TypeModuleDefaults }

func (m *ModuleDefaultsRecord) Key() NaturalKey {
	return NaturalKey{Type: TypeModuleDefaults, ID: m.Module}
}
