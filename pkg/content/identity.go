package content

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"sort"
	"strconv"
)

// Digest is a hex-encoded hash over a record's semantically significant
// fields. Equal digests mean no re-ingestion is needed; a digest change
// under the same NaturalKey means the slot was updated in place upstream.
type Digest string

// digester writes fields into a hash in a fixed, canonical order. Every
// field is length-prefixed so that adjacent fields cannot collide.
type digester struct {
	h hash.Hash
}

func newDigester() *digester {
	return &digester{h: sha256.New()}
}

func (d *digester) str(s string) {
	fmt.Fprintf(d.h, "%d:", len(s))
	d.h.Write([]byte(s))
}

func (d *digester) int(n int64) {
	d.str(strconv.FormatInt(n, 10))
}

func (d *digester) bool(b bool) {
	if b {
		d.str("1")
	} else {
		d.str("0")
	}
}

func (d *digester) strs(ss []string) {
	d.int(int64(len(ss)))
	for _, s := range ss {
		d.str(s)
	}
}

// strmap hashes a map in sorted key order so the digest is independent of
// Go map iteration order.
func (d *digester) strmap(m map[string]string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	d.int(int64(len(keys)))
	for _, k := range keys {
		d.str(k)
		d.str(m[k])
	}
}

func (d *digester) profiles(m map[string][]string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	d.int(int64(len(keys)))
	for _, k := range keys {
		d.str(k)
		d.strs(m[k])
	}
}

func (d *digester) deps(deps []Dependency) {
	d.int(int64(len(deps)))
	for _, dep := range deps {
		d.str(dep.Name)
		d.str(string(dep.Flags))
		d.str(dep.Epoch)
		d.str(dep.Version)
		d.str(dep.Release)
		d.bool(dep.PreInstall)
	}
}

func (d *digester) sum() Digest {
	return Digest(hex.EncodeToString(d.h.Sum(nil)))
}

// Fingerprint hashes every field that defines the package's content.
// Location and sizes are included: a relocated or repacked artifact is a
// content change even when the NEVRA is unchanged.
func (p *PackageRecord) Fingerprint() Digest {
	d := newDigester()
	d.str(p.Name)
	d.str(p.Epoch)
	d.str(p.Version)
	d.str(p.Release)
	d.str(p.Arch)
	d.str(p.ChecksumType)
	d.str(p.Checksum)
	d.str(p.Location)
	d.str(p.Summary)
	d.str(p.Description)
	d.str(p.License)
	d.str(p.Vendor)
	d.str(p.SourceRPM)
	d.int(p.BuildTime)
	d.int(p.PackageSize)
	d.int(p.InstalledSize)
	d.int(p.ArchiveSize)
	d.deps(p.Requires)
	d.deps(p.Provides)
	d.deps(p.Conflicts)
	d.deps(p.Obsoletes)
	d.strs(p.Files)
	d.int(int64(len(p.Changelogs)))
	for _, c := range p.Changelogs {
		d.str(c.Author)
		d.int(c.Date)
		d.str(c.Text)
	}
	return d.sum()
}

func (g *GroupRecord) Fingerprint() Digest {
	d := newDigester()
	d.str(g.ID)
	d.str(g.Name)
	d.str(g.Description)
	d.bool(g.Default)
	d.bool(g.UserVisible)
	d.int(int64(g.DisplayOrder))
	d.str(g.LangOnly)
	d.strmap(g.TranslatedNames)
	d.strmap(g.TranslatedDescriptions)
	d.int(int64(len(g.Packages)))
	for _, p := range g.Packages {
		d.str(p.Name)
		d.str(string(p.Type))
		d.str(p.Requires)
	}
	return d.sum()
}

func (c *CategoryRecord) Fingerprint() Digest {
	d := newDigester()
	d.str(c.ID)
	d.str(c.Name)
	d.str(c.Description)
	d.int(int64(c.DisplayOrder))
	d.strmap(c.TranslatedNames)
	d.strmap(c.TranslatedDescriptions)
	d.strs(c.Groups)
	return d.sum()
}

func (e *EnvironmentRecord) Fingerprint() Digest {
	d := newDigester()
	d.str(e.ID)
	d.str(e.Name)
	d.str(e.Description)
	d.int(int64(e.DisplayOrder))
	d.strmap(e.TranslatedNames)
	d.strmap(e.TranslatedDescriptions)
	d.strs(e.Groups)
	d.strs(e.Options)
	return d.sum()
}

func (a *AdvisoryRecord) Fingerprint() Digest {
	d := newDigester()
	d.str(a.ID)
	d.str(a.AdvisoryType)
	d.str(a.Severity)
	d.str(a.Title)
	d.str(a.Summary)
	d.str(a.Description)
	d.str(a.Solution)
	d.str(a.Rights)
	d.str(a.From)
	d.str(a.Status)
	d.str(a.Version)
	d.str(a.Issued)
	d.str(a.Updated)
	d.bool(a.RebootSuggested)
	d.int(int64(len(a.References)))
	for _, r := range a.References {
		d.str(r.Type)
		d.str(r.ID)
		d.str(r.Href)
		d.str(r.Title)
	}
	d.int(int64(len(a.Collections)))
	for _, c := range a.Collections {
		d.str(c.Name)
		d.str(c.ShortName)
		if c.Module != nil {
			d.bool(true)
			d.str(c.Module.Name)
			d.str(c.Module.Stream)
			d.str(c.Module.Version)
			d.str(c.Module.Context)
			d.str(c.Module.Arch)
		} else {
			d.bool(false)
		}
		d.int(int64(len(c.Packages)))
		for _, p := range c.Packages {
			d.str(p.Name)
			d.str(p.Epoch)
			d.str(p.Version)
			d.str(p.Release)
			d.str(p.Arch)
			d.str(p.Src)
			d.str(p.Filename)
			d.str(p.ChecksumType)
			d.str(p.Checksum)
			d.bool(p.RebootSuggested)
		}
	}
	return d.sum()
}

func (m *ModuleRecord) Fingerprint() Digest {
	d := newDigester()
	d.str(m.Name)
	d.str(m.Stream)
	d.int(m.Version)
	d.str(m.Context)
	d.str(m.Arch)
	d.str(m.Summary)
	d.str(m.Description)
	d.profiles(m.Profiles)
	d.strs(m.Artifacts)
	d.int(int64(len(m.Dependencies)))
	for _, dep := range m.Dependencies {
		d.str(dep.Module)
		d.strs(dep.Streams)
	}
	return d.sum()
}

func (m *ModuleDefaultsRecord) Fingerprint() Digest {
	d := newDigester()
	d.str(m.Module)
	d.str(m.Stream)
	d.profiles(m.Profiles)
	return d.sum()
}
