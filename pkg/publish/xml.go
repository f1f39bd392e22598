package publish

import (
	"encoding/xml"
	"fmt"
	"io"

	"github.com/platinummonkey/rpmmirror/pkg/content"
	"github.com/platinummonkey/rpmmirror/pkg/metadata"
)

// Serializers for the package metadata family. Element order is fixed by the
// struct layouts and record order is fixed by the caller, so identical input
// always yields identical bytes.

type versionOutXML struct {
	Epoch string `xml:"epoch,attr"`
	Ver   string `xml:"ver,attr"`
	Rel   string `xml:"rel,attr"`
}

type checksumOutXML struct {
	Type  string `xml:"type,attr"`
	PkgID string `xml:"pkgid,attr"`
	Value string `xml:",chardata"`
}

type locationOutXML struct {
	Href string `xml:"href,attr"`
}

type depEntryOutXML struct {
	Name  string `xml:"name,attr"`
	Flags string `xml:"flags,attr,omitempty"`
	Epoch string `xml:"epoch,attr,omitempty"`
	Ver   string `xml:"ver,attr,omitempty"`
	Rel   string `xml:"rel,attr,omitempty"`
	Pre   string `xml:"pre,attr,omitempty"`
}

type depListOutXML struct {
	Entries []depEntryOutXML `xml:"rpm:entry"`
}

type formatOutXML struct {
	License   string         `xml:"rpm:license,omitempty"`
	Vendor    string         `xml:"rpm:vendor,omitempty"`
	SourceRPM string         `xml:"rpm:sourcerpm,omitempty"`
	Provides  *depListOutXML `xml:"rpm:provides,omitempty"`
	Requires  *depListOutXML `xml:"rpm:requires,omitempty"`
	Conflicts *depListOutXML `xml:"rpm:conflicts,omitempty"`
	Obsoletes *depListOutXML `xml:"rpm:obsoletes,omitempty"`
}

type primaryPackageOutXML struct {
	XMLName     xml.Name       `xml:"package"`
	Type        string         `xml:"type,attr"`
	Name        string         `xml:"name"`
	Arch        string         `xml:"arch"`
	Version     versionOutXML  `xml:"version"`
	Checksum    checksumOutXML `xml:"checksum"`
	Summary     string         `xml:"summary"`
	Description string         `xml:"description"`
	Time        struct {
		Build int64 `xml:"build,attr"`
	} `xml:"time"`
	Size struct {
		Package   int64 `xml:"package,attr"`
		Installed int64 `xml:"installed,attr"`
		Archive   int64 `xml:"archive,attr"`
	} `xml:"size"`
	Location locationOutXML `xml:"location"`
	Format   formatOutXML   `xml:"format"`
}

func depList(deps []content.Dependency) *depListOutXML {
	if len(deps) == 0 {
		return nil
	}
	out := &depListOutXML{Entries: make([]depEntryOutXML, 0, len(deps))}
	for _, d := range deps {
		e := depEntryOutXML{
			Name:  d.Name,
			Flags: string(d.Flags),
			Epoch: d.Epoch,
			Ver:   d.Version,
			Rel:   d.Release,
		}
		if d.PreInstall {
			e.Pre = "1"
		}
		out.Entries = append(out.Entries, e)
	}
	return out
}

func writePrimary(w io.Writer, packages []*content.PackageRecord) error {
	_, err := fmt.Fprintf(w, "<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n"+
		"<metadata xmlns=%q xmlns:rpm=%q packages=\"%d\">\n",
		metadata.CommonXMLNamespace, metadata.RPMXMLNamespace, len(packages))
	if err != nil {
		return err
	}

	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	for _, pkg := range packages {
		out := primaryPackageOutXML{
			Type:        "rpm",
			Name:        pkg.Name,
			Arch:        pkg.Arch,
			Version:     versionOutXML{Epoch: pkg.Epoch, Ver: pkg.Version, Rel: pkg.Release},
			Checksum:    checksumOutXML{Type: pkg.ChecksumType, PkgID: "YES", Value: pkg.Checksum},
			Summary:     pkg.Summary,
			Description: pkg.Description,
			Location:    locationOutXML{Href: pkg.Location},
			Format: formatOutXML{
				License:   pkg.License,
				Vendor:    pkg.Vendor,
				SourceRPM: pkg.SourceRPM,
				Provides:  depList(pkg.Provides),
				Requires:  depList(pkg.Requires),
				Conflicts: depList(pkg.Conflicts),
				Obsoletes: depList(pkg.Obsoletes),
			},
		}
		out.Time.Build = pkg.BuildTime
		out.Size.Package = pkg.PackageSize
		out.Size.Installed = pkg.InstalledSize
		out.Size.Archive = pkg.ArchiveSize

		if err := enc.Encode(out); err != nil {
			return err
		}
	}
	if err := enc.Flush(); err != nil {
		return err
	}

	_, err = io.WriteString(w, "\n</metadata>\n")
	return err
}

type filelistsPackageOutXML struct {
	XMLName xml.Name      `xml:"package"`
	PkgID   string        `xml:"pkgid,attr"`
	Name    string        `xml:"name,attr"`
	Arch    string        `xml:"arch,attr"`
	Version versionOutXML `xml:"version"`
	Files   []string      `xml:"file"`
}

func writeFilelists(w io.Writer, packages []*content.PackageRecord) error {
	_, err := fmt.Fprintf(w, "<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n"+
		"<filelists xmlns=\"http://linux.duke.edu/metadata/filelists\" packages=\"%d\">\n", len(packages))
	if err != nil {
		return err
	}

	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	for _, pkg := range packages {
		out := filelistsPackageOutXML{
			PkgID:   pkg.Checksum,
			Name:    pkg.Name,
			Arch:    pkg.Arch,
			Version: versionOutXML{Epoch: pkg.Epoch, Ver: pkg.Version, Rel: pkg.Release},
			Files:   pkg.Files,
		}
		if err := enc.Encode(out); err != nil {
			return err
		}
	}
	if err := enc.Flush(); err != nil {
		return err
	}

	_, err = io.WriteString(w, "\n</filelists>\n")
	return err
}

type changelogOutXML struct {
	Author string `xml:"author,attr"`
	Date   int64  `xml:"date,attr"`
	Text   string `xml:",chardata"`
}

type otherPackageOutXML struct {
	XMLName    xml.Name          `xml:"package"`
	PkgID      string            `xml:"pkgid,attr"`
	Name       string            `xml:"name,attr"`
	Arch       string            `xml:"arch,attr"`
	Version    versionOutXML     `xml:"version"`
	Changelogs []changelogOutXML `xml:"changelog"`
}

func writeOther(w io.Writer, packages []*content.PackageRecord) error {
	_, err := fmt.Fprintf(w, "<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n"+
		"<otherdata xmlns=\"http://linux.duke.edu/metadata/other\" packages=\"%d\">\n", len(packages))
	if err != nil {
		return err
	}

	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	for _, pkg := range packages {
		out := otherPackageOutXML{
			PkgID:   pkg.Checksum,
			Name:    pkg.Name,
			Arch:    pkg.Arch,
			Version: versionOutXML{Epoch: pkg.Epoch, Ver: pkg.Version, Rel: pkg.Release},
		}
		for _, c := range pkg.Changelogs {
			out.Changelogs = append(out.Changelogs, changelogOutXML{
				Author: c.Author,
				Date:   c.Date,
				Text:   c.Text,
			})
		}
		if err := enc.Encode(out); err != nil {
			return err
		}
	}
	if err := enc.Flush(); err != nil {
		return err
	}

	_, err = io.WriteString(w, "\n</otherdata>\n")
	return err
}
