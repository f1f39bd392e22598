package metadata

import (
	"encoding/xml"
	"io"

	"github.com/platinummonkey/rpmmirror/pkg/content"
)

// XML namespaces of the package metadata family.
const (
	CommonXMLNamespace = "http://linux.duke.edu/metadata/common"
	RPMXMLNamespace    = "http://linux.duke.edu/metadata/rpm"
)

type primaryPackageXML struct {
	PackageType string `xml:"type,attr"`
	Name        string `xml:"name"`
	Arch        string `xml:"arch"`
	Version     struct {
		Epoch string `xml:"epoch,attr"`
		Ver   string `xml:"ver,attr"`
		Rel   string `xml:"rel,attr"`
	} `xml:"version"`
	Checksum struct {
		Type  string `xml:"type,attr"`
		PkgID string `xml:"pkgid,attr"`
		Value string `xml:",chardata"`
	} `xml:"checksum"`
	Summary     string `xml:"summary"`
	Description string `xml:"description"`
	Time        struct {
		Build int64 `xml:"build,attr"`
	} `xml:"time"`
	Size struct {
		Package   int64 `xml:"package,attr"`
		Installed int64 `xml:"installed,attr"`
		Archive   int64 `xml:"archive,attr"`
	} `xml:"size"`
	Location struct {
		Href string `xml:"href,attr"`
	} `xml:"location"`
	Format struct {
		License   string     `xml:"http://linux.duke.edu/metadata/rpm license"`
		Vendor    string     `xml:"http://linux.duke.edu/metadata/rpm vendor"`
		SourceRPM string     `xml:"http://linux.duke.edu/metadata/rpm sourcerpm"`
		Provides  depListXML `xml:"http://linux.duke.edu/metadata/rpm provides"`
		Requires  depListXML `xml:"http://linux.duke.edu/metadata/rpm requires"`
		Conflicts depListXML `xml:"http://linux.duke.edu/metadata/rpm conflicts"`
		Obsoletes depListXML `xml:"http://linux.duke.edu/metadata/rpm obsoletes"`
	} `xml:"format"`
}

type depListXML struct {
	Entries []depEntryXML `xml:"http://linux.duke.edu/metadata/rpm entry"`
}

type depEntryXML struct {
	Name  string `xml:"name,attr"`
	Flags string `xml:"flags,attr"`
	Epoch string `xml:"epoch,attr"`
	Ver   string `xml:"ver,attr"`
	Rel   string `xml:"rel,attr"`
	Pre   string `xml:"pre,attr"`
}

func (l depListXML) records() []content.Dependency {
	if len(l.Entries) == 0 {
		return nil
	}
	out := make([]content.Dependency, 0, len(l.Entries))
	for _, e := range l.Entries {
		out = append(out, content.Dependency{
			Name:       e.Name,
			Flags:      content.DepFlag(e.Flags),
			Epoch:      e.Epoch,
			Version:    e.Ver,
			Release:    e.Rel,
			PreInstall: e.Pre == "1" || e.Pre == "true",
		})
	}
	return out
}

// PrimaryParser streams PackageRecords out of a primary.xml document.
// Records come back without file lists or changelogs; those are merged in
// from the filelists and other streams by MergePackageData.
type PrimaryParser struct {
	dec *xml.Decoder
}

// NewPrimaryParser wraps an already-decompressed primary.xml stream.
func NewPrimaryParser(r io.Reader) *PrimaryParser {
	return &PrimaryParser{dec: newXMLDecoder(r)}
}

// Next returns the next package, or io.EOF when the document is exhausted.
func (p *PrimaryParser) Next() (*content.PackageRecord, error) {
	for {
		tok, err := p.dec.Token()
		if err == io.EOF {
			return nil, io.EOF
		}
		if err != nil {
			return nil, malformed(FilePrimary, p.dec.InputOffset(), err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "package" {
			continue
		}

		var pkg primaryPackageXML
		if err := p.dec.DecodeElement(&pkg, &start); err != nil {
			return nil, malformed(FilePrimary, p.dec.InputOffset(), err)
		}

		epoch := pkg.Version.Epoch
		if epoch == "" {
			epoch = "0"
		}

		return &content.PackageRecord{
			Name:          pkg.Name,
			Epoch:         epoch,
			Version:       pkg.Version.Ver,
			Release:       pkg.Version.Rel,
			Arch:          pkg.Arch,
			ChecksumType:  pkg.Checksum.Type,
			Checksum:      pkg.Checksum.Value,
			Location:      pkg.Location.Href,
			Summary:       pkg.Summary,
			Description:   pkg.Description,
			License:       pkg.Format.License,
			Vendor:        pkg.Format.Vendor,
			SourceRPM:     pkg.Format.SourceRPM,
			BuildTime:     pkg.Time.Build,
			PackageSize:   pkg.Size.Package,
			InstalledSize: pkg.Size.Installed,
			ArchiveSize:   pkg.Size.Archive,
			Requires:      pkg.Format.Requires.records(),
			Provides:      pkg.Format.Provides.records(),
			Conflicts:     pkg.Format.Conflicts.records(),
			Obsoletes:     pkg.Format.Obsoletes.records(),
		}, nil
	}
}
