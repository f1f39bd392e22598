package metadata

import (
	"encoding/xml"
	"io"

	"github.com/platinummonkey/rpmmirror/pkg/content"
)

// FilelistsXMLNamespace is the namespace of filelists.xml documents.
const FilelistsXMLNamespace = "http://linux.duke.edu/metadata/filelists"

// PackageFiles is the per-package fragment of a filelists.xml document,
// keyed by pkgid (the package checksum).
type PackageFiles struct {
	PkgID string
	Name  string
	Arch  string
	Files []string
}

type filelistsPackageXML struct {
	PkgID string `xml:"pkgid,attr"`
	Name  string `xml:"name,attr"`
	Arch  string `xml:"arch,attr"`
	Files []struct {
		Type  string `xml:"type,attr"`
		Value string `xml:",chardata"`
	} `xml:"file"`
}

// FilelistsParser streams per-package file lists out of filelists.xml.
type FilelistsParser struct {
	dec *xml.Decoder
}

// NewFilelistsParser wraps an already-decompressed filelists.xml stream.
func NewFilelistsParser(r io.Reader) *FilelistsParser {
	return &FilelistsParser{dec: newXMLDecoder(r)}
}

// Next returns the next package fragment, or io.EOF at end of document.
func (p *FilelistsParser) Next() (*PackageFiles, error) {
	for {
		tok, err := p.dec.Token()
		if err == io.EOF {
			return nil, io.EOF
		}
		if err != nil {
			return nil, malformed(FileFilelists, p.dec.InputOffset(), err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "package" {
			continue
		}

		var pkg filelistsPackageXML
		if err := p.dec.DecodeElement(&pkg, &start); err != nil {
			return nil, malformed(FileFilelists, p.dec.InputOffset(), err)
		}

		out := &PackageFiles{
			PkgID: pkg.PkgID,
			Name:  pkg.Name,
			Arch:  pkg.Arch,
		}
		for _, f := range pkg.Files {
			out.Files = append(out.Files, f.Value)
		}
		return out, nil
	}
}

// MergePackageData folds filelists and changelog fragments into their
// PackageRecords by pkgid. Packages without a matching fragment keep empty
// lists; cross-file consistency is not enforced at parse time.
func MergePackageData(packages []*content.PackageRecord, files map[string]*PackageFiles, changelogs map[string]*PackageChangelogs) {
	for _, pkg := range packages {
		if f, ok := files[pkg.Checksum]; ok {
			pkg.Files = f.Files
		}
		if c, ok := changelogs[pkg.Checksum]; ok {
			pkg.Changelogs = c.Changelogs
		}
	}
}
