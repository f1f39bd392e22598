package metadata

import (
	"encoding/xml"
	"io"
	"strings"

	"github.com/platinummonkey/rpmmirror/pkg/content"
)

// OtherXMLNamespace is the namespace of other.xml documents.
const OtherXMLNamespace = "http://linux.duke.edu/metadata/other"

// PackageChangelogs is the per-package fragment of an other.xml document,
// keyed by pkgid (the package checksum).
type PackageChangelogs struct {
	PkgID      string
	Name       string
	Arch       string
	Changelogs []content.Changelog
}

type otherPackageXML struct {
	PkgID      string `xml:"pkgid,attr"`
	Name       string `xml:"name,attr"`
	Arch       string `xml:"arch,attr"`
	Changelogs []struct {
		Author string `xml:"author,attr"`
		Date   int64  `xml:"date,attr"`
		Value  string `xml:",chardata"`
	} `xml:"changelog"`
}

// OtherParser streams per-package changelogs out of other.xml.
type OtherParser struct {
	dec *xml.Decoder
}

// NewOtherParser wraps an already-decompressed other.xml stream.
func NewOtherParser(r io.Reader) *OtherParser {
	return &OtherParser{dec: newXMLDecoder(r)}
}

// Next returns the next package fragment, or io.EOF at end of document.
func (p *OtherParser) Next() (*PackageChangelogs, error) {
	for {
		tok, err := p.dec.Token()
		if err == io.EOF {
			return nil, io.EOF
		}
		if err != nil {
			return nil, malformed(FileOther, p.dec.InputOffset(), err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "package" {
			continue
		}

		var pkg otherPackageXML
		if err := p.dec.DecodeElement(&pkg, &start); err != nil {
			return nil, malformed(FileOther, p.dec.InputOffset(), err)
		}

		out := &PackageChangelogs{
			PkgID: pkg.PkgID,
			Name:  pkg.Name,
			Arch:  pkg.Arch,
		}
		for _, c := range pkg.Changelogs {
			out.Changelogs = append(out.Changelogs, content.Changelog{
				Author: c.Author,
				Date:   c.Date,
				Text:   strings.TrimSpace(c.Value),
			})
		}
		return out, nil
	}
}
