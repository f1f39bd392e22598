package metadata

import (
	"encoding/xml"
	"io"
	"strings"

	"github.com/platinummonkey/rpmmirror/pkg/content"
)

type updateXML struct {
	From     string `xml:"from,attr"`
	Status   string `xml:"status,attr"`
	Type     string `xml:"type,attr"`
	Version  string `xml:"version,attr"`
	ID       string `xml:"id"`
	Title    string `xml:"title"`
	Severity string `xml:"severity"`
	Issued   struct {
		Date string `xml:"date,attr"`
	} `xml:"issued"`
	Updated struct {
		Date string `xml:"date,attr"`
	} `xml:"updated"`
	Rights          string `xml:"rights"`
	Summary         string `xml:"summary"`
	Description     string `xml:"description"`
	Solution        string `xml:"solution"`
	RebootSuggested string `xml:"reboot_suggested"`
	References      []struct {
		Href  string `xml:"href,attr"`
		ID    string `xml:"id,attr"`
		Type  string `xml:"type,attr"`
		Title string `xml:"title,attr"`
	} `xml:"references>reference"`
	Collections []struct {
		Short  string `xml:"short,attr"`
		Name   string `xml:"name"`
		Module *struct {
			Name    string `xml:"name,attr"`
			Stream  string `xml:"stream,attr"`
			Version string `xml:"version,attr"`
			Context string `xml:"context,attr"`
			Arch    string `xml:"arch,attr"`
		} `xml:"module"`
		Packages []struct {
			Name     string `xml:"name,attr"`
			Epoch    string `xml:"epoch,attr"`
			Version  string `xml:"version,attr"`
			Release  string `xml:"release,attr"`
			Arch     string `xml:"arch,attr"`
			Src      string `xml:"src,attr"`
			Filename string `xml:"filename"`
			Sum      struct {
				Type  string `xml:"type,attr"`
				Value string `xml:",chardata"`
			} `xml:"sum"`
			RebootSuggested string `xml:"reboot_suggested"`
		} `xml:"package"`
	} `xml:"pkglist>collection"`
}

// UpdateinfoParser streams AdvisoryRecords out of an updateinfo.xml
// document.
type UpdateinfoParser struct {
	dec *xml.Decoder
}

// NewUpdateinfoParser wraps an already-decompressed updateinfo.xml stream.
func NewUpdateinfoParser(r io.Reader) *UpdateinfoParser {
	return &UpdateinfoParser{dec: newXMLDecoder(r)}
}

// Next returns the next advisory, or io.EOF at end of document.
func (p *UpdateinfoParser) Next() (*content.AdvisoryRecord, error) {
	for {
		tok, err := p.dec.Token()
		if err == io.EOF {
			return nil, io.EOF
		}
		if err != nil {
			return nil, malformed(FileUpdateinfo, p.dec.InputOffset(), err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "update" {
			continue
		}

		var u updateXML
		if err := p.dec.DecodeElement(&u, &start); err != nil {
			return nil, malformed(FileUpdateinfo, p.dec.InputOffset(), err)
		}

		rec := &content.AdvisoryRecord{
			ID:              strings.TrimSpace(u.ID),
			AdvisoryType:    u.Type,
			Severity:        strings.TrimSpace(u.Severity),
			Title:           strings.TrimSpace(u.Title),
			Summary:         strings.TrimSpace(u.Summary),
			Description:     strings.TrimSpace(u.Description),
			Solution:        strings.TrimSpace(u.Solution),
			Rights:          strings.TrimSpace(u.Rights),
			From:            u.From,
			Status:          u.Status,
			Version:         u.Version,
			Issued:          u.Issued.Date,
			Updated:         u.Updated.Date,
			RebootSuggested: updateinfoBool(u.RebootSuggested),
		}

		for _, r := range u.References {
			rec.References = append(rec.References, content.AdvisoryReference{
				Type:  r.Type,
				ID:    r.ID,
				Href:  r.Href,
				Title: r.Title,
			})
		}

		for _, c := range u.Collections {
			col := content.AdvisoryCollection{
				Name:      strings.TrimSpace(c.Name),
				ShortName: c.Short,
			}
			if c.Module != nil {
				col.Module = &content.AdvisoryModule{
					Name:    c.Module.Name,
					Stream:  c.Module.Stream,
					Version: c.Module.Version,
					Context: c.Module.Context,
					Arch:    c.Module.Arch,
				}
			}
			for _, pkg := range c.Packages {
				col.Packages = append(col.Packages, content.AdvisoryPackage{
					Name:            pkg.Name,
					Epoch:           pkg.Epoch,
					Version:         pkg.Version,
					Release:         pkg.Release,
					Arch:            pkg.Arch,
					Src:             pkg.Src,
					Filename:        strings.TrimSpace(pkg.Filename),
					ChecksumType:    pkg.Sum.Type,
					Checksum:        strings.TrimSpace(pkg.Sum.Value),
					RebootSuggested: updateinfoBool(pkg.RebootSuggested),
				})
			}
			rec.Collections = append(rec.Collections, col)
		}

		return rec, nil
	}
}

// updateinfo emits booleans as "True"/"False" or as a bare presence tag.
func updateinfoBool(s string) bool {
	s = strings.TrimSpace(s)
	return strings.EqualFold(s, "true") || s == "1"
}
