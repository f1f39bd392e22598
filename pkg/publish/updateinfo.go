package publish

import (
	"encoding/xml"
	"fmt"
	"io"

	"github.com/platinummonkey/rpmmirror/pkg/content"
)

type advisoryDateOutXML struct {
	Date string `xml:"date,attr"`
}

type advisoryReferenceOutXML struct {
	Href  string `xml:"href,attr,omitempty"`
	ID    string `xml:"id,attr,omitempty"`
	Type  string `xml:"type,attr,omitempty"`
	Title string `xml:"title,attr,omitempty"`
}

type advisorySumOutXML struct {
	Type  string `xml:"type,attr"`
	Value string `xml:",chardata"`
}

type advisoryPackageOutXML struct {
	Name            string             `xml:"name,attr"`
	Epoch           string             `xml:"epoch,attr,omitempty"`
	Version         string             `xml:"version,attr"`
	Release         string             `xml:"release,attr"`
	Arch            string             `xml:"arch,attr"`
	Src             string             `xml:"src,attr,omitempty"`
	Filename        string             `xml:"filename,omitempty"`
	Sum             *advisorySumOutXML `xml:"sum,omitempty"`
	RebootSuggested string             `xml:"reboot_suggested,omitempty"`
}

type advisoryModuleOutXML struct {
	Name    string `xml:"name,attr"`
	Stream  string `xml:"stream,attr"`
	Version string `xml:"version,attr"`
	Context string `xml:"context,attr"`
	Arch    string `xml:"arch,attr"`
}

type advisoryCollectionOutXML struct {
	Short    string                  `xml:"short,attr,omitempty"`
	Name     string                  `xml:"name,omitempty"`
	Module   *advisoryModuleOutXML   `xml:"module,omitempty"`
	Packages []advisoryPackageOutXML `xml:"package"`
}

type advisoryOutXML struct {
	XMLName         xml.Name                   `xml:"update"`
	From            string                     `xml:"from,attr,omitempty"`
	Status          string                     `xml:"status,attr,omitempty"`
	Type            string                     `xml:"type,attr,omitempty"`
	Version         string                     `xml:"version,attr,omitempty"`
	ID              string                     `xml:"id"`
	Title           string                     `xml:"title,omitempty"`
	Issued          *advisoryDateOutXML        `xml:"issued,omitempty"`
	Updated         *advisoryDateOutXML        `xml:"updated,omitempty"`
	Rights          string                     `xml:"rights,omitempty"`
	Severity        string                     `xml:"severity,omitempty"`
	Summary         string                     `xml:"summary,omitempty"`
	Description     string                     `xml:"description,omitempty"`
	Solution        string                     `xml:"solution,omitempty"`
	RebootSuggested string                     `xml:"reboot_suggested,omitempty"`
	References      []advisoryReferenceOutXML  `xml:"references>reference"`
	Collections     []advisoryCollectionOutXML `xml:"pkglist>collection"`
}

func advisoryBool(b bool) string {
	if b {
		return "True"
	}
	return ""
}

func advisoryDate(s string) *advisoryDateOutXML {
	if s == "" {
		return nil
	}
	return &advisoryDateOutXML{Date: s}
}

func writeUpdateinfo(w io.Writer, advisories []*content.AdvisoryRecord) error {
	if _, err := io.WriteString(w, "<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n<updates>\n"); err != nil {
		return err
	}

	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	for _, a := range advisories {
		out := advisoryOutXML{
			From:            a.From,
			Status:          a.Status,
			Type:            a.AdvisoryType,
			Version:         a.Version,
			ID:              a.ID,
			Title:           a.Title,
			Issued:          advisoryDate(a.Issued),
			Updated:         advisoryDate(a.Updated),
			Rights:          a.Rights,
			Severity:        a.Severity,
			Summary:         a.Summary,
			Description:     a.Description,
			Solution:        a.Solution,
			RebootSuggested: advisoryBool(a.RebootSuggested),
		}
		for _, r := range a.References {
			out.References = append(out.References, advisoryReferenceOutXML{
				Href:  r.Href,
				ID:    r.ID,
				Type:  r.Type,
				Title: r.Title,
			})
		}
		for _, c := range a.Collections {
			col := advisoryCollectionOutXML{Short: c.ShortName, Name: c.Name}
			if c.Module != nil {
				col.Module = &advisoryModuleOutXML{
					Name:    c.Module.Name,
					Stream:  c.Module.Stream,
					Version: c.Module.Version,
					Context: c.Module.Context,
					Arch:    c.Module.Arch,
				}
			}
			for _, p := range c.Packages {
				pkg := advisoryPackageOutXML{
					Name:            p.Name,
					Epoch:           p.Epoch,
					Version:         p.Version,
					Release:         p.Release,
					Arch:            p.Arch,
					Src:             p.Src,
					Filename:        p.Filename,
					RebootSuggested: advisoryBool(p.RebootSuggested),
				}
				if p.Checksum != "" {
					pkg.Sum = &advisorySumOutXML{Type: p.ChecksumType, Value: p.Checksum}
				}
				col.Packages = append(col.Packages, pkg)
			}
			out.Collections = append(out.Collections, col)
		}
		if err := enc.Encode(out); err != nil {
			return err
		}
	}
	if err := enc.Flush(); err != nil {
		return err
	}

	_, err := fmt.Fprint(w, "\n</updates>\n")
	return err
}
