package publish

import (
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/platinummonkey/rpmmirror/pkg/content"
)

type localizedOutXML struct {
	Lang  string `xml:"xml:lang,attr,omitempty"`
	Value string `xml:",chardata"`
}

// localized emits the base value first and translations in locale order.
func localized(base string, translations map[string]string) []localizedOutXML {
	out := []localizedOutXML{{Value: base}}
	locales := make([]string, 0, len(translations))
	for l := range translations {
		locales = append(locales, l)
	}
	sort.Strings(locales)
	for _, l := range locales {
		out = append(out, localizedOutXML{Lang: l, Value: translations[l]})
	}
	return out
}

type packageReqOutXML struct {
	Type     string `xml:"type,attr"`
	Requires string `xml:"requires,attr,omitempty"`
	Value    string `xml:",chardata"`
}

type compsGroupOutXML struct {
	XMLName      xml.Name           `xml:"group"`
	ID           string             `xml:"id"`
	Names        []localizedOutXML  `xml:"name"`
	Descriptions []localizedOutXML  `xml:"description"`
	Default      string             `xml:"default"`
	UserVisible  string             `xml:"uservisible"`
	DisplayOrder string             `xml:"display_order,omitempty"`
	LangOnly     string             `xml:"langonly,omitempty"`
	Packages     []packageReqOutXML `xml:"packagelist>packagereq"`
}

type compsCategoryOutXML struct {
	XMLName      xml.Name          `xml:"category"`
	ID           string            `xml:"id"`
	Names        []localizedOutXML `xml:"name"`
	Descriptions []localizedOutXML `xml:"description"`
	DisplayOrder string            `xml:"display_order,omitempty"`
	Groups       []string          `xml:"grouplist>groupid"`
}

type compsEnvironmentOutXML struct {
	XMLName      xml.Name          `xml:"environment"`
	ID           string            `xml:"id"`
	Names        []localizedOutXML `xml:"name"`
	Descriptions []localizedOutXML `xml:"description"`
	DisplayOrder string            `xml:"display_order,omitempty"`
	Groups       []string          `xml:"grouplist>groupid"`
	Options      []string          `xml:"optionlist>groupid"`
}

func xmlBool(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func displayOrder(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}

// writeComps serializes groups, categories and environments, in that order,
// each slice already sorted by natural key.
func writeComps(w io.Writer, groups []*content.GroupRecord, categories []*content.CategoryRecord, environments []*content.EnvironmentRecord) error {
	if _, err := io.WriteString(w, "<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n<comps>\n"); err != nil {
		return err
	}

	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")

	for _, g := range groups {
		out := compsGroupOutXML{
			ID:           g.ID,
			Names:        localized(g.Name, g.TranslatedNames),
			Descriptions: localized(g.Description, g.TranslatedDescriptions),
			Default:      xmlBool(g.Default),
			UserVisible:  xmlBool(g.UserVisible),
			DisplayOrder: displayOrder(g.DisplayOrder),
			LangOnly:     g.LangOnly,
		}
		for _, p := range g.Packages {
			out.Packages = append(out.Packages, packageReqOutXML{
				Type:     string(p.Type),
				Requires: p.Requires,
				Value:    p.Name,
			})
		}
		if err := enc.Encode(out); err != nil {
			return err
		}
	}

	for _, c := range categories {
		out := compsCategoryOutXML{
			ID:           c.ID,
			Names:        localized(c.Name, c.TranslatedNames),
			Descriptions: localized(c.Description, c.TranslatedDescriptions),
			DisplayOrder: displayOrder(c.DisplayOrder),
			Groups:       c.Groups,
		}
		if err := enc.Encode(out); err != nil {
			return err
		}
	}

	for _, e := range environments {
		out := compsEnvironmentOutXML{
			ID:           e.ID,
			Names:        localized(e.Name, e.TranslatedNames),
			Descriptions: localized(e.Description, e.TranslatedDescriptions),
			DisplayOrder: displayOrder(e.DisplayOrder),
			Groups:       e.Groups,
			Options:      e.Options,
		}
		if err := enc.Encode(out); err != nil {
			return err
		}
	}

	if err := enc.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprint(w, "\n</comps>\n")
	return err
}
