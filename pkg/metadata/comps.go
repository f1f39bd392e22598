package metadata

import (
	"encoding/xml"
	"io"
	"strconv"
	"strings"

	"github.com/platinummonkey/rpmmirror/pkg/content"
)

// xmlLangNamespace is the predeclared namespace of the xml:lang attribute.
const xmlLangNamespace = "http://www.w3.org/XML/1998/namespace"

type localizedXML struct {
	Lang  string `xml:"http://www.w3.org/XML/1998/namespace lang,attr"`
	Value string `xml:",chardata"`
}

// splitLocalized separates the untranslated value from the locale table.
func splitLocalized(items []localizedXML) (string, map[string]string) {
	base := ""
	var translations map[string]string
	for _, item := range items {
		value := strings.TrimSpace(item.Value)
		if item.Lang == "" {
			base = value
			continue
		}
		if translations == nil {
			translations = make(map[string]string)
		}
		translations[item.Lang] = value
	}
	return base, translations
}

type compsGroupXML struct {
	ID           string         `xml:"id"`
	Names        []localizedXML `xml:"name"`
	Descriptions []localizedXML `xml:"description"`
	Default      string         `xml:"default"`
	UserVisible  string         `xml:"uservisible"`
	DisplayOrder string         `xml:"display_order"`
	LangOnly     string         `xml:"langonly"`
	Packages     []struct {
		Type     string `xml:"type,attr"`
		Requires string `xml:"requires,attr"`
		Value    string `xml:",chardata"`
	} `xml:"packagelist>packagereq"`
}

type compsCategoryXML struct {
	ID           string         `xml:"id"`
	Names        []localizedXML `xml:"name"`
	Descriptions []localizedXML `xml:"description"`
	DisplayOrder string         `xml:"display_order"`
	Groups       []string       `xml:"grouplist>groupid"`
}

type compsEnvironmentXML struct {
	ID           string         `xml:"id"`
	Names        []localizedXML `xml:"name"`
	Descriptions []localizedXML `xml:"description"`
	DisplayOrder string         `xml:"display_order"`
	Groups       []string       `xml:"grouplist>groupid"`
	Options      []string       `xml:"optionlist>groupid"`
}

// CompsParser streams group, category, and environment records out of a
// comps.xml document, in document order.
type CompsParser struct {
	dec *xml.Decoder
}

// NewCompsParser wraps an already-decompressed comps.xml stream.
func NewCompsParser(r io.Reader) *CompsParser {
	return &CompsParser{dec: newXMLDecoder(r)}
}

// Next returns the next record, or io.EOF at end of document. Unknown
// top-level elements (langpacks, blacklists...) are skipped.
func (p *CompsParser) Next() (content.Record, error) {
	for {
		tok, err := p.dec.Token()
		if err == io.EOF {
			return nil, io.EOF
		}
		if err != nil {
			return nil, malformed(FileGroup, p.dec.InputOffset(), err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		switch start.Name.Local {
		case "comps":
			continue
		case "group":
			var g compsGroupXML
			if err := p.dec.DecodeElement(&g, &start); err != nil {
				return nil, malformed(FileGroup, p.dec.InputOffset(), err)
			}
			return groupRecord(g), nil
		case "category":
			var c compsCategoryXML
			if err := p.dec.DecodeElement(&c, &start); err != nil {
				return nil, malformed(FileGroup, p.dec.InputOffset(), err)
			}
			name, names := splitLocalized(c.Names)
			desc, descs := splitLocalized(c.Descriptions)
			return &content.CategoryRecord{
				ID:                     c.ID,
				Name:                   name,
				Description:            desc,
				DisplayOrder:           parseIntDefault(c.DisplayOrder, 0),
				TranslatedNames:        names,
				TranslatedDescriptions: descs,
				Groups:                 trimAll(c.Groups),
			}, nil
		case "environment":
			var e compsEnvironmentXML
			if err := p.dec.DecodeElement(&e, &start); err != nil {
				return nil, malformed(FileGroup, p.dec.InputOffset(), err)
			}
			name, names := splitLocalized(e.Names)
			desc, descs := splitLocalized(e.Descriptions)
			return &content.EnvironmentRecord{
				ID:                     e.ID,
				Name:                   name,
				Description:            desc,
				DisplayOrder:           parseIntDefault(e.DisplayOrder, 0),
				TranslatedNames:        names,
				TranslatedDescriptions: descs,
				Groups:                 trimAll(e.Groups),
				Options:                trimAll(e.Options),
			}, nil
		default:
			if err := skipElement(p.dec); err != nil {
				return nil, malformed(FileGroup, p.dec.InputOffset(), err)
			}
		}
	}
}

func groupRecord(g compsGroupXML) *content.GroupRecord {
	name, names := splitLocalized(g.Names)
	desc, descs := splitLocalized(g.Descriptions)

	out := &content.GroupRecord{
		ID:                     g.ID,
		Name:                   name,
		Description:            desc,
		Default:                parseBool(g.Default),
		UserVisible:            parseBool(g.UserVisible),
		DisplayOrder:           parseIntDefault(g.DisplayOrder, 0),
		LangOnly:               strings.TrimSpace(g.LangOnly),
		TranslatedNames:        names,
		TranslatedDescriptions: descs,
	}
	for _, p := range g.Packages {
		pkgType := content.GroupPackageType(p.Type)
		if pkgType == "" {
			pkgType = content.GroupPackageMandatory
		}
		out.Packages = append(out.Packages, content.GroupPackage{
			Name:     strings.TrimSpace(p.Value),
			Type:     pkgType,
			Requires: p.Requires,
		})
	}
	return out
}

func parseBool(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), "true")
}

func parseIntDefault(s string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return n
}

func trimAll(ss []string) []string {
	if len(ss) == 0 {
		return nil
	}
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		out = append(out, strings.TrimSpace(s))
	}
	return out
}
