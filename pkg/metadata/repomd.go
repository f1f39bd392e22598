package metadata

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// Well-known repomd data types.
const (
	FilePrimary        = "primary"
	FileFilelists      = "filelists"
	FileOther          = "other"
	FileGroup          = "group"
	FileGroupGz        = "group_gz"
	FileUpdateinfo     = "updateinfo"
	FileModules        = "modules"
	RepomdXMLNamespace = "http://linux.duke.edu/metadata/repo"
)

// FileEntry describes one data element of a repomd.xml index.
type FileEntry struct {
	Type             string
	Href             string
	ChecksumType     string
	Checksum         string
	OpenChecksumType string
	OpenChecksum     string
	Size             int64
	OpenSize         int64
	Timestamp        int64
}

// Compression infers the entry's compression from its location href.
func (f FileEntry) Compression() Compression {
	return CompressionForPath(f.Href)
}

// Repomd is the parsed top-level metadata index of a repository.
type Repomd struct {
	Revision string
	Files    map[string]FileEntry
}

// Get returns the entry for a data type, preferring group_gz over group the
// way clients do when both are present. Entries pointing at sqlite sidecar
// files are never returned.
func (r *Repomd) Get(name string) (FileEntry, bool) {
	if name == FileGroup {
		if e, ok := r.Files[FileGroupGz]; ok {
			return e, true
		}
	}
	e, ok := r.Files[name]
	return e, ok
}

type repomdXML struct {
	XMLName  xml.Name        `xml:"repomd"`
	Revision string          `xml:"revision"`
	Data     []repomdDataXML `xml:"data"`
}

type repomdDataXML struct {
	Type     string `xml:"type,attr"`
	Location struct {
		Href string `xml:"href,attr"`
	} `xml:"location"`
	Checksum struct {
		Type  string `xml:"type,attr"`
		Value string `xml:",chardata"`
	} `xml:"checksum"`
	OpenChecksum struct {
		Type  string `xml:"type,attr"`
		Value string `xml:",chardata"`
	} `xml:"open-checksum"`
	Size      int64 `xml:"size"`
	OpenSize  int64 `xml:"open-size"`
	Timestamp int64 `xml:"timestamp"`
}

// ParseRepomd parses a repomd.xml index. Entries whose location points at a
// sqlite sidecar database are skipped; only XML/YAML metadata is mirrored.
func ParseRepomd(r io.Reader) (*Repomd, error) {
	dec := newXMLDecoder(r)

	var doc repomdXML
	if err := dec.Decode(&doc); err != nil {
		return nil, malformed("repomd", dec.InputOffset(), err)
	}

	out := &Repomd{
		Revision: doc.Revision,
		Files:    make(map[string]FileEntry, len(doc.Data)),
	}
	for _, d := range doc.Data {
		if strings.Contains(d.Location.Href, "sqlite") {
			continue
		}
		if d.Location.Href == "" {
			return nil, malformed("repomd", dec.InputOffset(),
				fmt.Errorf("data element %q has no location", d.Type))
		}
		out.Files[d.Type] = FileEntry{
			Type:             d.Type,
			Href:             d.Location.Href,
			ChecksumType:     d.Checksum.Type,
			Checksum:         strings.TrimSpace(d.Checksum.Value),
			OpenChecksumType: d.OpenChecksum.Type,
			OpenChecksum:     strings.TrimSpace(d.OpenChecksum.Value),
			Size:             d.Size,
			OpenSize:         d.OpenSize,
			Timestamp:        d.Timestamp,
		}
	}
	return out, nil
}
