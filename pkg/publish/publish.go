package publish

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/rpmmirror/pkg/content"
	"github.com/platinummonkey/rpmmirror/pkg/metadata"
	"github.com/platinummonkey/rpmmirror/pkg/observability"
	"github.com/platinummonkey/rpmmirror/pkg/store"
)

// Options controls how a metadata tree is generated.
type Options struct {
	// OutDir is the root directory trees are published under. The tree for
	// a version lands at OutDir/<repository>/<number>.
	OutDir string

	// ChecksumType is sha256, sha384 or sha512. Defaults to sha256.
	ChecksumType string

	// Compression applied to generated metadata files. Defaults to gzip.
	Compression metadata.Compression
}

// PublishedFile describes one generated metadata file.
type PublishedFile struct {
	Type         string
	Href         string
	ChecksumType string
	Checksum     string
	OpenChecksum string
	Size         int64
	OpenSize     int64
	Timestamp    int64
}

// Tree is a complete published metadata tree.
type Tree struct {
	Dir   string
	Files []PublishedFile
}

// PublishError wraps any I/O failure during publish. A failed publish never
// leaves a visible partial tree; the staging directory is discarded.
type PublishError struct {
	Repository string
	Path       string
	Err        error
}

func (e *PublishError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("failed to publish %s at %s: %v", e.Repository, e.Path, e.Err)
	}
	return fmt.Sprintf("failed to publish %s: %v", e.Repository, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// Publisher generates checksum-consistent metadata trees out of stored
// repository versions.
type Publisher struct {
	store   store.ContentStore
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewPublisher creates a publisher over a content store. metrics may be nil.
func NewPublisher(st store.ContentStore, logger *observability.Logger, metrics *observability.Metrics) *Publisher {
	return &Publisher{store: st, logger: logger, metrics: metrics}
}

// PublishVersion writes the metadata tree for a repository version. All
// files are generated under a staging directory and renamed into place, with
// repomd.xml written last, so a visible tree is always complete. Identical
// versions produce byte-identical trees.
func (p *Publisher) PublishVersion(ctx context.Context, version *store.RepositoryVersion, opts Options) (*Tree, error) {
	logger := p.logger.WithRepository(version.Repository).WithField("version", version.Number)
	start := time.Now()

	tree, err := p.publish(ctx, version, opts)

	if p.metrics != nil {
		status := "success"
		if err != nil {
			status = "failure"
		}
		p.metrics.PublishesTotal.WithLabelValues(version.Repository, status).Inc()
		p.metrics.PublishDuration.WithLabelValues(version.Repository).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		logger.WithError(err).Error("publish failed")
		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"dir":      tree.Dir,
		"files":    len(tree.Files),
		"duration": time.Since(start).String(),
	}).Info("publish complete")
	return tree, nil
}

func (p *Publisher) publish(ctx context.Context, version *store.RepositoryVersion, opts Options) (*Tree, error) {
	if opts.ChecksumType == "" {
		opts.ChecksumType = "sha256"
	}
	switch opts.ChecksumType {
	case "sha256", "sha384", "sha512":
	default:
		return nil, &PublishError{
			Repository: version.Repository,
			Err:        fmt.Errorf("unsupported checksum type: %s", opts.ChecksumType),
		}
	}
	if opts.Compression == "" {
		opts.Compression = metadata.CompressionGzip
	}

	records, err := p.loadRecords(ctx, version)
	if err != nil {
		return nil, err
	}

	staging := filepath.Join(opts.OutDir, ".staging-"+uuid.NewString())
	repodata := filepath.Join(staging, "repodata")
	if err := os.MkdirAll(repodata, 0o755); err != nil {
		return nil, &PublishError{Repository: version.Repository, Path: repodata, Err: err}
	}
	committed := false
	defer func() {
		if !committed {
			os.RemoveAll(staging)
		}
	}()

	timestamp := version.CreatedAt.Unix()
	var files []PublishedFile

	emit := func(fileType, baseName string, write func(io.Writer) error) error {
		var open bytes.Buffer
		if err := write(&open); err != nil {
			return &PublishError{Repository: version.Repository, Err: err}
		}
		openSum, err := p.digest(open.Bytes(), opts.ChecksumType)
		if err != nil {
			return &PublishError{Repository: version.Repository, Err: err}
		}

		var compressed bytes.Buffer
		cw, err := metadata.Compress(&compressed, opts.Compression)
		if err != nil {
			return &PublishError{Repository: version.Repository, Err: err}
		}
		if _, err := cw.Write(open.Bytes()); err != nil {
			return &PublishError{Repository: version.Repository, Err: err}
		}
		if err := cw.Close(); err != nil {
			return &PublishError{Repository: version.Repository, Err: err}
		}

		data := compressed.Bytes()
		sum, err := p.digest(data, opts.ChecksumType)
		if err != nil {
			return &PublishError{Repository: version.Repository, Err: err}
		}

		name := sum + "-" + baseName + opts.Compression.Ext()
		path := filepath.Join(repodata, name)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return &PublishError{Repository: version.Repository, Path: path, Err: err}
		}

		files = append(files, PublishedFile{
			Type:         fileType,
			Href:         "repodata/" + name,
			ChecksumType: opts.ChecksumType,
			Checksum:     sum,
			OpenChecksum: openSum,
			Size:         int64(len(data)),
			OpenSize:     int64(open.Len()),
			Timestamp:    timestamp,
		})
		if p.metrics != nil {
			p.metrics.PublishedBytes.WithLabelValues(version.Repository, fileType).Add(float64(len(data)))
		}
		return nil
	}

	// The package family is always published, even when empty, so every
	// tree is a valid repository.
	if err := emit(metadata.FilePrimary, "primary.xml", func(w io.Writer) error {
		return writePrimary(w, records.packages)
	}); err != nil {
		return nil, err
	}
	if err := emit(metadata.FileFilelists, "filelists.xml", func(w io.Writer) error {
		return writeFilelists(w, records.packages)
	}); err != nil {
		return nil, err
	}
	if err := emit(metadata.FileOther, "other.xml", func(w io.Writer) error {
		return writeOther(w, records.packages)
	}); err != nil {
		return nil, err
	}
	if len(records.groups)+len(records.categories)+len(records.environments) > 0 {
		if err := emit(metadata.FileGroup, "comps.xml", func(w io.Writer) error {
			return writeComps(w, records.groups, records.categories, records.environments)
		}); err != nil {
			return nil, err
		}
	}
	if len(records.advisories) > 0 {
		if err := emit(metadata.FileUpdateinfo, "updateinfo.xml", func(w io.Writer) error {
			return writeUpdateinfo(w, records.advisories)
		}); err != nil {
			return nil, err
		}
	}
	if len(records.modules)+len(records.defaults) > 0 {
		if err := emit(metadata.FileModules, "modules.yaml", func(w io.Writer) error {
			return writeModules(w, records.modules, records.defaults)
		}); err != nil {
			return nil, err
		}
	}

	// repomd.xml goes last: a reader that can see the index can see
	// everything it points at.
	repomdPath := filepath.Join(repodata, "repomd.xml")
	var repomdBuf bytes.Buffer
	if err := writeRepomd(&repomdBuf, strconv.FormatInt(version.Number, 10), files); err != nil {
		return nil, &PublishError{Repository: version.Repository, Path: repomdPath, Err: err}
	}
	if err := os.WriteFile(repomdPath, repomdBuf.Bytes(), 0o644); err != nil {
		return nil, &PublishError{Repository: version.Repository, Path: repomdPath, Err: err}
	}

	target := filepath.Join(opts.OutDir, version.Repository, strconv.FormatInt(version.Number, 10))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return nil, &PublishError{Repository: version.Repository, Path: target, Err: err}
	}
	if _, err := os.Stat(target); err == nil {
		// Republish of an existing version: swap directories so a reader
		// always sees a complete tree.
		old := target + ".old-" + uuid.NewString()
		if err := os.Rename(target, old); err != nil {
			return nil, &PublishError{Repository: version.Repository, Path: target, Err: err}
		}
		if err := os.Rename(staging, target); err != nil {
			os.Rename(old, target)
			return nil, &PublishError{Repository: version.Repository, Path: target, Err: err}
		}
		os.RemoveAll(old)
	} else if err := os.Rename(staging, target); err != nil {
		return nil, &PublishError{Repository: version.Repository, Path: target, Err: err}
	}
	committed = true

	return &Tree{Dir: target, Files: files}, nil
}

func (p *Publisher) digest(data []byte, algo string) (string, error) {
	h, err := metadata.HashForAlgorithm(algo)
	if err != nil {
		return "", err
	}
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}

type versionRecords struct {
	packages     []*content.PackageRecord
	groups       []*content.GroupRecord
	categories   []*content.CategoryRecord
	environments []*content.EnvironmentRecord
	advisories   []*content.AdvisoryRecord
	modules      []*content.ModuleRecord
	defaults     []*content.ModuleDefaultsRecord
}

// loadRecords pulls the version's full content set, one type at a time. The
// store returns records sorted by natural key, which is exactly the publish
// order.
func (p *Publisher) loadRecords(ctx context.Context, version *store.RepositoryVersion) (*versionRecords, error) {
	out := &versionRecords{}
	for _, t := range content.AllRecordTypes() {
		recs, err := p.store.RecordsOfType(ctx, version, t)
		if err != nil {
			return nil, &PublishError{Repository: version.Repository, Err: err}
		}
		for _, rec := range recs {
			switch r := rec.(type) {
			case *content.PackageRecord:
				out.packages = append(out.packages, r)
			case *content.GroupRecord:
				out.groups = append(out.groups, r)
			case *content.CategoryRecord:
				out.categories = append(out.categories, r)
			case *content.EnvironmentRecord:
				out.environments = append(out.environments, r)
			case *content.AdvisoryRecord:
				out.advisories = append(out.advisories, r)
			case *content.ModuleRecord:
				out.modules = append(out.modules, r)
			case *content.ModuleDefaultsRecord:
				out.defaults = append(out.defaults, r)
			}
		}
	}
	return out, nil
}

type repomdSumOutXML struct {
	Type  string `xml:"type,attr"`
	Value string `xml:",chardata"`
}

type repomdDataOutXML struct {
	XMLName      xml.Name        `xml:"data"`
	Type         string          `xml:"type,attr"`
	Checksum     repomdSumOutXML `xml:"checksum"`
	OpenChecksum repomdSumOutXML `xml:"open-checksum"`
	Location     struct {
		Href string `xml:"href,attr"`
	} `xml:"location"`
	Timestamp int64 `xml:"timestamp"`
	Size      int64 `xml:"size"`
	OpenSize  int64 `xml:"open-size"`
}

func writeRepomd(w io.Writer, revision string, files []PublishedFile) error {
	_, err := fmt.Fprintf(w, "<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n"+
		"<repomd xmlns=%q>\n  <revision>%s</revision>\n", metadata.RepomdXMLNamespace, revision)
	if err != nil {
		return err
	}

	enc := xml.NewEncoder(w)
	enc.Indent("  ", "  ")
	for _, f := range files {
		out := repomdDataOutXML{
			Type:         f.Type,
			Checksum:     repomdSumOutXML{Type: f.ChecksumType, Value: f.Checksum},
			OpenChecksum: repomdSumOutXML{Type: f.ChecksumType, Value: f.OpenChecksum},
			Timestamp:    f.Timestamp,
			Size:         f.Size,
			OpenSize:     f.OpenSize,
		}
		out.Location.Href = f.Href
		if err := enc.Encode(out); err != nil {
			return err
		}
	}
	if err := enc.Flush(); err != nil {
		return err
	}

	_, err = io.WriteString(w, "\n</repomd>\n")
	return err
}
