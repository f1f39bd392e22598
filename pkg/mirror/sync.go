package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/rpmmirror/pkg/content"
	"github.com/platinummonkey/rpmmirror/pkg/metadata"
	"github.com/platinummonkey/rpmmirror/pkg/observability"
	"github.com/platinummonkey/rpmmirror/pkg/store"
)

// Inputs are the metadata streams of one remote snapshot. Any stream may be
// nil; its record types are then excluded from diffing and prior records are
// carried forward. Filelists and other require primary since they only
// contribute fragments to package records.
type Inputs struct {
	Primary    *metadata.Source
	Filelists  *metadata.Source
	Other      *metadata.Source
	Comps      *metadata.Source
	Updateinfo *metadata.Source
	Modules    *metadata.Source
}

// presentTypes reports which record types this snapshot actually provides.
func (in Inputs) presentTypes() map[content.RecordType]bool {
	present := make(map[content.RecordType]bool)
	if in.Primary != nil {
		present[content.TypePackage] = true
	}
	if in.Comps != nil {
		present[content.TypeGroup] = true
		present[content.TypeCategory] = true
		present[content.TypeEnvironment] = true
	}
	if in.Updateinfo != nil {
		present[content.TypeAdvisory] = true
	}
	if in.Modules != nil {
		present[content.TypeModule] = true
		present[content.TypeModuleDefaults] = true
	}
	return present
}

// SyncResult summarizes one repository sync.
type SyncResult struct {
	Version   *store.RepositoryVersion
	Created   bool
	Added     int
	Removed   int
	Unchanged int
	CrossRefs CrossReferences
}

// SyncerOptions tunes sync behavior.
type SyncerOptions struct {
	// Parallelism bounds how many metadata parsers run concurrently.
	// Values below 1 are treated as 1.
	Parallelism int

	// SkipInvalidModules drops modulemd documents that fail to decode
	// instead of failing the modules stream.
	SkipInvalidModules bool
}

// Syncer reconciles remote metadata snapshots into repository versions.
type Syncer struct {
	store   store.ContentStore
	logger  *observability.Logger
	metrics *observability.Metrics
	opts    SyncerOptions

	// Per-repository locks serialize version assignment. Two concurrent
	// syncs of the same repository must not race on numbering.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewSyncer creates a syncer over a content store. metrics may be nil.
func NewSyncer(st store.ContentStore, logger *observability.Logger, metrics *observability.Metrics, opts SyncerOptions) *Syncer {
	if opts.Parallelism < 1 {
		opts.Parallelism = 1
	}
	return &Syncer{
		store:   st,
		logger:  logger,
		metrics: metrics,
		opts:    opts,
		locks:   make(map[string]*sync.Mutex),
	}
}

func (s *Syncer) repoLock(repository string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[repository]
	if !ok {
		l = &sync.Mutex{}
		s.locks[repository] = l
	}
	return l
}

// SyncRepository parses the snapshot's metadata streams, diffs the resulting
// records against the repository's latest version, and cuts a new immutable
// version. Removals apply only to the listed authoritative types. When the
// diff is empty no version is created and the previous one is returned.
func (s *Syncer) SyncRepository(ctx context.Context, repository string, inputs Inputs, authoritative []content.RecordType) (*SyncResult, error) {
	logger := s.logger.WithRepository(repository)
	start := time.Now()

	result, err := s.sync(ctx, repository, inputs, authoritative, logger)

	if s.metrics != nil {
		status := "success"
		if err != nil {
			status = "failure"
		}
		s.metrics.SyncsTotal.WithLabelValues(repository, status).Inc()
		s.metrics.SyncDuration.WithLabelValues(repository).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		logger.WithError(err).Error("sync failed")
		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"version":   result.Version.Number,
		"created":   result.Created,
		"added":     result.Added,
		"removed":   result.Removed,
		"unchanged": result.Unchanged,
		"duration":  time.Since(start).String(),
	}).Info("sync complete")
	return result, nil
}

func (s *Syncer) sync(ctx context.Context, repository string, inputs Inputs, authoritative []content.RecordType, logger *observability.Logger) (*SyncResult, error) {
	if inputs.Primary == nil && (inputs.Filelists != nil || inputs.Other != nil) {
		return nil, fmt.Errorf("filelists/other metadata provided without primary")
	}

	authSet := make(map[content.RecordType]bool, len(authoritative))
	for _, t := range authoritative {
		authSet[t] = true
	}

	incoming, present, err := s.parseInputs(ctx, repository, inputs, authSet, logger)
	if err != nil {
		return nil, err
	}

	lock := s.repoLock(repository)
	lock.Lock()
	defer lock.Unlock()

	var previousHandles []store.Handle
	previous, err := s.store.LatestVersion(ctx, repository)
	switch {
	case errors.Is(err, store.ErrNotFound):
		previous = nil
	case err != nil:
		return nil, err
	default:
		previousHandles, err = s.store.VersionHandles(ctx, previous)
		if err != nil {
			return nil, err
		}
	}

	cs, err := Reconcile(previousHandles, incoming, present, authSet)
	if err != nil {
		return nil, err
	}

	if cs.Empty() && previous != nil {
		logger.Debug("snapshot matches latest version, nothing to do")
		xr, err := s.versionCrossRefs(ctx, previous)
		if err != nil {
			return nil, err
		}
		return &SyncResult{
			Version:   previous,
			Created:   false,
			Unchanged: len(cs.Carried),
			CrossRefs: xr,
		}, nil
	}

	members := make([]store.Handle, 0, len(cs.Carried)+len(cs.Added))
	members = append(members, cs.Carried...)
	for _, rec := range cs.Added {
		h, err := s.store.Put(ctx, rec)
		s.recordStoreOp("put", err)
		if err != nil {
			return nil, err
		}
		members = append(members, h)
	}

	version, err := s.store.CreateVersion(ctx, repository, members)
	s.recordStoreOp("create_version", err)
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		for _, rec := range cs.Added {
			s.metrics.SyncAdditions.WithLabelValues(repository, string(rec.Type())).Inc()
		}
		for _, h := range cs.Removed {
			s.metrics.SyncRemovals.WithLabelValues(repository, string(h.Key.Type)).Inc()
		}
	}

	xr, err := s.versionCrossRefs(ctx, version)
	if err != nil {
		return nil, err
	}

	return &SyncResult{
		Version:   version,
		Created:   true,
		Added:     len(cs.Added),
		Removed:   len(cs.Removed),
		Unchanged: len(cs.Carried),
		CrossRefs: xr,
	}, nil
}

func (s *Syncer) recordStoreOp(op string, err error) {
	if s.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
		s.metrics.StoreErrorsTotal.WithLabelValues(op).Inc()
	}
	s.metrics.StoreOperationsTotal.WithLabelValues(op, status).Inc()
}

// versionCrossRefs rebuilds advisory and group links from the version's
// complete record set.
func (s *Syncer) versionCrossRefs(ctx context.Context, v *store.RepositoryVersion) (CrossReferences, error) {
	var records []content.Record
	for _, t := range content.AllRecordTypes() {
		recs, err := s.store.RecordsOfType(ctx, v, t)
		if err != nil {
			return CrossReferences{}, err
		}
		records = append(records, recs...)
	}
	return BuildCrossReferences(records), nil
}

// parseInputs runs one parser per supplied stream, at most Parallelism at a
// time, and combines the results into a single record batch. A malformed
// stream fails the sync only when a record type it feeds is authoritative;
// otherwise its contribution is dropped, its types are removed from the
// returned present set, and prior content of those types survives. Filelists
// and other only contribute fragments to package records, so their failure
// never blocks a sync: affected packages end up with empty file lists.
func (s *Syncer) parseInputs(ctx context.Context, repository string, inputs Inputs, authSet map[content.RecordType]bool, logger *observability.Logger) ([]content.Record, map[content.RecordType]bool, error) {
	var (
		packages   []*content.PackageRecord
		files      map[string]*metadata.PackageFiles
		changelogs map[string]*metadata.PackageChangelogs
		comps      []content.Record
		advisories []content.Record
		modules    []content.Record

		mu      sync.Mutex
		dropped = make(map[string]bool)
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Parallelism)

	// run wraps one stream's parse loop. Blocking streams propagate any
	// failure; non-blocking ones swallow malformed input and are marked
	// dropped instead.
	run := func(format string, blocking bool, fn func() error) func() error {
		return func() error {
			err := fn()
			if err == nil {
				return nil
			}
			var m *metadata.MalformedError
			if errors.As(err, &m) {
				if s.metrics != nil {
					s.metrics.ParseErrorsTotal.WithLabelValues(m.Format).Inc()
				}
				if !blocking {
					logger.WithError(err).Warnf("dropping malformed %s stream", format)
					mu.Lock()
					dropped[format] = true
					mu.Unlock()
					return nil
				}
			}
			return err
		}
	}

	if inputs.Primary != nil {
		g.Go(run(metadata.FilePrimary, authSet[content.TypePackage], func() error {
			return s.withStream(inputs.Primary, func(r io.Reader) error {
				p := metadata.NewPrimaryParser(r)
				for {
					if err := ctx.Err(); err != nil {
						return err
					}
					pkg, err := p.Next()
					if errors.Is(err, io.EOF) {
						return nil
					}
					if err != nil {
						return err
					}
					packages = append(packages, pkg)
				}
			})
		}))
	}
	if inputs.Filelists != nil {
		g.Go(run(metadata.FileFilelists, false, func() error {
			files = make(map[string]*metadata.PackageFiles)
			return s.withStream(inputs.Filelists, func(r io.Reader) error {
				p := metadata.NewFilelistsParser(r)
				for {
					if err := ctx.Err(); err != nil {
						return err
					}
					pf, err := p.Next()
					if errors.Is(err, io.EOF) {
						return nil
					}
					if err != nil {
						return err
					}
					files[pf.PkgID] = pf
				}
			})
		}))
	}
	if inputs.Other != nil {
		g.Go(run(metadata.FileOther, false, func() error {
			changelogs = make(map[string]*metadata.PackageChangelogs)
			return s.withStream(inputs.Other, func(r io.Reader) error {
				p := metadata.NewOtherParser(r)
				for {
					if err := ctx.Err(); err != nil {
						return err
					}
					pc, err := p.Next()
					if errors.Is(err, io.EOF) {
						return nil
					}
					if err != nil {
						return err
					}
					changelogs[pc.PkgID] = pc
				}
			})
		}))
	}
	if inputs.Comps != nil {
		blocking := authSet[content.TypeGroup] || authSet[content.TypeCategory] || authSet[content.TypeEnvironment]
		g.Go(run(metadata.FileGroup, blocking, func() error {
			return s.withStream(inputs.Comps, func(r io.Reader) error {
				p := metadata.NewCompsParser(r)
				for {
					if err := ctx.Err(); err != nil {
						return err
					}
					rec, err := p.Next()
					if errors.Is(err, io.EOF) {
						return nil
					}
					if err != nil {
						return err
					}
					comps = append(comps, rec)
				}
			})
		}))
	}
	if inputs.Updateinfo != nil {
		g.Go(run(metadata.FileUpdateinfo, authSet[content.TypeAdvisory], func() error {
			return s.withStream(inputs.Updateinfo, func(r io.Reader) error {
				p := metadata.NewUpdateinfoParser(r)
				for {
					if err := ctx.Err(); err != nil {
						return err
					}
					adv, err := p.Next()
					if errors.Is(err, io.EOF) {
						return nil
					}
					if err != nil {
						return err
					}
					advisories = append(advisories, adv)
				}
			})
		}))
	}
	if inputs.Modules != nil {
		blocking := authSet[content.TypeModule] || authSet[content.TypeModuleDefaults]
		g.Go(run(metadata.FileModules, blocking, func() error {
			return s.withStream(inputs.Modules, func(r io.Reader) error {
				var p *metadata.ModulesParser
				if s.opts.SkipInvalidModules {
					p = metadata.NewLenientModulesParser(r)
				} else {
					p = metadata.NewModulesParser(r)
				}
				for {
					if err := ctx.Err(); err != nil {
						return err
					}
					rec, err := p.Next()
					if errors.Is(err, io.EOF) {
						if skipped := p.Skipped(); skipped > 0 {
							logger.Warnf("skipped %d invalid modulemd documents", skipped)
						}
						return nil
					}
					if err != nil {
						return err
					}
					modules = append(modules, rec)
				}
			})
		}))
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	present := inputs.presentTypes()
	if dropped[metadata.FilePrimary] {
		packages = nil
		delete(present, content.TypePackage)
	}
	if dropped[metadata.FileFilelists] {
		files = nil
	}
	if dropped[metadata.FileOther] {
		changelogs = nil
	}
	if dropped[metadata.FileGroup] {
		comps = nil
		delete(present, content.TypeGroup)
		delete(present, content.TypeCategory)
		delete(present, content.TypeEnvironment)
	}
	if dropped[metadata.FileUpdateinfo] {
		advisories = nil
		delete(present, content.TypeAdvisory)
	}
	if dropped[metadata.FileModules] {
		modules = nil
		delete(present, content.TypeModule)
		delete(present, content.TypeModuleDefaults)
	}

	metadata.MergePackageData(packages, files, changelogs)

	records := make([]content.Record, 0, len(packages)+len(comps)+len(advisories)+len(modules))
	for _, pkg := range packages {
		records = append(records, pkg)
	}
	records = append(records, comps...)
	records = append(records, advisories...)
	records = append(records, modules...)

	if s.metrics != nil {
		for _, rec := range records {
			s.metrics.SyncRecordsParsed.WithLabelValues(repository, string(rec.Type())).Inc()
		}
	}
	return records, present, nil
}

// withStream opens a source, runs fn over the decompressed stream, then
// closes it. Close errors matter: checksum verification happens on Close.
func (s *Syncer) withStream(src *metadata.Source, fn func(io.Reader) error) error {
	rc, err := src.Open()
	if err != nil {
		return err
	}
	if err := fn(rc); err != nil {
		rc.Close()
		return err
	}
	return rc.Close()
}
