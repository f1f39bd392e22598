package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/platinummonkey/rpmmirror/pkg/config"
	"github.com/platinummonkey/rpmmirror/pkg/content"
	"github.com/platinummonkey/rpmmirror/pkg/metadata"
	"github.com/platinummonkey/rpmmirror/pkg/mirror"
	"github.com/platinummonkey/rpmmirror/pkg/observability"
	"github.com/platinummonkey/rpmmirror/pkg/publish"
	"github.com/platinummonkey/rpmmirror/pkg/store"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// env wires configuration, logging, metrics and the content store for one
// command invocation. The caller must defer env.Close().
type env struct {
	cfg     *config.Config
	logger  *observability.Logger
	metrics *observability.Metrics
	store   *store.SQLiteStore
}

func newEnv() (*env, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stderr)

	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(prometheus.NewRegistry())
	}

	st, err := store.NewSQLiteStore(cfg.Store.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("opening content store: %w", err)
	}

	return &env{cfg: cfg, logger: logger, metrics: metrics, store: st}, nil
}

func (e *env) Close() error {
	return e.store.Close()
}

func parseAuthoritative(names []string) ([]content.RecordType, error) {
	if len(names) == 0 {
		return content.AllRecordTypes(), nil
	}
	out := make([]content.RecordType, 0, len(names))
	for _, name := range names {
		t, err := content.ParseRecordType(name)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

var rootCmd = &cobra.Command{
	Use:   "rpmmirror",
	Short: "RPM repository metadata mirroring engine",
}

var syncCmd = &cobra.Command{
	Use:   "sync REPOSITORY DIR",
	Short: "Reconcile a repository snapshot into a new version",
	Long: "Reads repodata/repomd.xml under DIR, parses the metadata files it\n" +
		"references, and reconciles the records into the repository's next\n" +
		"immutable version.",
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		authNames, _ := cmd.Flags().GetStringSlice("authoritative")
		authoritative, err := parseAuthoritative(authNames)
		if err != nil {
			return err
		}

		e, err := newEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		repository, dir := args[0], args[1]

		f, err := os.Open(filepath.Join(dir, "repodata", "repomd.xml"))
		if err != nil {
			return fmt.Errorf("opening repomd index: %w", err)
		}
		md, err := metadata.ParseRepomd(f)
		f.Close()
		if err != nil {
			return err
		}

		var closers []io.Closer
		defer func() {
			for _, c := range closers {
				c.Close()
			}
		}()
		inputs, err := mirror.InputsFromRepomd(md, func(href string) (io.Reader, error) {
			fh, err := os.Open(filepath.Join(dir, filepath.FromSlash(href)))
			if err != nil {
				return nil, err
			}
			closers = append(closers, fh)
			return fh, nil
		})
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), e.cfg.Sync.Timeout)
		defer cancel()

		syncer := mirror.NewSyncer(e.store, e.logger, e.metrics, mirror.SyncerOptions{
			Parallelism:        e.cfg.Sync.Parallelism,
			SkipInvalidModules: e.cfg.Sync.SkipInvalidModules,
		})
		result, err := syncer.SyncRepository(ctx, repository, inputs, authoritative)
		if err != nil {
			return err
		}

		if !result.Created {
			fmt.Printf("Repository %s is up to date at version %d\n", repository, result.Version.Number)
			return nil
		}
		fmt.Printf("Created %s version %d: %d added, %d removed, %d unchanged\n",
			repository, result.Version.Number, result.Added, result.Removed, result.Unchanged)
		return nil
	},
}

var publishCmd = &cobra.Command{
	Use:   "publish REPOSITORY [VERSION]",
	Short: "Generate the metadata tree for a repository version",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		repository := args[0]
		ctx := context.Background()

		var version *store.RepositoryVersion
		if len(args) == 2 {
			number, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid version number %q: %w", args[1], err)
			}
			version, err = e.store.GetVersion(ctx, repository, number)
			if err != nil {
				return err
			}
		} else {
			version, err = e.store.LatestVersion(ctx, repository)
			if err != nil {
				return err
			}
		}

		outDir, _ := cmd.Flags().GetString("out")
		if outDir == "" {
			outDir = e.cfg.Publish.OutputDir
		}
		compression, err := metadata.ParseCompression(e.cfg.Publish.Compression)
		if err != nil {
			return err
		}

		publisher := publish.NewPublisher(e.store, e.logger, e.metrics)
		tree, err := publisher.PublishVersion(ctx, version, publish.Options{
			OutDir:       outDir,
			ChecksumType: e.cfg.Publish.ChecksumType,
			Compression:  compression,
		})
		if err != nil {
			return err
		}

		fmt.Printf("Published %s version %d to %s (%d files)\n",
			repository, version.Number, tree.Dir, len(tree.Files))
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status REPOSITORY",
	Short: "Show the latest version of a repository",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		ctx := context.Background()
		version, err := e.store.LatestVersion(ctx, args[0])
		if err != nil {
			return err
		}
		handles, err := e.store.VersionHandles(ctx, version)
		if err != nil {
			return err
		}

		counts := make(map[content.RecordType]int)
		for _, h := range handles {
			counts[h.Key.Type]++
		}

		fmt.Printf("Repository: %s\n", version.Repository)
		fmt.Printf("Version:    %d\n", version.Number)
		fmt.Printf("Created:    %s\n", version.CreatedAt.Format("2006-01-02 15:04:05"))
		fmt.Printf("Records:    %d\n", len(handles))
		for _, t := range content.AllRecordTypes() {
			if counts[t] > 0 {
				fmt.Printf("  %-16s %d\n", t, counts[t])
			}
		}
		return nil
	},
}

func init() {
	syncCmd.Flags().StringSlice("authoritative", nil,
		"Record types this remote is authoritative for (default: all)")
	publishCmd.Flags().String("out", "", "Output directory (overrides RPMMIRROR_PUBLISH_DIR)")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(statusCmd)
}
