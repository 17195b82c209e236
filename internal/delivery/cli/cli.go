package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/apex/log"
	"github.com/spf13/cobra"
	"github.com/tirewatch/backend/internal/domain"
	"github.com/tirewatch/backend/internal/infrastructure/catalog"
	"github.com/tirewatch/backend/internal/infrastructure/collector"
	"github.com/tirewatch/backend/internal/infrastructure/export"
	"github.com/tirewatch/backend/internal/infrastructure/logging"
	"github.com/tirewatch/backend/internal/infrastructure/snapshot"
	"github.com/tirewatch/backend/internal/usecase"
)

// Output formats
const (
	FormatTable = "table"
	FormatCSV   = "csv"
	FormatJSON  = "json"
)

type options struct {
	dbPath    string
	rulesFile string
	logLevel  string
	workers   int
}

type compareOptions struct {
	reference   string
	catalogFile string
	competitors []string
	format      string
	save        bool
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "tirewatch",
		Short: "Compare tire prices across retailers",
		Long: `tirewatch normalizes tire listings from several retailers and lines them up
against the reference catalog by model name and tire size.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logging.SetupWriter(cmd.ErrOrStderr(), opts.logLevel, "text")
		},
	}

	cmd.PersistentFlags().StringVar(&opts.dbPath, "db", "tirewatch.db", "Snapshot database path")
	cmd.PersistentFlags().StringVar(&opts.rulesFile, "rules", "", "YAML rule tables replacing the built-in ones")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	cmd.PersistentFlags().IntVar(&opts.workers, "workers", 4, "Parallel record builders per source")

	cmd.AddCommand(newCompareCmd(opts))
	cmd.AddCommand(newExtractCmd())
	cmd.AddCommand(newSnapshotsCmd(opts))

	return cmd
}

func newCompareCmd(opts *options) *cobra.Command {
	copts := &compareOptions{}

	cmd := &cobra.Command{
		Use:   "compare --competitor SOURCE=FILE [--reference FILE | --catalog FILE]",
		Short: "Reconcile competitor listings against the reference catalog",
		Long: `Each --competitor file is either a JSON array of fragments
({"name","info","price"}) or a saved result page (.html) read with the
known selectors of that source.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompare(cmd.Context(), cmd.OutOrStdout(), opts, copts)
		},
	}

	cmd.Flags().StringVar(&copts.reference, "reference", "", "Reference fragments (JSON or HTML)")
	cmd.Flags().StringVar(&copts.catalogFile, "catalog", "", "Reference catalog CSV export")
	cmd.Flags().StringArrayVar(&copts.competitors, "competitor", nil, "Competitor listings as SOURCE=FILE (repeatable)")
	cmd.Flags().StringVar(&copts.format, "format", FormatTable, "Output format: table, csv or json")
	cmd.Flags().BoolVar(&copts.save, "save", false, "Store the result as a snapshot")

	cmd.MarkFlagRequired("competitor")
	cmd.MarkFlagsMutuallyExclusive("reference", "catalog")

	return cmd
}

func runCompare(ctx context.Context, out io.Writer, opts *options, copts *compareOptions) error {
	format := strings.ToLower(copts.format)
	if format != FormatTable && format != FormatCSV && format != FormatJSON {
		return fmt.Errorf("invalid format: %s (must be 'table', 'csv' or 'json')", copts.format)
	}
	if copts.reference == "" && copts.catalogFile == "" {
		return fmt.Errorf("one of --reference or --catalog is required")
	}

	req := &domain.CompareRequest{
		Competitors: make(map[domain.Source][]domain.RawFragment),
		Save:        copts.save,
	}
	for _, spec := range copts.competitors {
		source, path, ok := strings.Cut(spec, "=")
		if !ok || source == "" || path == "" {
			return fmt.Errorf("invalid --competitor %q (want SOURCE=FILE)", spec)
		}
		fragments, err := readFragments(domain.Source(source), path)
		if err != nil {
			return err
		}
		req.Competitors[domain.Source(source)] = append(req.Competitors[domain.Source(source)], fragments...)
	}

	var catalogClient domain.CatalogClient
	if copts.reference != "" {
		fragments, err := readFragments(domain.SourceReference, copts.reference)
		if err != nil {
			return err
		}
		req.Reference = fragments
	} else {
		catalogClient = &catalog.FileClient{Path: copts.catalogFile}
	}

	var store domain.SnapshotRepository
	if copts.save {
		s, err := snapshot.Open(opts.dbPath)
		if err != nil {
			return fmt.Errorf("opening snapshot store: %w", err)
		}
		defer s.Close()
		store = s
	}

	builder, err := newRecordBuilder(opts)
	if err != nil {
		return err
	}

	svc := usecase.NewComparisonService(nil, catalogClient, store, builder, usecase.ComparisonServiceConfig{
		Workers: opts.workers,
	})

	result, err := svc.Compare(ctx, req)
	if err != nil {
		return fmt.Errorf("comparing: %w", err)
	}

	for _, s := range result.Summaries {
		log.WithFields(log.Fields{
			"source":  s.Source,
			"in":      s.FragmentsIn,
			"out":     s.RecordsOut,
			"dropped": s.Dropped,
		}).Info("batch")
	}
	if result.SnapshotID != "" {
		log.WithField("id", result.SnapshotID).Info("snapshot saved")
	}

	switch format {
	case FormatJSON:
		return writeJSON(out, result)
	case FormatCSV:
		return export.WriteCSV(out, result.Rows, result.Sources)
	default:
		export.RenderTable(out, result.Rows, result.Sources)
		for _, s := range result.Suggestions {
			fmt.Fprintf(out, "suggest [%s] %q -> %q (%.0f)\n", s.Source, s.RawName, s.Candidate, s.Score)
		}
		return nil
	}
}

func newExtractCmd() *cobra.Command {
	var source string

	cmd := &cobra.Command{
		Use:   "extract --source SOURCE PAGE.html",
		Short: "Print the fragments found on a saved result page as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fragments, err := extractFile(domain.Source(source), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), fragments)
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "Source whose selectors to use (required)")
	cmd.MarkFlagRequired("source")

	return cmd
}

func newSnapshotsCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshots",
		Short: "Inspect saved comparison snapshots",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List snapshots, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(opts, func(store *snapshot.SQLiteStore) error {
				infos, err := store.List(cmd.Context(), limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, info := range infos {
					fmt.Fprintf(out, "%s\t%s\trows=%d\n", info.ID, info.TakenOn, info.RowCount)
				}
				return nil
			})
		},
	}
	list.Flags().IntVar(&limit, "limit", 20, "Maximum snapshots to list")

	var format string
	show := &cobra.Command{
		Use:   "show ID|latest",
		Short: "Print one snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(opts, func(store *snapshot.SQLiteStore) error {
				var snap *domain.Snapshot
				var err error
				if args[0] == "latest" {
					snap, err = store.Latest(cmd.Context())
				} else {
					snap, err = store.Get(cmd.Context(), args[0])
				}
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				switch strings.ToLower(format) {
				case FormatJSON:
					return writeJSON(out, snap)
				case FormatCSV:
					return export.WriteCSV(out, snap.Rows, snap.Sources)
				case FormatTable:
					export.RenderTable(out, snap.Rows, snap.Sources)
					return nil
				default:
					return fmt.Errorf("invalid format: %s (must be 'table', 'csv' or 'json')", format)
				}
			})
		},
	}
	show.Flags().StringVar(&format, "format", FormatTable, "Output format: table, csv or json")

	cmd.AddCommand(list, show)
	return cmd
}

func withStore(opts *options, fn func(*snapshot.SQLiteStore) error) error {
	store, err := snapshot.Open(opts.dbPath)
	if err != nil {
		return fmt.Errorf("opening snapshot store: %w", err)
	}
	defer store.Close()
	return fn(store)
}

func newRecordBuilder(opts *options) (*usecase.RecordBuilder, error) {
	if opts.rulesFile == "" {
		return nil, nil
	}
	tables, err := usecase.LoadRuleTablesFile(opts.rulesFile)
	if err != nil {
		return nil, fmt.Errorf("loading rules: %w", err)
	}
	return usecase.NewRecordBuilder(tables, false), nil
}

// readFragments loads fragments from a JSON array, or from an HTML page via the source's selectors
func readFragments(source domain.Source, path string) ([]domain.RawFragment, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		return extractFile(source, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var fragments []domain.RawFragment
	if err := json.Unmarshal(data, &fragments); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	for i := range fragments {
		fragments[i].Source = source
	}
	return fragments, nil
}

func extractFile(source domain.Source, path string) ([]domain.RawFragment, error) {
	sel, err := collector.SelectorsFor(source)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	return collector.Extract(f, source, sel)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
