package cli

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/logger"
	"github.com/custodia-labs/recall/internal/watcher"
)

var (
	docsRecursive bool
	docsLimit     int
	docsJSON      bool
	docsDebounce  time.Duration
)

var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "Manage indexed documents",
	Long: `Index local files for retrieval and search them with hybrid keyword
and semantic search. Unchanged files are skipped on re-index.`,
}

var docsIndexCmd = &cobra.Command{
	Use:   "index [paths...]",
	Short: "Index files and directories",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runDocsIndex,
}

var docsSearchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search indexed documents",
	Long: `Performs hybrid search across all indexed documents.
Combines keyword (BM25) and semantic (vector) search. Falls back to
keywords only when no local embedding provider is reachable.`,
	Args: cobra.ExactArgs(1),
	RunE: runDocsSearch,
}

var docsRemoveCmd = &cobra.Command{
	Use:   "remove [paths...]",
	Short: "Remove files or directories from the index",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runDocsRemove,
}

var docsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List indexed documents",
	Args:  cobra.NoArgs,
	RunE:  runDocsList,
}

var docsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every indexed document",
	Args:  cobra.NoArgs,
	RunE:  runDocsClear,
}

var docsWatchCmd = &cobra.Command{
	Use:   "watch [paths...]",
	Short: "Index paths and keep them up to date",
	Long: `Indexes the given paths, then watches them for changes. Modified
files are re-indexed and deleted files are removed. Stop with Ctrl+C.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDocsWatch,
}

func init() {
	docsIndexCmd.Flags().BoolVarP(&docsRecursive, "recursive", "r", false, "descend into subdirectories")
	docsIndexCmd.Flags().BoolVar(&docsJSON, "json", false, "output report as JSON")
	docsSearchCmd.Flags().IntVarP(&docsLimit, "limit", "n", 10, "maximum number of results")
	docsSearchCmd.Flags().BoolVar(&docsJSON, "json", false, "output results as JSON")
	docsListCmd.Flags().BoolVar(&docsJSON, "json", false, "output documents as JSON")
	docsWatchCmd.Flags().BoolVarP(&docsRecursive, "recursive", "r", false, "descend into subdirectories")
	docsWatchCmd.Flags().DurationVar(&docsDebounce, "debounce", watcher.DefaultDebounce, "delay before applying a burst of changes")

	docsCmd.AddCommand(docsIndexCmd)
	docsCmd.AddCommand(docsSearchCmd)
	docsCmd.AddCommand(docsRemoveCmd)
	docsCmd.AddCommand(docsListCmd)
	docsCmd.AddCommand(docsClearCmd)
	docsCmd.AddCommand(docsWatchCmd)
	rootCmd.AddCommand(docsCmd)
}

func runDocsIndex(cmd *cobra.Command, args []string) error {
	if documentService == nil {
		return errors.New("document service not configured")
	}

	report, err := documentService.IndexPaths(cmd.Context(), args, docsRecursive)
	if report == nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	if docsJSON {
		if jerr := outputJSON(cmd, report); jerr != nil {
			return jerr
		}
	} else {
		outputIndexReport(cmd, report)
	}

	if err != nil {
		return fmt.Errorf("indexing incomplete: %w", err)
	}
	return nil
}

func outputIndexReport(cmd *cobra.Command, report *domain.IndexReport) {
	cmd.Printf("Indexed: %d  Skipped: %d  Failed: %d  Chunks: %d\n",
		report.Indexed, report.Skipped, report.Failed, report.Chunks)
	if report.Unembedded > 0 {
		cmd.Printf("  %d chunks stored without embeddings (keyword search only)\n", report.Unembedded)
	}
	for _, path := range sortedKeys(report.SkipReasons) {
		logger.Debug("Skipped %s: %s", path, report.SkipReasons[path])
	}
	for _, path := range sortedKeys(report.Errors) {
		cmd.Printf("  Failed %s: %s\n", path, report.Errors[path])
	}
}

func runDocsSearch(cmd *cobra.Command, args []string) error {
	if documentService == nil {
		return errors.New("document service not configured")
	}

	ctx := cmd.Context()
	query := args[0]

	// Documents carry local embeddings only.
	var vec []float32
	if embedder != nil {
		v, provider, err := embedder.EmbedQuery(ctx, query, domain.ProviderLocal)
		switch {
		case err != nil:
			logger.Warn("Document search without embeddings: %v", err)
		case provider == domain.ProviderLocal:
			vec = v
		}
	}

	results, err := documentService.Search(ctx, vec, query, docsLimit)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if docsJSON {
		type resultView struct {
			Path    string  `json:"path"`
			Title   string  `json:"title"`
			Page    int     `json:"page,omitempty"`
			Section string  `json:"section,omitempty"`
			Text    string  `json:"text"`
			Score   float64 `json:"score"`
		}
		views := make([]resultView, len(results))
		for i := range results {
			views[i] = resultView{
				Path:    results[i].Path,
				Title:   results[i].Title,
				Page:    results[i].Chunk.Page,
				Section: results[i].Chunk.Section,
				Text:    results[i].Chunk.Text,
				Score:   results[i].Score,
			}
		}
		return outputJSON(cmd, views)
	}

	if len(results) == 0 {
		cmd.Println("No results found.")
		return nil
	}

	cmd.Println("Results:")
	cmd.Println()
	for i := range results {
		title := results[i].Title
		if title == "" {
			title = results[i].Path
		}
		cmd.Printf("  [%d] %s (%.2f)\n", i+1, title, results[i].Score)
		cmd.Printf("      Path: %s\n", results[i].Path)
		if results[i].Chunk.Section != "" {
			cmd.Printf("      Section: %s\n", results[i].Chunk.Section)
		}
		if results[i].Chunk.Page > 0 {
			cmd.Printf("      Page: %d\n", results[i].Chunk.Page)
		}
		cmd.Printf("      %s\n", truncate(results[i].Chunk.Text, 120))
		cmd.Println()
	}
	return nil
}

func runDocsRemove(cmd *cobra.Command, args []string) error {
	if documentService == nil {
		return errors.New("document service not configured")
	}

	n, err := documentService.RemovePaths(cmd.Context(), args)
	if err != nil {
		return fmt.Errorf("failed to remove documents: %w", err)
	}
	cmd.Printf("Removed %d documents\n", n)
	return nil
}

func runDocsList(cmd *cobra.Command, _ []string) error {
	if documentService == nil {
		return errors.New("document service not configured")
	}

	docs, err := documentService.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}

	if docsJSON {
		return outputJSON(cmd, docs)
	}

	if len(docs) == 0 {
		cmd.Println("No documents indexed.")
		return nil
	}

	for i := range docs {
		cmd.Printf("  %s\n", docs[i].Path)
		if docs[i].Title != "" {
			cmd.Printf("    Title: %s\n", docs[i].Title)
		}
		cmd.Printf("    Size: %d bytes  Modified: %s\n", docs[i].SizeBytes, docs[i].ModifiedTime.Format(timeLayout))
	}
	cmd.Printf("\nTotal: %d documents\n", len(docs))
	return nil
}

func runDocsClear(cmd *cobra.Command, _ []string) error {
	if documentService == nil {
		return errors.New("document service not configured")
	}

	report, err := documentService.Clear(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to clear documents: %w", err)
	}
	outputClearReport(cmd, "documents", report)
	return nil
}

func runDocsWatch(cmd *cobra.Command, args []string) error {
	if documentService == nil {
		return errors.New("document service not configured")
	}

	ctx := cmd.Context()
	report, err := documentService.IndexPaths(ctx, args, docsRecursive)
	if report != nil {
		outputIndexReport(cmd, report)
	}
	if err != nil {
		return fmt.Errorf("initial indexing failed: %w", err)
	}

	w, err := watcher.New(documentService, args,
		watcher.WithRecursive(docsRecursive),
		watcher.WithDebounce(docsDebounce),
	)
	if err != nil {
		return fmt.Errorf("failed to watch: %w", err)
	}
	defer w.Close()

	cmd.Println("Watching for changes. Press Ctrl+C to stop.")
	return w.Run(ctx, func(b watcher.Batch) {
		for _, c := range b.Changes {
			switch c.Type {
			case watcher.ChangeDeleted:
				cmd.Printf("  removed  %s\n", c.Path)
			case watcher.ChangeDirCreated:
				cmd.Printf("  added    %s/\n", c.Path)
			default:
				cmd.Printf("  updated  %s\n", c.Path)
			}
		}
		if b.Report != nil {
			for _, path := range sortedKeys(b.Report.Errors) {
				cmd.Printf("  failed   %s: %s\n", path, b.Report.Errors[path])
			}
		}
		if b.Err != nil {
			cmd.Printf("  warning: %v\n", b.Err)
		}
	})
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
