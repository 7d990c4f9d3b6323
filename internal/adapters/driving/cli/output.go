package cli

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/recall/internal/core/domain"
)

const timeLayout = "2006-01-02 15:04:05"

func outputJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputClearReport(cmd *cobra.Command, what string, report *domain.ClearReport) {
	tables := make([]string, 0, len(report.Rows))
	for table := range report.Rows {
		tables = append(tables, table)
	}
	sort.Strings(tables)

	cmd.Printf("Cleared %s.\n", what)
	for _, table := range tables {
		cmd.Printf("  %s: %d rows\n", table, report.Rows[table])
	}
	if len(report.Rebuilt) > 0 {
		names := make([]string, len(report.Rebuilt))
		for i, name := range report.Rebuilt {
			names[i] = string(name)
		}
		cmd.Printf("  Rebuilt indices: %s\n", strings.Join(names, ", "))
	}
	for name, reason := range report.Errors {
		cmd.Printf("  Warning: index %s not rebuilt: %s\n", name, reason)
	}
}

func joinProviders(providers []domain.Provider) string {
	if len(providers) == 0 {
		return "none"
	}
	names := make([]string, len(providers))
	for i, p := range providers {
		names[i] = string(p)
	}
	return strings.Join(names, ", ")
}

// truncate shortens s to n runes for table output.
func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
