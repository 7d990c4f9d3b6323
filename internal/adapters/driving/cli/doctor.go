package cli

import (
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/recall/internal/core/domain"
)

var (
	doctorRebuild string
	doctorJSON    bool
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the store and vector indices",
	Long: `Reports what startup recovery did, then compares each vector index
with its slot table. Use --rebuild to rebuild one index, or "all".`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func init() {
	doctorCmd.Flags().StringVar(&doctorRebuild, "rebuild", "", "index to rebuild: remote, local, rag_local or all")
	doctorCmd.Flags().BoolVar(&doctorJSON, "json", false, "output report as JSON")
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	if recoveryService == nil {
		return errors.New("recovery service not configured")
	}

	ctx := cmd.Context()
	if doctorRebuild != "" {
		names, err := rebuildTargets(doctorRebuild)
		if err != nil {
			return err
		}
		for _, name := range names {
			if err := recoveryService.RebuildIndex(ctx, name); err != nil {
				return fmt.Errorf("failed to rebuild %s: %w", name, err)
			}
			cmd.Printf("Rebuilt index %s\n", name)
		}
	}

	statuses, err := recoveryService.CheckConsistency(ctx)
	if err != nil {
		return fmt.Errorf("consistency check failed: %w", err)
	}

	if doctorJSON {
		type statusView struct {
			Name       domain.IndexName `json:"name"`
			Len        int              `json:"len"`
			Slots      int              `json:"slots"`
			Consistent bool             `json:"consistent"`
		}
		views := make([]statusView, len(statuses))
		for i, s := range statuses {
			views[i] = statusView{s.Name, s.Len, s.Slots, s.Consistent()}
		}
		return outputJSON(cmd, struct {
			Startup *domain.StartupReport `json:"startup,omitempty"`
			Indices []statusView          `json:"indices"`
		}{startupReport, views})
	}

	if startupReport != nil {
		outputStartupReport(cmd, startupReport)
	}

	cmd.Println("[Indices]")
	inconsistent := 0
	for _, s := range statuses {
		state := "ok"
		if !s.Consistent() {
			state = "INCONSISTENT"
			inconsistent++
		}
		cmd.Printf("  %-10s %6d vectors  %6d slots  %s\n", s.Name, s.Len, s.Slots, state)
	}
	cmd.Println()

	if inconsistent > 0 {
		cmd.Println("Run 'recall doctor --rebuild all' to rebuild the inconsistent indices.")
		return fmt.Errorf("%d inconsistent indices: %w", inconsistent, domain.ErrIndexCorrupt)
	}
	cmd.Println("All indices are consistent.")
	return nil
}

func outputStartupReport(cmd *cobra.Command, r *domain.StartupReport) {
	cmd.Println("[Startup]")
	cmd.Printf("  Integrity: %s\n", r.Integrity.Status)
	if r.Integrity.Detail != "" {
		cmd.Printf("  Detail: %s\n", r.Integrity.Detail)
	}
	switch {
	case r.Reset:
		cmd.Println("  Store was reset after repeated recovery failures.")
	case r.Recovered:
		cmd.Println("  Store was salvaged.")
	}
	for _, m := range r.Migrations {
		switch {
		case m.Error != "":
			cmd.Printf("  Migration %s: FAILED (%s)\n", m.Name, m.Error)
		case m.Applied:
			cmd.Printf("  Migration %s: applied\n", m.Name)
		}
	}
	if len(r.Loaded) > 0 {
		cmd.Printf("  Loaded: %s\n", joinIndices(r.Loaded))
	}
	if len(r.Rebuilt) > 0 {
		cmd.Printf("  Rebuilt: %s\n", joinIndices(r.Rebuilt))
	}
	names := make([]string, 0, len(r.IndexErrors))
	for name := range r.IndexErrors {
		names = append(names, string(name))
	}
	sort.Strings(names)
	for _, name := range names {
		cmd.Printf("  Index %s unavailable: %s\n", name, r.IndexErrors[domain.IndexName(name)])
	}
	cmd.Println()
}

func rebuildTargets(arg string) ([]domain.IndexName, error) {
	if arg == "all" {
		return domain.AllIndices, nil
	}
	for _, name := range domain.AllIndices {
		if string(name) == arg {
			return []domain.IndexName{name}, nil
		}
	}
	return nil, fmt.Errorf("unknown index %q: %w", arg, domain.ErrInvalidInput)
}

func joinIndices(names []domain.IndexName) string {
	s := ""
	for i, name := range names {
		if i > 0 {
			s += ", "
		}
		s += string(name)
	}
	return s
}
