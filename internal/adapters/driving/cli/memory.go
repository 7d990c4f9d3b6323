package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/recall/internal/core/domain"
)

var (
	memoryType  string
	memoryLimit int
	memoryJSON  bool
)

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Manage long-term memories",
	Long:  `Save, update, list and delete durable facts and preferences.`,
}

var memorySaveCmd = &cobra.Command{
	Use:   "save [content]",
	Short: "Save a new memory",
	Args:  cobra.ExactArgs(1),
	RunE:  runMemorySave,
}

var memoryUpdateCmd = &cobra.Command{
	Use:   "update [memory-id] [content]",
	Short: "Replace a memory's content",
	Args:  cobra.ExactArgs(2),
	RunE:  runMemoryUpdate,
}

var memoryListCmd = &cobra.Command{
	Use:   "list [query]",
	Short: "List memories",
	Long: `Lists memories newest first. With a query, memories are ranked by
similarity to it; memories without a comparable embedding follow.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runMemoryList,
}

var memoryDeleteCmd = &cobra.Command{
	Use:   "delete [memory-id]",
	Short: "Delete a memory",
	Args:  cobra.ExactArgs(1),
	RunE:  runMemoryDelete,
}

var memoryClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every memory",
	RunE:  runMemoryClear,
}

func init() {
	memorySaveCmd.Flags().StringVarP(&memoryType, "type", "t", "", "memory category")
	memorySaveCmd.Flags().BoolVar(&memoryJSON, "json", false, "output memory as JSON")
	memoryUpdateCmd.Flags().StringVarP(&memoryType, "type", "t", "", "memory category")
	memoryUpdateCmd.Flags().BoolVar(&memoryJSON, "json", false, "output memory as JSON")
	memoryListCmd.Flags().StringVarP(&memoryType, "type", "t", "", "only list memories of this category")
	memoryListCmd.Flags().IntVarP(&memoryLimit, "limit", "n", 20, "maximum number of memories")
	memoryListCmd.Flags().BoolVar(&memoryJSON, "json", false, "output memories as JSON")

	memoryCmd.AddCommand(memorySaveCmd)
	memoryCmd.AddCommand(memoryUpdateCmd)
	memoryCmd.AddCommand(memoryListCmd)
	memoryCmd.AddCommand(memoryDeleteCmd)
	memoryCmd.AddCommand(memoryClearCmd)
	rootCmd.AddCommand(memoryCmd)
}

// memoryView is the JSON form of a memory.
type memoryView struct {
	ID        string            `json:"id"`
	Content   string            `json:"content"`
	Type      string            `json:"type,omitempty"`
	CreatedAt string            `json:"created_at"`
	UpdatedAt string            `json:"updated_at"`
	Indexed   []domain.Provider `json:"indexed,omitempty"`
	Ranked    bool              `json:"ranked,omitempty"`
	Distance  float64           `json:"distance,omitempty"`
}

func newMemoryView(m *domain.LongTermMemory) memoryView {
	view := memoryView{
		ID:        m.ID,
		Content:   m.Content,
		Type:      m.MemoryType,
		CreatedAt: m.CreatedAt.Format(timeLayout),
		UpdatedAt: m.UpdatedAt.Format(timeLayout),
	}
	for _, p := range domain.AllProviders {
		if _, ok := m.Slots[p]; ok {
			view.Indexed = append(view.Indexed, p)
		}
	}
	return view
}

func runMemorySave(cmd *cobra.Command, args []string) error {
	if memoryService == nil {
		return errors.New("memory service not configured")
	}
	if embedder == nil {
		return errEmbedderMissing
	}

	ctx := cmd.Context()
	embeddings, _ := embedder.EmbedAll(ctx, args[0])

	m, err := memoryService.Save(ctx, args[0], memoryType, embeddings)
	if m == nil {
		return fmt.Errorf("failed to save memory: %w", err)
	}
	if oerr := outputMemory(cmd, "Saved", m); oerr != nil {
		return oerr
	}
	if err != nil {
		return fmt.Errorf("memory saved but not fully indexed: %w", err)
	}
	return nil
}

func runMemoryUpdate(cmd *cobra.Command, args []string) error {
	if memoryService == nil {
		return errors.New("memory service not configured")
	}
	if embedder == nil {
		return errEmbedderMissing
	}

	ctx := cmd.Context()
	embeddings, _ := embedder.EmbedAll(ctx, args[1])

	m, err := memoryService.Update(ctx, args[0], args[1], memoryType, embeddings)
	if m == nil {
		return fmt.Errorf("failed to update memory: %w", err)
	}
	if oerr := outputMemory(cmd, "Updated", m); oerr != nil {
		return oerr
	}
	if err != nil {
		return fmt.Errorf("memory updated but not fully indexed: %w", err)
	}
	return nil
}

func outputMemory(cmd *cobra.Command, verb string, m *domain.LongTermMemory) error {
	view := newMemoryView(m)
	if memoryJSON {
		return outputJSON(cmd, view)
	}
	cmd.Printf("%s memory %s\n", verb, m.ID)
	cmd.Printf("  Indexed: %s\n", joinProviders(view.Indexed))
	return nil
}

func runMemoryList(cmd *cobra.Command, args []string) error {
	if memoryService == nil {
		return errors.New("memory service not configured")
	}

	ctx := cmd.Context()
	opts := domain.MemoryListOptions{
		Limit:      memoryLimit,
		MemoryType: memoryType,
	}
	if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
		if embedder == nil {
			return errEmbedderMissing
		}
		vec, _, err := embedder.EmbedQuery(ctx, args[0], "")
		if err != nil {
			return fmt.Errorf("failed to embed query: %w", err)
		}
		opts.Query = vec
	}

	results, err := memoryService.List(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to list memories: %w", err)
	}

	if memoryJSON {
		views := make([]memoryView, len(results))
		for i := range results {
			views[i] = newMemoryView(&results[i].Memory)
			views[i].Ranked = results[i].Ranked
			views[i].Distance = results[i].Distance
		}
		return outputJSON(cmd, views)
	}

	if len(results) == 0 {
		cmd.Println("No memories found.")
		return nil
	}

	for i := range results {
		m := results[i].Memory
		label := m.MemoryType
		if label == "" {
			label = "-"
		}
		if results[i].Ranked {
			cmd.Printf("  %s [%s] (%.3f)\n", m.ID, label, results[i].Distance)
		} else {
			cmd.Printf("  %s [%s]\n", m.ID, label)
		}
		cmd.Printf("    %s\n", truncate(m.Content, 100))
	}
	cmd.Printf("\nTotal: %d memories\n", len(results))
	return nil
}

func runMemoryDelete(cmd *cobra.Command, args []string) error {
	if memoryService == nil {
		return errors.New("memory service not configured")
	}

	if err := memoryService.Delete(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("failed to delete memory: %w", err)
	}
	cmd.Printf("Deleted memory %s\n", args[0])
	return nil
}

func runMemoryClear(cmd *cobra.Command, _ []string) error {
	if memoryService == nil {
		return errors.New("memory service not configured")
	}

	report, err := memoryService.Clear(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to clear memories: %w", err)
	}
	outputClearReport(cmd, "memories", report)
	return nil
}
