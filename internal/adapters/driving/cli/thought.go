package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/recall/internal/core/domain"
)

var (
	thoughtRole      string
	thoughtLimit     int
	thoughtProvider  string
	thoughtCount     int
	thoughtCovered   int
	thoughtJSON      bool
	thoughtListLimit int
)

var thoughtCmd = &cobra.Command{
	Use:   "thought",
	Short: "Manage conversational memory",
	Long: `Append, search and summarise the messages of conversations.

Messages are embedded with every configured provider when appended and
searched by meaning.`,
}

var thoughtAppendCmd = &cobra.Command{
	Use:   "append [conversation-id] [text]",
	Short: "Append a message to a conversation",
	Args:  cobra.ExactArgs(2),
	RunE:  runThoughtAppend,
}

var thoughtSearchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search conversational memory",
	Long: `Embeds the query and returns the closest messages across all
conversations. Use --provider to prefer one embedding provider.`,
	Args: cobra.ExactArgs(1),
	RunE: runThoughtSearch,
}

var thoughtListCmd = &cobra.Command{
	Use:   "list [conversation-id]",
	Short: "Show the latest messages of a conversation",
	Args:  cobra.ExactArgs(1),
	RunE:  runThoughtList,
}

var thoughtWindowCmd = &cobra.Command{
	Use:   "window [conversation-id]",
	Short: "Show messages not yet covered by a summary",
	Args:  cobra.ExactArgs(1),
	RunE:  runThoughtWindow,
}

var thoughtSummarizeCmd = &cobra.Command{
	Use:   "summarize [conversation-id] [summary]",
	Short: "Record a summary of the oldest un-summarised messages",
	Long: `Records a summary that covers the next --covered messages of the
summarisation window. Later windows start after the covered messages.`,
	Args: cobra.ExactArgs(2),
	RunE: runThoughtSummarize,
}

var thoughtClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every message and summary",
	RunE:  runThoughtClear,
}

func init() {
	thoughtAppendCmd.Flags().StringVarP(&thoughtRole, "role", "r", string(domain.RoleUser), "message author: user, assistant or system")
	thoughtAppendCmd.Flags().BoolVar(&thoughtJSON, "json", false, "output result as JSON")

	thoughtSearchCmd.Flags().IntVarP(&thoughtLimit, "limit", "n", 10, "maximum number of results")
	thoughtSearchCmd.Flags().StringVarP(&thoughtProvider, "provider", "p", "", "preferred embedding provider (remote or local)")
	thoughtSearchCmd.Flags().BoolVar(&thoughtJSON, "json", false, "output results as JSON")

	thoughtListCmd.Flags().IntVarP(&thoughtListLimit, "limit", "n", 20, "maximum number of messages")
	thoughtListCmd.Flags().BoolVar(&thoughtJSON, "json", false, "output messages as JSON")

	thoughtWindowCmd.Flags().IntVarP(&thoughtCount, "count", "c", 20, "maximum number of messages")
	thoughtWindowCmd.Flags().BoolVar(&thoughtJSON, "json", false, "output messages as JSON")

	thoughtSummarizeCmd.Flags().IntVar(&thoughtCovered, "covered", 0, "number of messages the summary covers")
	_ = thoughtSummarizeCmd.MarkFlagRequired("covered")

	thoughtCmd.AddCommand(thoughtAppendCmd)
	thoughtCmd.AddCommand(thoughtSearchCmd)
	thoughtCmd.AddCommand(thoughtListCmd)
	thoughtCmd.AddCommand(thoughtWindowCmd)
	thoughtCmd.AddCommand(thoughtSummarizeCmd)
	thoughtCmd.AddCommand(thoughtClearCmd)
	rootCmd.AddCommand(thoughtCmd)
}

// thoughtView is the JSON form of a thought.
type thoughtView struct {
	ID             string  `json:"id"`
	Seq            int64   `json:"seq"`
	ConversationID string  `json:"conversation_id"`
	Role           string  `json:"role"`
	Text           string  `json:"text"`
	CreatedAt      string  `json:"created_at"`
	Provider       string  `json:"provider,omitempty"`
	Distance       float64 `json:"distance,omitempty"`
}

func newThoughtView(t *domain.Thought) thoughtView {
	return thoughtView{
		ID:             t.ID,
		Seq:            t.Seq,
		ConversationID: t.ConversationID,
		Role:           string(t.Role),
		Text:           t.Text,
		CreatedAt:      t.CreatedAt.Format(timeLayout),
	}
}

func runThoughtAppend(cmd *cobra.Command, args []string) error {
	if thoughtService == nil {
		return errors.New("thought service not configured")
	}
	if embedder == nil {
		return errEmbedderMissing
	}

	ctx := cmd.Context()
	text := args[1]
	embeddings, failures := embedder.EmbedAll(ctx, text)

	result, err := thoughtService.Append(ctx, args[0], domain.Role(thoughtRole), text, embeddings)
	if result == nil {
		return fmt.Errorf("failed to append thought: %w", err)
	}

	failed := make(map[string]string)
	for p, ferr := range failures {
		failed[string(p)] = ferr.Error()
	}
	for p, ferr := range result.Failed {
		failed[string(p)] = ferr.Error()
	}

	if thoughtJSON {
		view := struct {
			thoughtView
			Indexed []domain.Provider `json:"indexed"`
			Failed  map[string]string `json:"failed,omitempty"`
		}{newThoughtView(&result.Thought), result.Indexed, failed}
		if jerr := outputJSON(cmd, view); jerr != nil {
			return jerr
		}
	} else {
		cmd.Printf("Appended %s (seq %d)\n", result.Thought.ID, result.Thought.Seq)
		cmd.Printf("  Indexed: %s\n", joinProviders(result.Indexed))
		for p, reason := range failed {
			cmd.Printf("  Not indexed (%s): %s\n", p, reason)
		}
	}

	if err != nil {
		return fmt.Errorf("thought stored but not fully indexed: %w", err)
	}
	return nil
}

func runThoughtSearch(cmd *cobra.Command, args []string) error {
	if thoughtService == nil {
		return errors.New("thought service not configured")
	}
	if embedder == nil {
		return errEmbedderMissing
	}

	ctx := cmd.Context()
	vec, provider, err := embedder.EmbedQuery(ctx, args[0], domain.Provider(thoughtProvider))
	if err != nil {
		return fmt.Errorf("failed to embed query: %w", err)
	}

	hits, err := thoughtService.Search(ctx, vec, thoughtLimit, provider)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if thoughtJSON {
		views := make([]thoughtView, len(hits))
		for i := range hits {
			views[i] = newThoughtView(&hits[i].Thought)
			views[i].Provider = string(hits[i].Provider)
			views[i].Distance = hits[i].Distance
		}
		return outputJSON(cmd, views)
	}

	if len(hits) == 0 {
		cmd.Println("No results found.")
		return nil
	}

	cmd.Println("Results:")
	cmd.Println()
	for i := range hits {
		t := hits[i].Thought
		cmd.Printf("  [%d] %s/%s (%.3f, %s)\n", i+1, t.ConversationID, t.Role, hits[i].Distance, hits[i].Provider)
		cmd.Printf("      %s\n", truncate(t.Text, 100))
		cmd.Println()
	}
	return nil
}

func runThoughtList(cmd *cobra.Command, args []string) error {
	if thoughtService == nil {
		return errors.New("thought service not configured")
	}

	thoughts, err := thoughtService.ListConversation(cmd.Context(), args[0], thoughtListLimit)
	if err != nil {
		return fmt.Errorf("failed to list conversation: %w", err)
	}
	return outputThoughts(cmd, args[0], thoughts)
}

func runThoughtWindow(cmd *cobra.Command, args []string) error {
	if thoughtService == nil {
		return errors.New("thought service not configured")
	}

	thoughts, err := thoughtService.SummarizationWindow(cmd.Context(), args[0], thoughtCount)
	if err != nil {
		return fmt.Errorf("failed to load summarisation window: %w", err)
	}
	return outputThoughts(cmd, args[0], thoughts)
}

func outputThoughts(cmd *cobra.Command, conversationID string, thoughts []domain.Thought) error {
	if thoughtJSON {
		views := make([]thoughtView, len(thoughts))
		for i := range thoughts {
			views[i] = newThoughtView(&thoughts[i])
		}
		return outputJSON(cmd, views)
	}

	if len(thoughts) == 0 {
		cmd.Printf("No messages for conversation: %s\n", conversationID)
		return nil
	}

	for i := range thoughts {
		cmd.Printf("  #%d [%s] %s: %s\n", thoughts[i].Seq, thoughts[i].CreatedAt.Format(timeLayout),
			thoughts[i].Role, truncate(thoughts[i].Text, 100))
	}
	cmd.Printf("\nTotal: %d messages\n", len(thoughts))
	return nil
}

func runThoughtSummarize(cmd *cobra.Command, args []string) error {
	if thoughtService == nil {
		return errors.New("thought service not configured")
	}

	summary, err := thoughtService.RecordSummary(cmd.Context(), args[0], args[1], thoughtCovered)
	if err != nil {
		return fmt.Errorf("failed to record summary: %w", err)
	}

	cmd.Printf("Recorded summary %s\n", summary.ID)
	cmd.Printf("  Covered: %d messages (through seq %d)\n", summary.CoveredMessageCount, summary.CoveredThroughSeq)
	return nil
}

func runThoughtClear(cmd *cobra.Command, _ []string) error {
	if thoughtService == nil {
		return errors.New("thought service not configured")
	}

	report, err := thoughtService.ClearAll(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to clear thoughts: %w", err)
	}
	outputClearReport(cmd, "thoughts", report)
	return nil
}
