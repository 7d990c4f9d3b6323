package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/recall/internal/core/domain"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage application settings",
	Long: `View and configure embedding providers, the vector index, document
retrieval and recovery settings.`,
	RunE: runSettingsShow,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	RunE:  runSettingsShow,
}

var settingsProviderCmd = &cobra.Command{
	Use:   "provider [remote|local]",
	Short: "Configure an embedding provider",
	Long: `Configure the model, endpoint and vector length of an embedding provider.

  remote - hosted OpenAI-compatible API (requires an API key)
  local  - Ollama on this machine

Changing a provider's dimensions makes its existing vectors unusable; clear
thoughts and memories afterwards.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{string(domain.ProviderRemote), string(domain.ProviderLocal)},
	RunE:      runSettingsProvider,
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsProviderCmd)
	rootCmd.AddCommand(settingsCmd)
}

func runSettingsShow(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	cmd.Println("Current Settings")
	cmd.Println("================")
	cmd.Println()

	if settings.DataDir != "" {
		cmd.Printf("Data directory: %s\n\n", settings.DataDir)
	}

	for _, p := range domain.AllProviders {
		ps := settings.Providers.Remote
		if p == domain.ProviderLocal {
			ps = settings.Providers.Local
		}
		cmd.Printf("[Provider: %s]\n", p.Description())
		cmd.Printf("  Model: %s\n", ps.Model)
		cmd.Printf("  Dimensions: %d\n", ps.Dimensions)
		if ps.BaseURL != "" {
			cmd.Printf("  Base URL: %s\n", ps.BaseURL)
		}
		if p == domain.ProviderRemote {
			if ps.APIKey != "" {
				cmd.Printf("  API Key: %s\n", maskAPIKey(ps.APIKey))
			} else {
				cmd.Printf("  API Key: (not set)\n")
			}
		}
		status := "configured"
		if !ps.IsConfigured(p) {
			status = "not configured"
		}
		cmd.Printf("  Status: %s\n", status)
		cmd.Println()
	}

	cmd.Println("[Vector Index]")
	cmd.Printf("  Max elements: %d\n", settings.VectorIndex.MaxElements)
	cmd.Printf("  M: %d\n", settings.VectorIndex.M)
	cmd.Printf("  ef_search: %d\n", settings.VectorIndex.EfSearch)
	cmd.Println()

	cmd.Println("[Documents]")
	cmd.Printf("  Chunk tokens: %d (overlap %d)\n", settings.RAG.ChunkTokens, settings.RAG.ChunkOverlap)
	cmd.Printf("  Weights: vector %.2f, keyword %.2f\n", settings.RAG.VectorWeight, settings.RAG.KeywordWeight)
	cmd.Printf("  Candidate factor: %d\n", settings.RAG.CandidateFactor)
	cmd.Println()

	cmd.Println("[Recovery]")
	cmd.Printf("  Max attempts: %d\n", settings.Recovery.MaxAttempts)
	cmd.Println()

	if err := settingsService.Validate(); err != nil {
		cmd.Printf("Warning: %v\n", err)
	} else {
		cmd.Println("Configuration is valid.")
	}

	return nil
}

func runSettingsProvider(cmd *cobra.Command, args []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	provider := domain.Provider(args[0])
	if !provider.IsValid() {
		return fmt.Errorf("unknown provider %q: %w", args[0], domain.ErrInvalidInput)
	}

	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	ps := &settings.Providers.Remote
	if provider == domain.ProviderLocal {
		ps = &settings.Providers.Local
	}

	reader := bufio.NewReader(cmd.InOrStdin())

	cmd.Printf("Configure %s\n\n", provider.Description())

	cmd.Printf("Model [%s]: ", ps.Model)
	if model := readLine(reader); model != "" {
		ps.Model = model
	}

	cmd.Printf("Base URL [%s]: ", displayDefault(ps.BaseURL))
	if baseURL := readLine(reader); baseURL != "" {
		ps.BaseURL = baseURL
	}

	cmd.Printf("Dimensions [%d]: ", ps.Dimensions)
	if input := readLine(reader); input != "" {
		dims, err := strconv.Atoi(input)
		if err != nil || dims <= 0 {
			return fmt.Errorf("invalid dimensions %q: %w", input, domain.ErrInvalidInput)
		}
		ps.Dimensions = dims
	}

	if provider == domain.ProviderRemote {
		cmd.Print("API key (leave empty to keep): ")
		ps.APIKey = readPassword(cmd, reader)
		cmd.Println()
	}

	if err := settingsService.Save(settings); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}

	cmd.Printf("%s configured: %s (%d dimensions)\n", provider.Description(), ps.Model, ps.Dimensions)
	return nil
}

// Helper functions.

//nolint:errcheck // CLI helper, error ignored for UX
func readLine(reader *bufio.Reader) string {
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}

// readPassword reads without echo when the input is a terminal.
func readPassword(cmd *cobra.Command, reader *bufio.Reader) string {
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		password, err := term.ReadPassword(int(f.Fd()))
		if err == nil {
			return strings.TrimSpace(string(password))
		}
	}
	return readLine(reader)
}

func displayDefault(s string) string {
	if s == "" {
		return "default"
	}
	return s
}

func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
