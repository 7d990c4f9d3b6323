// Package cli implements the recall command line.
//
// Commands talk to the driving ports only. The ports are opened lazily
// from the data directory before a command runs, or injected with
// SetServices.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/recall/internal/app"
	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driving"
	"github.com/custodia-labs/recall/internal/logger"
)

// version is set at build time with -ldflags "-X ...cli.version=...".
var version = "dev"

// skipServicesAnnotation marks commands that run without opening the store.
const skipServicesAnnotation = "recall/skip-services"

// Services bundles the driving ports the commands use.
type Services struct {
	Thoughts  driving.ThoughtService
	Memories  driving.MemoryService
	Documents driving.DocumentService
	Recovery  driving.RecoveryService
	Settings  driving.SettingsService
	Embedder  driving.Embedder
	Startup   *domain.StartupReport
}

var (
	thoughtService  driving.ThoughtService
	memoryService   driving.MemoryService
	documentService driving.DocumentService
	recoveryService driving.RecoveryService
	settingsService driving.SettingsService
	embedder        driving.Embedder
	startupReport   *domain.StartupReport

	// injected is true once SetServices has supplied the ports.
	injected bool

	// openedApp is the app opened for the running command, if any.
	openedApp *app.App
)

var errEmbedderMissing = errors.New("embedding service not configured")

var (
	verboseFlag bool
	dataDirFlag string
)

var rootCmd = &cobra.Command{
	Use:   "recall",
	Short: "Persistent memory for conversational agents",
	Long: `recall stores conversational messages, long-term memories and indexed
documents on the local machine, and searches them by meaning and keywords.

Data lives in ~/.recall unless --data-dir is given.`,
	SilenceUsage:       true,
	PersistentPreRunE:  openServices,
	PersistentPostRunE: closeServices,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "", "data directory (default ~/.recall/data)")
}

// Execute runs the root command. Interrupts cancel the command context.
// The store is closed even when the command fails.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if cerr := closeServices(rootCmd, nil); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// SetServices injects the driving ports. Commands then skip opening the
// data directory.
func SetServices(s *Services) {
	if s == nil {
		thoughtService, memoryService, documentService = nil, nil, nil
		recoveryService, settingsService, embedder = nil, nil, nil
		startupReport = nil
		injected = false
		return
	}
	thoughtService = s.Thoughts
	memoryService = s.Memories
	documentService = s.Documents
	recoveryService = s.Recovery
	settingsService = s.Settings
	embedder = s.Embedder
	startupReport = s.Startup
	injected = true
}

func openServices(cmd *cobra.Command, _ []string) error {
	logger.SetVerbose(verboseFlag)
	if injected || skipServices(cmd) {
		return nil
	}

	a, err := app.New(cmd.Context(), app.Options{DataDir: dataDirFlag})
	if err != nil {
		return err
	}
	openedApp = a
	SetServices(&Services{
		Thoughts:  a.Thoughts,
		Memories:  a.Memories,
		Documents: a.Documents,
		Recovery:  a.Recovery,
		Settings:  a.SettingsService,
		Embedder:  a.Embedders,
		Startup:   a.Startup,
	})
	return nil
}

func closeServices(_ *cobra.Command, _ []string) error {
	if openedApp == nil {
		return nil
	}
	a := openedApp
	openedApp = nil
	SetServices(nil)
	if err := a.Close(); err != nil {
		return fmt.Errorf("closing store: %w", err)
	}
	return nil
}

func skipServices(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if _, ok := c.Annotations[skipServicesAnnotation]; ok {
			return true
		}
		switch c.Name() {
		case "help", "completion", cobra.ShellCompRequestCmd, cobra.ShellCompNoDescRequestCmd:
			return true
		}
	}
	return false
}
