package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"foreman/internal/config"
	"foreman/internal/datadir"
	"foreman/internal/gateway"
	"foreman/internal/orchestration"
	"foreman/internal/version"
)

var (
	cfgFile   string
	serverURL string
	verbose   bool
	port      int
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "foreman",
	Short: "Foreman - orchestration core for business automation",
	Long: `Foreman runs the orchestration core: a skill registry with dependency
resolution, a multi-level approval gate, and a conflict-aware scheduler,
exposed over an HTTP and WebSocket API.

Run without a subcommand to start the server. The other subcommands are
thin clients that talk to a running server.`,
	Version: version.Full(),
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the foreman server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("Foreman %s\n", version.Full())
		buildInfo := version.GetBuildInfo()

		if buildInfo.GitCommit != "" {
			fmt.Printf("Git commit: %s\n", buildInfo.GitCommit)
		}
		if buildInfo.GitDirty {
			fmt.Printf("Git status: dirty (uncommitted changes)\n")
		}
		if buildInfo.BuildDate != "" {
			fmt.Printf("Build date: %s\n", buildInfo.BuildDate)
		}
		fmt.Printf("Go version: %s\n", buildInfo.GoVersion)
		return nil
	},
}

func init() {
	cobra.OnInitialize(initLogging)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.json", "config file path")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:18790", "base URL of a running foreman server")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	serveCmd.Flags().IntVarP(&port, "port", "p", 0, "override the configured HTTP port")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(approvalsCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(skillsCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(backupCmd)

	// No subcommand defaults to serve.
	rootCmd.RunE = serveCmd.RunE
}

func initLogging() {
	if verbose {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
		log.Println("Verbose logging enabled")
	}
}

func runServer() error {
	// Resolve the data directory and load .env files before config so
	// environment variables are available for ${ENV_VAR} expansion.
	dd, err := datadir.New("")
	if err != nil {
		log.Printf("WARNING: Could not resolve data directory: %v", err)
	} else {
		if err := dd.EnsureDirs(); err != nil {
			log.Printf("WARNING: Could not create data directories: %v", err)
		}
		if err := datadir.LoadEnv(dd.Root()); err != nil {
			log.Printf("WARNING: Failed to load .env files: %v", err)
		}
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if port != 0 {
		cfg.Port = port
	}

	core, err := orchestration.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to build orchestration core: %w", err)
	}
	gw := gateway.New(cfg, core)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("Received signal: %v", sig)
		cancel()
	}()

	core.Start(ctx)
	defer core.Shutdown()

	log.Printf("Starting Foreman on port %d", cfg.Port)
	if err := gw.Start(ctx); err != nil {
		return fmt.Errorf("gateway failed: %w", err)
	}

	log.Println("Foreman stopped gracefully")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
