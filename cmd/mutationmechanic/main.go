package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/binods1313/MutationMechanic-sub000/internal/profile"
	"github.com/binods1313/MutationMechanic-sub000/internal/version"
	"github.com/binods1313/MutationMechanic-sub000/server"
	"github.com/binods1313/MutationMechanic-sub000/store"
	"github.com/binods1313/MutationMechanic-sub000/store/db"
)

var (
	rootCmd = &cobra.Command{
		Use:   "mutationmechanic",
		Short: `Variant analysis dashboard backend: tiered annotation cache, analysis history and presets.`,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			level := slog.LevelInfo
			if viper.GetBool("verbose") {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
		Run: func(cmd *cobra.Command, _ []string) {
			if err := runServe(cmd.Context()); err != nil {
				slog.Error("server exited", "error", err)
				os.Exit(1)
			}
		},
	}

	sweepCmd = &cobra.Command{
		Use:   "sweep",
		Short: "Delete history and cache entries past their retention window",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSweep(cmd.Context(), cmd)
		},
	}

	presetsCmd = &cobra.Command{
		Use:   "presets",
		Short: "Export or import saved presets",
	}

	presetsExportCmd = &cobra.Command{
		Use:   "export [file]",
		Short: "Write presets as JSON to a file or stdout",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPresetsExport(cmd.Context(), cmd, args)
		},
	}

	presetsImportCmd = &cobra.Command{
		Use:   "import <file>",
		Short: "Merge presets from an exported JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPresetsImport(cmd.Context(), cmd, args[0])
		},
	}
)

// newProfile builds the profile from flags, MM_* variables and defaults.
func newProfile() (*profile.Profile, error) {
	p := &profile.Profile{
		Mode:    viper.GetString("mode"),
		Addr:    viper.GetString("addr"),
		Port:    viper.GetInt("port"),
		Data:    viper.GetString("data"),
		Driver:  viper.GetString("driver"),
		DSN:     viper.GetString("dsn"),
		Version: version.GetCurrentVersion(viper.GetString("mode")),
	}
	p.FromEnv()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// openStore opens and migrates the durable tier.
func openStore(ctx context.Context, p *profile.Profile) (*store.Store, error) {
	dbDriver, err := db.NewDBDriver(p)
	if err != nil {
		return nil, err
	}
	storeInstance := store.New(dbDriver, p)
	if _, err := storeInstance.Migrate(ctx); err != nil {
		storeInstance.Close()
		return nil, err
	}
	return storeInstance, nil
}

// openServer wires the services without serving; the durable tier is optional.
func openServer(ctx context.Context) (*server.Server, error) {
	p, err := newProfile()
	if err != nil {
		return nil, err
	}
	storeInstance, err := openStore(ctx, p)
	if err != nil {
		slog.Warn("durable tier unavailable, continuing with the fast tier only", "error", err)
		storeInstance = nil
	}
	return server.NewServer(ctx, p, storeInstance)
}

func runServe(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s, err := openServer(ctx)
	if err != nil {
		return err
	}

	c := make(chan os.Signal, 1)
	// Trigger graceful shutdown on SIGINT or SIGTERM.
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	if err := s.Start(ctx); err != nil {
		return err
	}
	printGreetings(s.Profile)

	go func() {
		<-c
		s.Shutdown(ctx)
		cancel()
	}()

	<-ctx.Done()
	return nil
}

func runSweep(ctx context.Context, cmd *cobra.Command) error {
	s, err := openServer(ctx)
	if err != nil {
		return err
	}
	defer s.Shutdown(ctx)

	result, err := s.HistoryService.Sweep(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %d history records and %d cache entries\n", result.HistoryDeleted, result.CacheDeleted+int64(result.FastExpired))

	prefix, err := cmd.Flags().GetString("prefix")
	if err != nil || prefix == "" {
		return err
	}
	purged, err := s.Cache.Purge(ctx, prefix)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "purged %d cache entries with prefix %q\n", purged, prefix)
	return nil
}

func runPresetsExport(ctx context.Context, cmd *cobra.Command, args []string) error {
	s, err := openServer(ctx)
	if err != nil {
		return err
	}
	defer s.Shutdown(ctx)

	out, err := s.PresetService.ExportPresets(ctx)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	}
	return os.WriteFile(args[0], []byte(out), 0644)
}

func runPresetsImport(ctx context.Context, cmd *cobra.Command, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	s, err := openServer(ctx)
	if err != nil {
		return err
	}
	defer s.Shutdown(ctx)

	presets, err := s.PresetService.ImportPresets(ctx, string(data))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "imported presets, %d stored\n", len(presets))
	return nil
}

func init() {
	viper.SetDefault("mode", "demo")
	viper.SetDefault("driver", "sqlite")
	viper.SetDefault("port", 8081)

	flags := rootCmd.PersistentFlags()
	flags.String("mode", "demo", `mode of server, can be "prod" or "dev" or "demo"`)
	flags.String("addr", "", "address of server")
	flags.Int("port", 8081, "port of server")
	flags.String("data", "", "data directory")
	flags.String("driver", "sqlite", "database driver")
	flags.String("dsn", "", "database source name(aka. DSN)")
	flags.Bool("verbose", false, "enable debug logging")

	for _, key := range []string{"mode", "addr", "port", "data", "driver", "dsn", "verbose"} {
		if err := viper.BindPFlag(key, flags.Lookup(key)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("mm")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	sweepCmd.Flags().String("prefix", "", `also purge cached entries whose key starts with this prefix, e.g. "genomic_ctx_"`)

	presetsCmd.AddCommand(presetsExportCmd, presetsImportCmd)
	rootCmd.AddCommand(sweepCmd, presetsCmd)
}

func printGreetings(p *profile.Profile) {
	fmt.Printf("MutationMechanic %s started successfully!\n", p.Version)
	if p.IsDev() {
		fmt.Fprintf(os.Stderr, "Development mode is enabled\n")
		fmt.Fprintf(os.Stderr, "Database: %s (%s)\n", p.DSN, p.Driver)
	}
	if len(p.Addr) == 0 {
		fmt.Printf("Server running on port %d\n", p.Port)
		fmt.Printf("Access your dashboard API at: http://localhost:%d/api/v1\n", p.Port)
	} else {
		fmt.Printf("Server running on %s:%d\n", p.Addr, p.Port)
		fmt.Printf("Access your dashboard API at: http://%s:%d/api/v1\n", p.Addr, p.Port)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
