package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/wpforge-dev/wpforge/internal/config"
	"github.com/wpforge-dev/wpforge/internal/providers"
	"github.com/wpforge-dev/wpforge/internal/state"
)

type providerSpec struct {
	Name        string
	DisplayName string
	Aliases     []string
	// NeedsKey is false for providers that run locally without credentials.
	NeedsKey       bool
	FallbackModels []string
}

func providerSpecs() []providerSpec {
	return []providerSpec{
		{
			Name:        "anthropic",
			DisplayName: "Anthropic",
			Aliases:     []string{"claude"},
			NeedsKey:    true,
			FallbackModels: []string{
				"claude-3-5-haiku-20241022",
				"claude-3-5-sonnet-20241022",
				"claude-3-7-sonnet-latest",
			},
		},
		{
			Name:        "openai",
			DisplayName: "OpenAI",
			Aliases:     []string{"gpt"},
			NeedsKey:    true,
			FallbackModels: []string{
				"gpt-4.1",
				"gpt-4.1-mini",
				"gpt-4o",
			},
		},
		{
			Name:        "ollama",
			DisplayName: "Ollama",
			Aliases:     []string{"local"},
			NeedsKey:    false,
			FallbackModels: []string{
				"llama3.1",
				"qwen2.5-coder",
			},
		},
	}
}

func resolveProvider(input string) (providerSpec, error) {
	name := strings.ToLower(strings.TrimSpace(input))
	for _, spec := range providerSpecs() {
		if name == spec.Name || name == strings.ToLower(spec.DisplayName) {
			return spec, nil
		}
		for _, alias := range spec.Aliases {
			if name == alias {
				return spec, nil
			}
		}
	}
	return providerSpec{}, fmt.Errorf("unknown provider %q", input)
}

func providerConnected(spec providerSpec) bool {
	if !spec.NeedsKey {
		return true
	}
	_, err := providers.APIKeyFor(spec.Name)
	return err == nil
}

func NewAuthCmd() *cobra.Command {
	authCmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage provider API credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthList()
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List provider connection status",
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = args
			return runAuthList()
		},
	}

	var setKey string
	setCmd := &cobra.Command{
		Use:   "set <provider>",
		Short: "Store the API key for a provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := resolveProvider(args[0])
			if err != nil {
				return err
			}
			if !spec.NeedsKey {
				return fmt.Errorf("%s runs locally and needs no API key", spec.DisplayName)
			}

			key := strings.TrimSpace(setKey)
			if key == "" {
				key, err = promptForKey(spec.DisplayName)
				if err != nil {
					return err
				}
			}

			if err := providers.StoreCredential(spec.Name, key); err != nil {
				return fmt.Errorf("store key for %s: %w", spec.DisplayName, err)
			}
			fmt.Printf("Stored API key for %s\n", spec.DisplayName)
			return nil
		},
	}
	setCmd.Flags().StringVar(&setKey, "key", "", "API key value (omit to be prompted)")

	removeCmd := &cobra.Command{
		Use:     "remove <provider>",
		Aliases: []string{"rm", "delete"},
		Short:   "Remove the stored API key for a provider",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := resolveProvider(args[0])
			if err != nil {
				return err
			}
			if !spec.NeedsKey {
				return fmt.Errorf("%s has no stored key", spec.DisplayName)
			}
			if err := providers.DeleteCredential(spec.Name); err != nil {
				return fmt.Errorf("remove key for %s: %w", spec.DisplayName, err)
			}
			fmt.Printf("Removed API key for %s\n", spec.DisplayName)
			return nil
		},
	}

	authCmd.AddCommand(listCmd, setCmd, removeCmd)
	return authCmd
}

// promptForKey reads the key without echo on a terminal and falls back to a
// plain line read when stdin is piped.
func promptForKey(displayName string) (string, error) {
	fmt.Printf("Enter API key for %s: ", displayName)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		raw, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("read api key: %w", err)
		}
		return strings.TrimSpace(string(raw)), nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read api key: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func runAuthList() error {
	w := tabwriter.NewWriter(os.Stdout, 2, 2, 2, ' ', 0)
	fmt.Fprintln(w, "PROVIDER\tSTATUS")
	for _, spec := range providerSpecs() {
		status := "not connected"
		switch {
		case !spec.NeedsKey:
			status = "no key needed"
		case providerConnected(spec):
			status = "connected"
		}
		fmt.Fprintf(w, "%s\t%s\n", spec.DisplayName, status)
	}
	return w.Flush()
}

func NewModelsCmd() *cobra.Command {
	var showAll bool
	var timeout time.Duration
	modelsCmd := &cobra.Command{
		Use:   "models [provider]",
		Short: "List models available for connected providers",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				cfg = config.Default()
			}

			specs := providerSpecs()
			if len(args) == 1 {
				spec, err := resolveProvider(args[0])
				if err != nil {
					return err
				}
				specs = []providerSpec{spec}
			}

			w := tabwriter.NewWriter(os.Stdout, 2, 2, 2, ' ', 0)
			fmt.Fprintln(w, "PROVIDER\tCONNECTED\tSOURCE\tMODELS")

			printed := 0
			for _, spec := range specs {
				connected := providerConnected(spec)
				if !showAll && !connected {
					continue
				}

				models := append([]string(nil), spec.FallbackModels...)
				source := "fallback"

				if connected {
					if p, err := providers.New(cfg, spec.Name); err == nil {
						ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
						live, err := p.ListModels(ctx)
						cancel()
						if err == nil && len(live) > 0 {
							models = live
							source = "provider"
						}
					}
				}

				sort.Strings(models)
				status := "no"
				if connected {
					status = "yes"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", spec.DisplayName, status, source, strings.Join(models, ", "))
				printed++
			}

			if printed == 0 {
				fmt.Println("No connected providers found. Use `wpforge auth set <provider>` first.")
				return nil
			}
			return w.Flush()
		},
	}

	modelsCmd.Flags().BoolVar(&showAll, "all", false, "Include providers without configured API keys")
	modelsCmd.Flags().DurationVar(&timeout, "timeout", 4*time.Second, "Provider model query timeout")
	return modelsCmd
}

func NewRunsCmd() *cobra.Command {
	var dbPath string
	var limit int

	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "Browse recorded pipeline runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRunsList(cmd.Context(), dbPath, limit)
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRunsList(cmd.Context(), dbPath, limit)
		},
	}

	showCmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run, phase by phase",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRunsShow(cmd.Context(), dbPath, args[0])
		},
	}

	runsCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to the history database (default from config)")
	runsCmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to list")
	listCmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to list")
	runsCmd.AddCommand(listCmd, showCmd)
	return runsCmd
}

func historyDBPath(override string) (string, error) {
	if strings.TrimSpace(override) != "" {
		return override, nil
	}
	cfg, err := config.Load()
	if err != nil {
		return "", err
	}
	return cfg.History.Path, nil
}

func runRunsList(ctx context.Context, dbPath string, limit int) error {
	path, err := historyDBPath(dbPath)
	if err != nil {
		return err
	}
	db, err := state.Connect(path)
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := db.ListRuns(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded yet.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 2, 2, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tSTATUS\tPLUGIN\tMODEL\tSTARTED\tDURATION")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			shortRunID(r.ID),
			r.Status,
			r.PluginName,
			r.Model,
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			runDuration(r.StartedAt, r.FinishedAt),
		)
	}
	return w.Flush()
}

func runRunsShow(ctx context.Context, dbPath, id string) error {
	path, err := historyDBPath(dbPath)
	if err != nil {
		return err
	}
	db, err := state.Connect(path)
	if err != nil {
		return err
	}
	defer db.Close()

	detail, err := db.GetRun(ctx, id)
	if errors.Is(err, state.ErrRunNotFound) {
		return fmt.Errorf("run %q not found", id)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Run:      %s\n", detail.ID)
	fmt.Printf("Status:   %s\n", detail.Status)
	if detail.PluginName != "" {
		fmt.Printf("Plugin:   %s (%s)\n", detail.PluginName, detail.Slug)
	}
	fmt.Printf("Model:    %s\n", detail.Model)
	fmt.Printf("Started:  %s\n", detail.StartedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Printf("Duration: %s\n", runDuration(detail.StartedAt, detail.FinishedAt))
	fmt.Printf("Prompt:   %s\n", detail.Prompt)

	if len(detail.Phases) > 0 {
		fmt.Println()
		w := tabwriter.NewWriter(os.Stdout, 2, 2, 2, ' ', 0)
		fmt.Fprintln(w, "PHASE\tSTATUS\tATTEMPTS\tDETAIL")
		for _, p := range detail.Phases {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", p.Phase, p.Status, p.Attempts, p.Detail)
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	if len(detail.Artifacts) > 0 {
		fmt.Println()
		for _, a := range detail.Artifacts {
			fmt.Printf("%s:\t%s\n", a.Kind, a.Path)
		}
	}
	return nil
}

func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func runDuration(started, finished time.Time) string {
	if finished.IsZero() || finished.Before(started) {
		return "-"
	}
	return finished.Sub(started).Round(time.Second).String()
}

func NewConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and initialize the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow()
		},
	}

	pathCmd := &cobra.Command{
		Use:   "path",
		Short: "Print the configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(config.GetConfigPath())
			return nil
		},
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow()
		},
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.GetConfigPath()
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("config already exists at %s", path)
			}
			if err := config.Default().Save(); err != nil {
				return err
			}
			fmt.Printf("Wrote default config to %s\n", path)
			return nil
		},
	}

	configCmd.AddCommand(pathCmd, showCmd, initCmd)
	return configCmd
}

func runConfigShow() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	return toml.NewEncoder(os.Stdout).Encode(cfg)
}
