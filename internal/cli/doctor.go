package cli

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wpforge-dev/wpforge/internal/browser"
	"github.com/wpforge-dev/wpforge/internal/config"
	"github.com/wpforge-dev/wpforge/internal/knowledge"
	"github.com/wpforge-dev/wpforge/internal/providers"
)

type doctorCheck struct {
	Name   string
	OK     bool
	Detail string
}

// NewDoctorCmd reports which external dependencies the pipeline can reach.
// Missing pieces degrade runs (tests get skipped) rather than break them, so
// doctor always exits zero.
func NewDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the external tools and providers wpforge depends on",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, cfgErr := config.Load()
			if cfg == nil {
				cfg = config.Default()
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()

			fmt.Println("Environment")
			envChecks := []doctorCheck{
				binaryCheck(ctx, "php", "php", "-v"),
				binaryCheck(ctx, "docker", "docker", "--version"),
				composeCheck(ctx),
				chromeCheck(),
			}
			printChecks(envChecks)

			fmt.Println("\nProviders")
			provChecks := providerChecks(ctx, cfg)
			printChecks(provChecks)

			fmt.Println("\nConfiguration")
			cfgChecks := []doctorCheck{configCheck(cfgErr)}
			printChecks(cfgChecks)

			fmt.Println("\nKnowledge base")
			if !cfg.Knowledge.Enabled {
				fmt.Println("  disabled in config")
			} else if digest, err := knowledge.Digest(cfg.Knowledge.Dir); err != nil {
				fmt.Printf("  unavailable: %v\n", err)
			} else {
				for _, line := range strings.Split(digest, "\n") {
					fmt.Printf("  %s\n", line)
				}
			}

			total := 0
			passed := 0
			for _, c := range append(append(envChecks, provChecks...), cfgChecks...) {
				total++
				if c.OK {
					passed++
				}
			}
			fmt.Printf("\n%d of %d checks passed\n", passed, total)
			return nil
		},
	}
}

func printChecks(checks []doctorCheck) {
	for _, c := range checks {
		glyph := "✗"
		if c.OK {
			glyph = "✓"
		}
		fmt.Printf("  %s %-10s %s\n", glyph, c.Name, c.Detail)
	}
}

// binaryCheck looks up a binary and grabs the first line of its version
// output as the detail.
func binaryCheck(ctx context.Context, name, bin string, args ...string) doctorCheck {
	path, err := exec.LookPath(bin)
	if err != nil {
		return doctorCheck{Name: name, Detail: "not found in PATH"}
	}
	out, err := exec.CommandContext(ctx, path, args...).CombinedOutput()
	if err != nil {
		return doctorCheck{Name: name, OK: true, Detail: path}
	}
	return doctorCheck{Name: name, OK: true, Detail: firstOutputLine(out)}
}

func composeCheck(ctx context.Context) doctorCheck {
	if _, err := exec.LookPath("docker"); err != nil {
		return doctorCheck{Name: "compose", Detail: "docker not found in PATH"}
	}
	out, err := exec.CommandContext(ctx, "docker", "compose", "version").CombinedOutput()
	if err != nil {
		return doctorCheck{Name: "compose", Detail: "docker compose plugin not available"}
	}
	return doctorCheck{Name: "compose", OK: true, Detail: firstOutputLine(out)}
}

func chromeCheck() doctorCheck {
	path, err := browser.FindExecutable()
	if err != nil {
		return doctorCheck{Name: "chrome", Detail: "no Chrome or Chromium found (playground test will be skipped)"}
	}
	return doctorCheck{Name: "chrome", OK: true, Detail: path}
}

// providerChecks covers API keys for the hosted providers and reachability
// for the local Ollama daemon.
func providerChecks(ctx context.Context, cfg *config.Config) []doctorCheck {
	var checks []doctorCheck

	for _, spec := range providerSpecs() {
		if !spec.NeedsKey {
			continue
		}
		if providerConnected(spec) {
			checks = append(checks, doctorCheck{Name: spec.Name, OK: true, Detail: "API key present"})
		} else {
			checks = append(checks, doctorCheck{
				Name:   spec.Name,
				Detail: fmt.Sprintf("no API key (run `wpforge auth set %s`)", spec.Name),
			})
		}
	}

	ollama, err := providers.New(cfg, "ollama")
	if err != nil {
		checks = append(checks, doctorCheck{Name: "ollama", Detail: err.Error()})
		return checks
	}
	for _, res := range providers.ProbeAll(ctx, []providers.Provider{ollama}) {
		if res.Reachable {
			checks = append(checks, doctorCheck{
				Name:   res.Provider,
				OK:     true,
				Detail: fmt.Sprintf("reachable at %s (%s)", cfg.Providers.Ollama.Host, res.Latency.Round(time.Millisecond)),
			})
		} else {
			checks = append(checks, doctorCheck{
				Name:   res.Provider,
				Detail: fmt.Sprintf("not reachable at %s (embeddings and local models unavailable)", cfg.Providers.Ollama.Host),
			})
		}
	}
	return checks
}

func configCheck(loadErr error) doctorCheck {
	if loadErr != nil {
		return doctorCheck{Name: "config", Detail: loadErr.Error()}
	}
	return doctorCheck{Name: "config", OK: true, Detail: config.GetConfigPath()}
}

func firstOutputLine(out []byte) string {
	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	return strings.TrimSpace(line)
}
