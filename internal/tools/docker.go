package tools

import (
	"context"
	"fmt"
	"strings"
)

func newComposeUpTool(env Env) Tool {
	return Tool{
		Name:        "compose_up",
		Description: "Start the disposable WordPress environment (WordPress, MySQL, wp-cli) and wait until it answers HTTP.",
		Execute: func(ctx context.Context, params map[string]any) (Result, error) {
			if err := ctx.Err(); err != nil {
				return Result{}, err
			}
			if env.Stack == nil {
				return unavailable("no WordPress environment configured"), nil
			}
			if err := env.Stack.Write(); err != nil {
				return Result{}, err
			}

			env.emit(EventRunning, "compose_up", "starting wordpress environment", nil)

			res, err := runProcess(ctx, "compose_up", "", env.Timeouts.Compose(), "docker", env.Stack.ComposeArgs("up", "-d")...)
			if err != nil {
				if IsKind(err, KindUnavailable) {
					return unavailable("docker is not installed, environment tests will be skipped"), nil
				}
				return Result{}, err
			}
			if res.ExitCode != 0 {
				return Result{}, newToolError(KindExternalFailure, "compose_up", "docker compose up failed: "+res.Combined(), nil)
			}

			waitCtx, cancel := context.WithTimeout(ctx, env.Timeouts.Compose())
			defer cancel()
			if err := env.Stack.WaitReady(waitCtx); err != nil {
				return Result{}, newToolError(KindExternalFailure, "compose_up", "wordpress did not become ready", err)
			}
			return ok("wordpress is up at "+env.Stack.SiteURL(), map[string]any{"url": env.Stack.SiteURL()}), nil
		},
	}
}

func newComposeDownTool(env Env) Tool {
	return Tool{
		Name:        "compose_down",
		Description: "Stop the disposable WordPress environment and remove its volumes.",
		Execute: func(ctx context.Context, params map[string]any) (Result, error) {
			if env.Stack == nil {
				return unavailable("no WordPress environment configured"), nil
			}

			env.emit(EventRunning, "compose_down", "stopping wordpress environment", nil)

			res, err := runProcess(ctx, "compose_down", "", env.Timeouts.Compose(), "docker", env.Stack.ComposeArgs("down", "-v", "--remove-orphans")...)
			if err != nil {
				if IsKind(err, KindUnavailable) {
					return unavailable("docker is not installed"), nil
				}
				return Result{}, err
			}
			if res.ExitCode != 0 {
				return Result{}, newToolError(KindExternalFailure, "compose_down", "docker compose down failed: "+res.Combined(), nil)
			}
			return ok("environment stopped", nil), nil
		},
	}
}

func newActivatePluginTool(env Env) Tool {
	return Tool{
		Name:        "activate_plugin",
		Description: "Finish the WordPress install if needed and activate a plugin by slug via wp-cli.",
		Schema: schemaObject([]string{"slug"}, map[string]string{
			"slug": "Plugin directory slug to activate.",
		}),
		Execute: func(ctx context.Context, params map[string]any) (Result, error) {
			if err := ctx.Err(); err != nil {
				return Result{}, err
			}
			slug, err := requiredStringParam(params, "slug")
			if err != nil {
				return Result{}, err
			}
			if env.Stack == nil {
				return unavailable("no WordPress environment configured"), nil
			}

			env.emit(EventRunning, "activate_plugin", "activating "+slug, map[string]any{"slug": slug})

			// core install exits zero when already installed.
			res, err := runProcess(ctx, "activate_plugin", "", env.Timeouts.Activate(), "docker", env.Stack.InstallArgs()...)
			if err != nil {
				if IsKind(err, KindUnavailable) {
					return unavailable("docker is not installed"), nil
				}
				return Result{}, err
			}
			if res.ExitCode != 0 && !strings.Contains(res.Combined(), "already installed") {
				return Result{}, newToolError(KindExternalFailure, "activate_plugin", "wordpress install failed: "+res.Combined(), nil)
			}

			res, err = runProcess(ctx, "activate_plugin", "", env.Timeouts.Activate(), "docker", env.Stack.WPCLIArgs("plugin", "activate", slug)...)
			if err != nil {
				return Result{}, err
			}
			if res.ExitCode != 0 {
				// Activation failure is a verdict about the plugin, not a
				// broken tool.
				return failed(fmt.Sprintf("activation of %s failed:\n%s", slug, res.Combined()), map[string]any{"slug": slug}), nil
			}
			return ok(fmt.Sprintf("plugin %s activated", slug), map[string]any{"slug": slug}), nil
		},
	}
}

func newListPluginsTool(env Env) Tool {
	return Tool{
		Name:        "list_plugins",
		Description: "List plugins known to the WordPress instance with their activation status.",
		Execute: func(ctx context.Context, params map[string]any) (Result, error) {
			if err := ctx.Err(); err != nil {
				return Result{}, err
			}
			if env.Stack == nil {
				return unavailable("no WordPress environment configured"), nil
			}

			res, err := runProcess(ctx, "list_plugins", "", env.Timeouts.Activate(), "docker", env.Stack.WPCLIArgs("plugin", "list", "--format=json")...)
			if err != nil {
				if IsKind(err, KindUnavailable) {
					return unavailable("docker is not installed"), nil
				}
				return Result{}, err
			}
			if res.ExitCode != 0 {
				return Result{}, newToolError(KindExternalFailure, "list_plugins", "wp plugin list failed: "+res.Combined(), nil)
			}
			return ok(res.Combined(), nil), nil
		},
	}
}
