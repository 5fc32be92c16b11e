package tools

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
)

const phpunitConfigTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<phpunit bootstrap="tests/bootstrap.php"
         colors="false"
         failOnWarning="false">
    <testsuites>
        <testsuite name="%s">
            <directory suffix="Test.php">tests</directory>
        </testsuite>
    </testsuites>
</phpunit>
`

const phpunitBootstrapTemplate = `<?php
// Minimal bootstrap for unit tests that exercise plugin code without a
// WordPress install. Common WordPress functions are stubbed as no-ops.
if ( ! function_exists( 'add_action' ) ) {
	function add_action( $hook, $callback, $priority = 10, $args = 1 ) {}
}
if ( ! function_exists( 'add_filter' ) ) {
	function add_filter( $hook, $callback, $priority = 10, $args = 1 ) {}
}
if ( ! function_exists( 'register_activation_hook' ) ) {
	function register_activation_hook( $file, $callback ) {}
}
if ( ! function_exists( 'register_deactivation_hook' ) ) {
	function register_deactivation_hook( $file, $callback ) {}
}
if ( ! function_exists( 'esc_html' ) ) {
	function esc_html( $text ) {
		return htmlspecialchars( (string) $text, ENT_QUOTES );
	}
}
if ( ! function_exists( 'esc_attr' ) ) {
	function esc_attr( $text ) {
		return htmlspecialchars( (string) $text, ENT_QUOTES );
	}
}
if ( ! function_exists( '__' ) ) {
	function __( $text, $domain = 'default' ) {
		return $text;
	}
}
if ( ! defined( 'ABSPATH' ) ) {
	define( 'ABSPATH', sys_get_temp_dir() . '/' );
}
`

func newGeneratePHPUnitConfigTool(env Env) Tool {
	return Tool{
		Name:        "generate_phpunit_config",
		Description: "Write phpunit.xml and a tests/bootstrap.php with WordPress function stubs into the plugin.",
		Schema: schemaObject([]string{"slug"}, map[string]string{
			"slug": "Plugin slug used as the test suite name.",
		}),
		Execute: func(ctx context.Context, params map[string]any) (Result, error) {
			if err := ctx.Err(); err != nil {
				return Result{}, err
			}
			slug, err := requiredStringParam(params, "slug")
			if err != nil {
				return Result{}, err
			}

			configPath, _, err := ResolvePath(env.Root, "phpunit.xml")
			if err != nil {
				return Result{}, err
			}
			bootstrapPath, _, err := ResolvePath(env.Root, "tests/bootstrap.php")
			if err != nil {
				return Result{}, err
			}

			env.emit(EventWriting, "generate_phpunit_config", "writing phpunit.xml", nil)

			if err := os.MkdirAll(filepath.Dir(bootstrapPath), 0o755); err != nil {
				return Result{}, err
			}
			if err := os.WriteFile(configPath, []byte(fmt.Sprintf(phpunitConfigTemplate, slug)), 0o644); err != nil {
				return Result{}, err
			}
			if err := os.WriteFile(bootstrapPath, []byte(phpunitBootstrapTemplate), 0o644); err != nil {
				return Result{}, err
			}
			return ok("wrote phpunit.xml and tests/bootstrap.php", nil), nil
		},
	}
}

var phpunitSummaryRegex = regexp.MustCompile(`(?m)^(OK \(\d+ tests?.*\)|FAILURES!.*|ERRORS!.*|No tests executed!.*)$`)

func newRunPHPUnitTool(env Env) Tool {
	return Tool{
		Name:        "run_phpunit",
		Description: "Run the plugin's PHPUnit suite and report the summary.",
		Execute: func(ctx context.Context, params map[string]any) (Result, error) {
			if err := ctx.Err(); err != nil {
				return Result{}, err
			}

			if _, err := os.Stat(filepath.Join(env.Root, "phpunit.xml")); err != nil {
				return failed("phpunit.xml is missing, generate it first", nil), nil
			}

			bin := phpunitBinary(env.Root)
			if bin == "" {
				return unavailable("phpunit is not installed, unit tests skipped"), nil
			}

			env.emit(EventRunning, "run_phpunit", "running phpunit", nil)

			res, err := runProcess(ctx, "run_phpunit", env.Root, env.Timeouts.PHPUnit(), bin, "--no-coverage")
			if err != nil {
				if IsKind(err, KindUnavailable) {
					return unavailable("phpunit is not installed, unit tests skipped"), nil
				}
				return Result{}, err
			}

			summary := phpunitSummary(res.Combined())
			if res.ExitCode != 0 {
				return failed(summary, map[string]any{"exit_code": res.ExitCode}), nil
			}
			return ok(summary, nil), nil
		},
	}
}

// phpunitBinary prefers a project-local composer install over the global
// binary.
func phpunitBinary(root string) string {
	local := filepath.Join(root, "vendor", "bin", "phpunit")
	if info, err := os.Stat(local); err == nil && !info.IsDir() {
		return local
	}
	if path, err := exec.LookPath("phpunit"); err == nil {
		return path
	}
	return ""
}

func phpunitSummary(output string) string {
	if m := phpunitSummaryRegex.FindString(output); m != "" {
		return m
	}
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) > 6 {
		lines = lines[len(lines)-6:]
	}
	return strings.Join(lines, "\n")
}
