package agent

import (
	"bytes"
	"embed"
	"fmt"
	"text/template"
)

type Role string

const (
	RoleSpecification Role = "specification"
	RoleGeneration    Role = "generation"
	RoleCompliance    Role = "compliance"
	RoleTesting       Role = "testing"
)

// Definition fixes one phase agent's contract: its sampling temperature, the
// tools it may call, and whether the final message must be a JSON object.
type Definition struct {
	Role         Role
	Temperature  float64
	AllowedTools []string
	ForceJSON    bool
}

// Lower temperatures down the pipeline: planning tolerates variety, auditing
// and testing do not.
var definitions = map[Role]Definition{
	RoleSpecification: {
		Role:         RoleSpecification,
		Temperature:  0.3,
		AllowedTools: []string{"lookup_guidelines"},
		ForceJSON:    true,
	},
	RoleGeneration: {
		Role:         RoleGeneration,
		Temperature:  0.2,
		AllowedTools: []string{"write_file", "read_file", "list_files", "delete_file", "ensure_dir"},
		ForceJSON:    true,
	},
	RoleCompliance: {
		Role:         RoleCompliance,
		Temperature:  0.1,
		AllowedTools: []string{"read_file", "list_files", "check_php_syntax", "scan_dangerous_code", "lookup_guidelines", "run_plugin_check"},
		ForceJSON:    true,
	},
	RoleTesting: {
		Role:         RoleTesting,
		Temperature:  0.1,
		AllowedTools: []string{"compose_up", "compose_down", "activate_plugin", "list_plugins", "playground_test", "run_phpunit", "generate_phpunit_config", "check_php_syntax"},
		ForceJSON:    true,
	},
}

func DefinitionFor(role Role) (Definition, error) {
	def, ok := definitions[role]
	if !ok {
		return Definition{}, fmt.Errorf("no agent definition for role %q", role)
	}
	return def, nil
}

func Roles() []Role {
	return []Role{RoleSpecification, RoleGeneration, RoleCompliance, RoleTesting}
}

//go:embed prompts/*.tmpl
var promptFS embed.FS

var promptTemplates = template.Must(template.ParseFS(promptFS, "prompts/*.tmpl"))

// SpecificationData feeds specification.tmpl. The user's request arrives as
// the user message, not in the instructions.
type SpecificationData struct{}

// GenerationData feeds generation.tmpl.
type GenerationData struct {
	SpecJSON string
	Slug     string
}

// ComplianceData feeds compliance.tmpl. RunPluginCheck folds the official
// checker into the audit when the run asks for it.
type ComplianceData struct {
	SpecJSON       string
	Slug           string
	RunPluginCheck bool
}

// TestingData feeds testing.tmpl.
type TestingData struct {
	Slug          string
	RunPlayground bool
	RunPHPUnit    bool
}

// Instructions renders the role's embedded instruction template.
func (d Definition) Instructions(data any) (string, error) {
	var buf bytes.Buffer
	if err := promptTemplates.ExecuteTemplate(&buf, string(d.Role)+".tmpl", data); err != nil {
		return "", fmt.Errorf("render %s instructions: %w", d.Role, err)
	}
	return buf.String(), nil
}

// StrictFormatReminder is appended to the instructions when a retry follows
// a malformed final message.
const StrictFormatReminder = "REMINDER: your previous answer did not contain the required JSON object. " +
	"Respond with exactly one JSON object matching the schema above. No prose, no code fences, no trailing text."
