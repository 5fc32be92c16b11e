package wpenv

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Stack describes the disposable WordPress environment the testing phase
// drives. The compose file it renders binds the generated plugins directory
// straight into wp-content/plugins so activation sees fresh code without
// copies.
type Stack struct {
	// Dir is where docker-compose.yml lives, typically .wpforge/.
	Dir string
	// ProjectName namespaces containers and volumes per working directory.
	ProjectName string
	// PluginsDir is the host directory with generated plugins.
	PluginsDir string
	// Port is the host port mapped to the WordPress container.
	Port int
}

const (
	wordpressImage = "wordpress:6.7"
	databaseImage  = "mysql:8.0"
	wpcliImage     = "wordpress:cli-2.11"
)

func New(dir, pluginsDir string, port int) *Stack {
	if port <= 0 {
		port = 8080
	}
	return &Stack{
		Dir:         dir,
		ProjectName: "wpforge",
		PluginsDir:  pluginsDir,
		Port:        port,
	}
}

func (s *Stack) ComposePath() string {
	return filepath.Join(s.Dir, "docker-compose.yml")
}

func (s *Stack) SiteURL() string {
	return fmt.Sprintf("http://localhost:%d", s.Port)
}

type composeService struct {
	Image       string            `yaml:"image"`
	Restart     string            `yaml:"restart,omitempty"`
	Ports       []string          `yaml:"ports,omitempty"`
	Environment map[string]string `yaml:"environment,omitempty"`
	Volumes     []string          `yaml:"volumes,omitempty"`
	DependsOn   []string          `yaml:"depends_on,omitempty"`
}

type composeFile struct {
	Services map[string]composeService `yaml:"services"`
	Volumes  map[string]interface{}    `yaml:"volumes"`
}

// Render produces the docker-compose.yml contents.
func (s *Stack) Render() ([]byte, error) {
	pluginsAbs, err := filepath.Abs(s.PluginsDir)
	if err != nil {
		return nil, fmt.Errorf("resolve plugins dir: %w", err)
	}

	dbEnv := map[string]string{
		"MYSQL_DATABASE":      "wordpress",
		"MYSQL_USER":          "wordpress",
		"MYSQL_PASSWORD":      "wordpress",
		"MYSQL_ROOT_PASSWORD": "wordpress-root",
	}
	wpEnv := map[string]string{
		"WORDPRESS_DB_HOST":     "db",
		"WORDPRESS_DB_USER":     "wordpress",
		"WORDPRESS_DB_PASSWORD": "wordpress",
		"WORDPRESS_DB_NAME":     "wordpress",
	}
	// Generated plugins replace the stock plugins directory wholesale, so
	// wp-cli can activate by bare slug.
	wpVolumes := []string{
		"wp_data:/var/www/html",
		pluginsAbs + ":/var/www/html/wp-content/plugins",
	}

	file := composeFile{
		Services: map[string]composeService{
			"db": {
				Image:       databaseImage,
				Restart:     "unless-stopped",
				Environment: dbEnv,
				Volumes:     []string{"db_data:/var/lib/mysql"},
			},
			"wordpress": {
				Image:       wordpressImage,
				Restart:     "unless-stopped",
				Ports:       []string{fmt.Sprintf("%d:80", s.Port)},
				Environment: wpEnv,
				Volumes:     wpVolumes,
				DependsOn:   []string{"db"},
			},
			"cli": {
				Image:       wpcliImage,
				Environment: wpEnv,
				Volumes:     wpVolumes,
				DependsOn:   []string{"wordpress", "db"},
			},
		},
		Volumes: map[string]interface{}{
			"db_data": nil,
			"wp_data": nil,
		},
	}
	return yaml.Marshal(file)
}

// Write renders the compose file to disk, creating Dir when needed.
func (s *Stack) Write() error {
	data, err := s.Render()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("create stack dir: %w", err)
	}
	return os.WriteFile(s.ComposePath(), data, 0o644)
}

// ComposeArgs builds docker CLI arguments scoped to this stack's file and
// project.
func (s *Stack) ComposeArgs(extra ...string) []string {
	args := []string{"compose", "-f", s.ComposePath(), "-p", s.ProjectName}
	return append(args, extra...)
}

// WPCLIArgs builds docker CLI arguments that run a wp-cli command inside the
// sidecar container.
func (s *Stack) WPCLIArgs(wpArgs ...string) []string {
	args := s.ComposeArgs("run", "--rm", "cli", "wp")
	return append(args, wpArgs...)
}

// InstallArgs returns the wp-cli arguments that finish a fresh WordPress
// install so plugin activation has a working site. Safe to run repeatedly.
func (s *Stack) InstallArgs() []string {
	return s.WPCLIArgs("core", "install",
		"--url="+s.SiteURL(),
		"--title=WPForge Test Site",
		"--admin_user=admin",
		"--admin_password=admin",
		"--admin_email=admin@example.test",
		"--skip-email",
	)
}

// WaitReady polls the site until WordPress answers HTTP or the context ends.
// Any status below 500 counts, a fresh install redirects to the setup page.
func (s *Stack) WaitReady(ctx context.Context) error {
	client := &http.Client{
		Timeout: 5 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, "GET", s.SiteURL(), nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode < 500 {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("wordpress at %s not ready: %w", s.SiteURL(), ctx.Err())
		case <-ticker.C:
		}
	}
}
