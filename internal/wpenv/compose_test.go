package wpenv

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestRenderProducesValidCompose(t *testing.T) {
	stack := New(t.TempDir(), "plugins", 8099)

	data, err := stack.Render()
	require.NoError(t, err)

	var decoded struct {
		Services map[string]struct {
			Image     string   `yaml:"image"`
			Ports     []string `yaml:"ports"`
			Volumes   []string `yaml:"volumes"`
			DependsOn []string `yaml:"depends_on"`
		} `yaml:"services"`
		Volumes map[string]interface{} `yaml:"volumes"`
	}
	require.NoError(t, yaml.Unmarshal(data, &decoded))

	require.Contains(t, decoded.Services, "wordpress")
	require.Contains(t, decoded.Services, "db")
	require.Contains(t, decoded.Services, "cli")

	wp := decoded.Services["wordpress"]
	assert.Equal(t, []string{"8099:80"}, wp.Ports)
	assert.Contains(t, wp.DependsOn, "db")

	pluginsAbs, err := filepath.Abs("plugins")
	require.NoError(t, err)
	found := false
	for _, v := range wp.Volumes {
		if v == pluginsAbs+":/var/www/html/wp-content/plugins" {
			found = true
		}
	}
	assert.True(t, found, "plugins bind mount missing from %v", wp.Volumes)

	assert.Contains(t, decoded.Volumes, "db_data")
	assert.Contains(t, decoded.Volumes, "wp_data")
}

func TestWriteCreatesComposeFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", ".wpforge")
	stack := New(dir, t.TempDir(), 0)

	require.NoError(t, stack.Write())

	data, err := os.ReadFile(stack.ComposePath())
	require.NoError(t, err)
	assert.Contains(t, string(data), "wordpress:")
	assert.Equal(t, "http://localhost:8080", stack.SiteURL())
}

func TestComposeAndWPCLIArgs(t *testing.T) {
	stack := New("/tmp/stack", "plugins", 8080)

	up := stack.ComposeArgs("up", "-d", "--wait")
	assert.Equal(t, []string{"compose", "-f", "/tmp/stack/docker-compose.yml", "-p", "wpforge", "up", "-d", "--wait"}, up)

	activate := stack.WPCLIArgs("plugin", "activate", "demo-widget")
	assert.Equal(t, "run", activate[5])
	assert.Equal(t, "--rm", activate[6])
	assert.Equal(t, "cli", activate[7])
	assert.Equal(t, []string{"wp", "plugin", "activate", "demo-widget"}, activate[8:])
}

func TestInstallArgsAreIdempotentShape(t *testing.T) {
	stack := New("/tmp/stack", "plugins", 8081)
	args := stack.InstallArgs()
	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "core install")
	assert.Contains(t, joined, "--url=http://localhost:8081")
	assert.Contains(t, joined, "--skip-email")
}

func TestWaitReadyAcceptsRedirect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/wp-admin/install.php", http.StatusFound)
	}))
	defer srv.Close()

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	stack := New(t.TempDir(), "plugins", port)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, stack.WaitReady(ctx))
}

func TestWaitReadyTimesOutWhenDown(t *testing.T) {
	// Port 1 is never listening.
	stack := New(t.TempDir(), "plugins", 1)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	assert.Error(t, stack.WaitReady(ctx))
}
