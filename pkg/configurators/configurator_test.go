package configurators

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stackforge/stackforge/pkg/config"
	"github.com/stackforge/stackforge/pkg/osmap"
	"github.com/stackforge/stackforge/pkg/transports/ssh"
)

// scriptRunner records executions and uploads; selected script substrings
// can be made to fail.
type scriptRunner struct {
	commands []string
	uploads  map[string][]byte

	failContaining string
}

func newScriptRunner() *scriptRunner {
	return &scriptRunner{uploads: make(map[string][]byte)}
}

func (r *scriptRunner) Execute(ctx context.Context, cmd ssh.Command) (*ssh.CommandResult, error) {
	r.commands = append(r.commands, cmd.Body)
	if r.failContaining != "" && strings.Contains(cmd.Body, r.failContaining) {
		return &ssh.CommandResult{Success: false, ExitCode: 1, Stderr: "scripted failure"}, nil
	}
	return &ssh.CommandResult{Success: true}, nil
}

func (r *scriptRunner) UploadBytes(ctx context.Context, data []byte, remotePath string, mode uint32) error {
	r.uploads[remotePath] = data
	return nil
}

func testDeps(runner Runner) Deps {
	return Deps{
		Runner: runner,
		Family: osmap.FamilyDebian,
		App: config.AppConfig{
			Domain:  "app.example.com",
			WebRoot: "/var/www/app.example.com",
			Database: config.DatabaseConfig{
				Name:     "appdb",
				User:     "appuser",
				Password: "s3cret",
			},
			Cache:     config.CacheConfig{MaxMemoryMB: 256, EvictionPolicy: "allkeys-lru"},
			OpenPorts: []int{80, 443},
		},
	}
}

func allInstalled() map[string]bool {
	return map[string]bool{
		osmap.CapSystemTooling:    true,
		osmap.CapWebServer:        true,
		osmap.CapDataStore:        true,
		osmap.CapRuntime:          true,
		osmap.CapCache:            true,
		osmap.CapContainerRuntime: true,
		osmap.CapFirewall:         true,
	}
}

func TestBuildPipelineFiltersByInstalled(t *testing.T) {
	deps := testDeps(newScriptRunner())

	tests := []struct {
		name      string
		installed map[string]bool
		want      []string
	}{
		{
			name:      "everything installed",
			installed: allInstalled(),
			want: []string{
				"web-vhost", "runtime-tuning", "database-bootstrap",
				"cache-tuning", "container-composition", "firewall-rules",
				"service-restarts",
			},
		},
		{
			name: "web only",
			installed: map[string]bool{
				osmap.CapWebServer: true,
			},
			want: []string{"web-vhost", "service-restarts"},
		},
		{
			name:      "nothing installed",
			installed: map[string]bool{},
			want:      nil,
		},
		{
			name: "database without web",
			installed: map[string]bool{
				osmap.CapDataStore: true,
			},
			want: []string{"database-bootstrap"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			units := BuildPipeline(deps, tt.installed)

			var names []string
			for _, u := range units {
				names = append(names, u.Name())
			}

			if len(names) != len(tt.want) {
				t.Fatalf("expected units %v, got %v", tt.want, names)
			}
			for i := range tt.want {
				if names[i] != tt.want[i] {
					t.Errorf("unit %d: expected %s, got %s", i, tt.want[i], names[i])
				}
			}
		})
	}
}

func TestBuildPipelinePure(t *testing.T) {
	deps := testDeps(newScriptRunner())
	installed := allInstalled()

	first := BuildPipeline(deps, installed)
	second := BuildPipeline(deps, installed)

	if len(first) != len(second) {
		t.Fatal("pipeline construction must be deterministic")
	}
	for i := range first {
		if first[i].Name() != second[i].Name() {
			t.Errorf("unit %d differs between builds", i)
		}
	}
}

type stubUnit struct {
	name string
	err  error
	runs *[]string
}

func (s *stubUnit) Name() string     { return s.name }
func (s *stubUnit) Requires() string { return osmap.CapWebServer }
func (s *stubUnit) Configure(ctx context.Context) error {
	*s.runs = append(*s.runs, s.name)
	return s.err
}

func TestRunPipelineContinuesPastFailures(t *testing.T) {
	var runs []string
	units := []Unit{
		&stubUnit{name: "first", runs: &runs},
		&stubUnit{name: "second", err: errors.New("boom"), runs: &runs},
		&stubUnit{name: "third", runs: &runs},
	}

	summary := RunPipeline(context.Background(), units)

	if len(runs) != 3 {
		t.Fatalf("expected all units to run, got %v", runs)
	}
	if len(summary.Succeeded) != 2 {
		t.Errorf("expected 2 succeeded, got %d", len(summary.Succeeded))
	}
	if len(summary.Failed) != 1 {
		t.Fatalf("expected 1 failed, got %d", len(summary.Failed))
	}
	if summary.Failed[0].Unit != "second" {
		t.Errorf("expected 'second' to fail, got %s", summary.Failed[0].Unit)
	}
	if !strings.Contains(summary.Failed[0].Reason, "boom") {
		t.Errorf("expected failure reason, got %q", summary.Failed[0].Reason)
	}
}

func TestRunPipelineAbortedContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var runs []string
	units := []Unit{&stubUnit{name: "never", runs: &runs}}

	summary := RunPipeline(ctx, units)

	if len(runs) != 0 {
		t.Error("no unit may run after the context is cancelled")
	}
	if len(summary.Failed) != 1 {
		t.Fatalf("expected the unit recorded as failed, got %d", len(summary.Failed))
	}
	if !strings.Contains(summary.Failed[0].Reason, "aborted") {
		t.Errorf("unexpected reason: %q", summary.Failed[0].Reason)
	}
}

func TestWebServerUnit(t *testing.T) {
	runner := newScriptRunner()
	unit := newWebServerUnit(testDeps(runner))

	if err := unit.Configure(context.Background()); err != nil {
		t.Fatalf("configure failed: %v", err)
	}

	vhost, ok := runner.uploads["/etc/apache2/sites-available/app.example.com.conf"]
	if !ok {
		t.Fatalf("expected a vhost upload, got %v", runner.uploads)
	}
	for _, want := range []string{
		"ServerName app.example.com",
		"DocumentRoot /var/www/app.example.com",
		"X-Frame-Options",
		"X-Content-Type-Options",
		"Referrer-Policy",
	} {
		if !strings.Contains(string(vhost), want) {
			t.Errorf("vhost missing %q", want)
		}
	}

	if len(runner.commands) != 1 {
		t.Fatalf("expected one activation script, got %d", len(runner.commands))
	}
	script := runner.commands[0]
	for _, want := range []string{"mkdir -p", "chown -R www-data:www-data", "a2ensite app.example.com.conf"} {
		if !strings.Contains(script, want) {
			t.Errorf("activation script missing %q: %s", want, script)
		}
	}
}

func TestWebServerUnitRequiresDomain(t *testing.T) {
	runner := newScriptRunner()
	deps := testDeps(runner)
	deps.App.Domain = ""

	unit := newWebServerUnit(deps)
	if err := unit.Configure(context.Background()); err == nil {
		t.Fatal("expected an error without a domain")
	}
}

func TestRuntimeOverrides(t *testing.T) {
	tests := []struct {
		name    string
		maxExec int
		upload  int
		workers int
		want    []string
	}{
		{
			name: "defaults", maxExec: 0, upload: 0, workers: 0,
			want: []string{"max_execution_time = 120", "upload_max_filesize = 64M", "pm.max_children = 8"},
		},
		{
			name: "explicit", maxExec: 300, upload: 128, workers: 16,
			want: []string{"max_execution_time = 300", "upload_max_filesize = 128M", "post_max_size = 136M", "pm.max_children = 16"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := renderRuntimeOverrides(tt.maxExec, tt.upload, tt.workers)
			for _, want := range tt.want {
				if !strings.Contains(got, want) {
					t.Errorf("overrides missing %q:\n%s", want, got)
				}
			}
		})
	}
}

func TestDatabaseBootstrapScript(t *testing.T) {
	script := renderDatabaseBootstrap("appdb", "appuser", "pa'ss\\word")

	for _, want := range []string{
		"CREATE DATABASE IF NOT EXISTS `appdb`",
		"CREATE USER IF NOT EXISTS 'appuser'@'localhost'",
		"GRANT ALL PRIVILEGES ON `appdb`.*",
		"FLUSH PRIVILEGES;",
		`pa\'ss\\word`,
	} {
		if !strings.Contains(script, want) {
			t.Errorf("bootstrap script missing %q:\n%s", want, script)
		}
	}
}

func TestDatabaseBootstrapWithoutUser(t *testing.T) {
	script := renderDatabaseBootstrap("appdb", "", "")

	if strings.Contains(script, "CREATE USER") {
		t.Error("no user statements expected without a user")
	}
	if !strings.Contains(script, "CREATE DATABASE IF NOT EXISTS `appdb`") {
		t.Error("expected the schema statement")
	}
}

func TestDatabaseUnitWiresCredentials(t *testing.T) {
	runner := newScriptRunner()
	unit := newDatabaseUnit(testDeps(runner))

	if err := unit.Configure(context.Background()); err != nil {
		t.Fatalf("configure failed: %v", err)
	}

	env, ok := runner.uploads["/var/www/app.example.com/.env"]
	if !ok {
		t.Fatalf("expected an environment file upload, got %v", runner.uploads)
	}
	for _, want := range []string{"DB_NAME=appdb", "DB_USER=appuser", "DB_PASSWORD=s3cret"} {
		if !strings.Contains(string(env), want) {
			t.Errorf("environment file missing %q", want)
		}
	}

	var sawChown bool
	for _, cmd := range runner.commands {
		if strings.Contains(cmd, "chown www-data:www-data /var/www/app.example.com/.env") {
			sawChown = true
		}
	}
	if !sawChown {
		t.Error("expected the environment file to be chowned to the web principal")
	}
}

func TestCacheUnit(t *testing.T) {
	runner := newScriptRunner()
	unit := newCacheUnit(testDeps(runner), true)

	if err := unit.Configure(context.Background()); err != nil {
		t.Fatalf("configure failed: %v", err)
	}

	if len(runner.commands) != 1 {
		t.Fatalf("expected one tuning script, got %d", len(runner.commands))
	}
	script := runner.commands[0]
	for _, want := range []string{"maxmemory 256mb", "maxmemory-policy allkeys-lru", "config rewrite"} {
		if !strings.Contains(script, want) {
			t.Errorf("cache script missing %q: %s", want, script)
		}
	}
}

func TestCacheUnitDisabled(t *testing.T) {
	runner := newScriptRunner()
	unit := newCacheUnit(testDeps(runner), false)

	if err := unit.Configure(context.Background()); err != nil {
		t.Fatalf("configure failed: %v", err)
	}
	if len(runner.commands) != 0 {
		t.Error("a disabled cache unit must not touch the target")
	}
}

func TestFirewallUnit(t *testing.T) {
	runner := newScriptRunner()
	unit := newFirewallUnit(testDeps(runner))

	if err := unit.Configure(context.Background()); err != nil {
		t.Fatalf("configure failed: %v", err)
	}

	if len(runner.commands) != 1 {
		t.Fatalf("expected one firewall script, got %d", len(runner.commands))
	}
	script := runner.commands[0]

	// SSH must be allowed even though it is absent from the port list, and
	// it must be allowed before the firewall is enabled.
	sshIdx := strings.Index(script, "ufw allow 22/tcp")
	enableIdx := strings.Index(script, "ufw --force enable")
	if sshIdx < 0 {
		t.Fatalf("SSH port not allowed: %s", script)
	}
	if enableIdx < 0 {
		t.Fatalf("firewall never enabled: %s", script)
	}
	if sshIdx > enableIdx {
		t.Error("SSH must be allowed before the firewall is enabled")
	}
	for _, want := range []string{"ufw allow 80/tcp", "ufw allow 443/tcp"} {
		if !strings.Contains(script, want) {
			t.Errorf("firewall script missing %q", want)
		}
	}
}

func TestRestartUnitOrder(t *testing.T) {
	runner := newScriptRunner()
	unit := newRestartUnit(testDeps(runner), allInstalled())

	if err := unit.Configure(context.Background()); err != nil {
		t.Fatalf("configure failed: %v", err)
	}

	if len(runner.commands) != 1 {
		t.Fatalf("expected one restart script, got %d", len(runner.commands))
	}
	script := runner.commands[0]

	// Dependencies restart before the web front end.
	order := []string{"mariadb", "redis-server", "php-fpm", "apache2"}
	last := -1
	for _, service := range order {
		idx := strings.Index(script, fmt.Sprintf("systemctl restart %s", service))
		if idx < 0 {
			t.Fatalf("restart script missing %s: %s", service, script)
		}
		if idx < last {
			t.Errorf("%s restarted out of order", service)
		}
		last = idx
	}
}

func TestUnitFailureSurfacesStderr(t *testing.T) {
	runner := newScriptRunner()
	runner.failContaining = "redis-cli"

	unit := newCacheUnit(testDeps(runner), true)
	err := unit.Configure(context.Background())
	if err == nil {
		t.Fatal("expected the scripted failure to surface")
	}
	if !strings.Contains(err.Error(), "scripted failure") {
		t.Errorf("expected stderr in the error, got %v", err)
	}
}
