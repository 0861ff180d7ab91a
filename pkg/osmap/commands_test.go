package osmap

import (
	"strings"
	"testing"
)

func TestRefreshIndexCommand(t *testing.T) {
	if got := RefreshIndexCommand(FamilyDebian); !strings.Contains(got, "apt-get update") {
		t.Errorf("unexpected debian refresh command: %q", got)
	}
	if got := RefreshIndexCommand(FamilyRedHat); !strings.Contains(got, "dnf") {
		t.Errorf("unexpected redhat refresh command: %q", got)
	}
	if got := RefreshIndexCommand(FamilyUnknown); got != "" {
		t.Errorf("expected empty command for unknown family, got %q", got)
	}
}

func TestInstallCommand(t *testing.T) {
	tests := []struct {
		name    string
		family  Family
		pkg     string
		version string
		want    string
	}{
		{"debian plain", FamilyDebian, "apache2", "", "DEBIAN_FRONTEND=noninteractive apt-get install -y apache2"},
		{"debian pinned", FamilyDebian, "apache2", "2.4", "DEBIAN_FRONTEND=noninteractive apt-get install -y apache2=2.4*"},
		{"redhat plain", FamilyRedHat, "httpd", "", "dnf install -y httpd"},
		{"redhat pinned", FamilyRedHat, "httpd", "2.4", "dnf install -y httpd-2.4*"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := InstallCommand(tt.family, tt.pkg, tt.version); got != tt.want {
				t.Errorf("InstallCommand() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestProbeCommand(t *testing.T) {
	if got := ProbeCommand(FamilyDebian, "apache2"); got != "dpkg -s apache2 >/dev/null 2>&1" {
		t.Errorf("unexpected debian probe: %q", got)
	}
	if got := ProbeCommand(FamilyRedHat, "httpd"); got != "rpm -q httpd >/dev/null 2>&1" {
		t.Errorf("unexpected redhat probe: %q", got)
	}
}

func TestServiceCommands(t *testing.T) {
	if got := ServiceEnableCommand("apache2"); got != "systemctl enable --now apache2" {
		t.Errorf("unexpected enable command: %q", got)
	}
	if got := ServiceRestartCommand("mariadb"); got != "systemctl restart mariadb" {
		t.Errorf("unexpected restart command: %q", got)
	}
	if got := ServiceReloadCommand("apache2"); !strings.Contains(got, "reload") || !strings.Contains(got, "restart") {
		t.Errorf("reload must fall back to restart: %q", got)
	}
	if got := ServiceActiveCommand("redis"); got != "systemctl is-active --quiet redis" {
		t.Errorf("unexpected is-active command: %q", got)
	}
}

func TestFirewallCommands(t *testing.T) {
	debian := FirewallAllowCommand(FamilyDebian, []int{22, 80, 443})
	for _, want := range []string{"ufw allow 22/tcp", "ufw allow 80/tcp", "ufw allow 443/tcp"} {
		if !strings.Contains(debian, want) {
			t.Errorf("debian allow command missing %q: %q", want, debian)
		}
	}

	redhat := FirewallAllowCommand(FamilyRedHat, []int{22, 80})
	for _, want := range []string{"--add-port=22/tcp", "--add-port=80/tcp", "firewall-cmd --reload"} {
		if !strings.Contains(redhat, want) {
			t.Errorf("redhat allow command missing %q: %q", want, redhat)
		}
	}

	if got := FirewallEnableCommand(FamilyDebian); got != "ufw --force enable" {
		t.Errorf("unexpected debian enable command: %q", got)
	}
	if got := FirewallEnableCommand(FamilyRedHat); !strings.Contains(got, "firewalld") {
		t.Errorf("unexpected redhat enable command: %q", got)
	}
}
