package osmap

import (
	"fmt"
	"strings"
)

// Command builders are pure functions from typed values to script text. They
// never interpolate caller-controlled free text; anything user-supplied rides
// the transport's encoding path inside a command body, not inside the command
// line syntax itself.

// RefreshIndexCommand returns the package index refresh command for a family.
func RefreshIndexCommand(family Family) string {
	switch family {
	case FamilyDebian:
		return "DEBIAN_FRONTEND=noninteractive apt-get update -y"
	case FamilyRedHat:
		return "dnf -y makecache"
	}
	return ""
}

// InstallCommand returns the package install command for a family. The
// version hint, when present, is pinned using the family's pin syntax.
func InstallCommand(family Family, pkg string, versionHint string) string {
	switch family {
	case FamilyDebian:
		name := pkg
		if versionHint != "" {
			name = fmt.Sprintf("%s=%s*", pkg, versionHint)
		}
		return fmt.Sprintf("DEBIAN_FRONTEND=noninteractive apt-get install -y %s", name)
	case FamilyRedHat:
		name := pkg
		if versionHint != "" {
			name = fmt.Sprintf("%s-%s*", pkg, versionHint)
		}
		return fmt.Sprintf("dnf install -y %s", name)
	}
	return ""
}

// ProbeCommand returns a side-effect-free presence check for a package.
// The command exits zero when the package is installed.
func ProbeCommand(family Family, pkg string) string {
	switch family {
	case FamilyDebian:
		return fmt.Sprintf("dpkg -s %s >/dev/null 2>&1", pkg)
	case FamilyRedHat:
		return fmt.Sprintf("rpm -q %s >/dev/null 2>&1", pkg)
	}
	return ""
}

// ServiceEnableCommand enables and starts a systemd unit.
func ServiceEnableCommand(service string) string {
	return fmt.Sprintf("systemctl enable --now %s", service)
}

// ServiceRestartCommand restarts a systemd unit.
func ServiceRestartCommand(service string) string {
	return fmt.Sprintf("systemctl restart %s", service)
}

// ServiceReloadCommand reloads a systemd unit, falling back to restart for
// units without a reload action.
func ServiceReloadCommand(service string) string {
	return fmt.Sprintf("systemctl reload %s || systemctl restart %s", service, service)
}

// ServiceActiveCommand checks whether a systemd unit is active. Exit zero
// means active; the check mutates nothing.
func ServiceActiveCommand(service string) string {
	return fmt.Sprintf("systemctl is-active --quiet %s", service)
}

// FirewallAllowCommand opens TCP ports through the family's firewall tool.
func FirewallAllowCommand(family Family, ports []int) string {
	switch family {
	case FamilyDebian:
		var b strings.Builder
		for i, port := range ports {
			if i > 0 {
				b.WriteString(" && ")
			}
			fmt.Fprintf(&b, "ufw allow %d/tcp", port)
		}
		return b.String()
	case FamilyRedHat:
		var b strings.Builder
		for i, port := range ports {
			if i > 0 {
				b.WriteString(" && ")
			}
			fmt.Fprintf(&b, "firewall-cmd --permanent --add-port=%d/tcp", port)
		}
		b.WriteString(" && firewall-cmd --reload")
		return b.String()
	}
	return ""
}

// FirewallEnableCommand turns the family's firewall on.
func FirewallEnableCommand(family Family) string {
	switch family {
	case FamilyDebian:
		return "ufw --force enable"
	case FamilyRedHat:
		return "systemctl enable --now firewalld"
	}
	return ""
}
