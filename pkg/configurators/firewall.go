package configurators

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/stackforge/stackforge/pkg/osmap"
	"github.com/stackforge/stackforge/pkg/transports/ssh"
)

// firewallUnit enables the firewall and opens the configured ports. The SSH
// port is always allowed before the firewall comes up so a rule mistake
// cannot sever the control connection.
type firewallUnit struct {
	deps Deps
}

func newFirewallUnit(deps Deps) *firewallUnit {
	return &firewallUnit{deps: deps}
}

func (u *firewallUnit) Name() string     { return "firewall-rules" }
func (u *firewallUnit) Requires() string { return osmap.CapFirewall }

func (u *firewallUnit) Configure(ctx context.Context) error {
	sshAllowed := false
	for _, port := range u.deps.App.OpenPorts {
		if port == 22 {
			sshAllowed = true
			break
		}
	}

	ports := u.deps.App.OpenPorts
	if !sshAllowed {
		ports = append([]int{22}, ports...)
	}

	var b strings.Builder
	b.WriteString(osmap.FirewallAllowCommand(u.deps.Family, ports))
	b.WriteByte('\n')
	b.WriteString(osmap.FirewallEnableCommand(u.deps.Family))
	b.WriteByte('\n')

	result, err := u.deps.Runner.Execute(ctx, ssh.Command{
		Body:    b.String(),
		Timeout: 2 * time.Minute,
	})
	if err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("firewall configuration exited %d: %s", result.ExitCode, result.Stderr)
	}

	return nil
}
