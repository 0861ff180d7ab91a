package configurators

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/stackforge/stackforge/pkg/config"
	"github.com/stackforge/stackforge/pkg/osmap"
	"github.com/stackforge/stackforge/pkg/transports/ssh"
)

// webServerUnit configures the front-end virtual host and security headers.
type webServerUnit struct {
	deps Deps
}

func newWebServerUnit(deps Deps) *webServerUnit {
	return &webServerUnit{deps: deps}
}

func (u *webServerUnit) Name() string     { return "web-vhost" }
func (u *webServerUnit) Requires() string { return osmap.CapWebServer }

func (u *webServerUnit) Configure(ctx context.Context) error {
	app := u.deps.App
	if app.Domain == "" {
		return fmt.Errorf("app domain is required to configure the web front end")
	}

	mapping, err := osmap.Resolve(osmap.CapWebServer, u.deps.Family)
	if err != nil {
		return err
	}

	vhost := renderVHost(app.Domain, app.WebRoot)
	if err := u.deps.Runner.UploadBytes(ctx, []byte(vhost), u.vhostPath(app.Domain), 0644); err != nil {
		return fmt.Errorf("failed to upload virtual host: %w", err)
	}

	script := u.activationScript(app, mapping)
	result, err := u.deps.Runner.Execute(ctx, ssh.Command{
		Body:    script,
		Timeout: 2 * time.Minute,
	})
	if err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("virtual host activation exited %d: %s", result.ExitCode, result.Stderr)
	}

	return nil
}

// vhostPath is where the family's web server picks up site definitions.
func (u *webServerUnit) vhostPath(domain string) string {
	if u.deps.Family == osmap.FamilyDebian {
		return fmt.Sprintf("/etc/apache2/sites-available/%s.conf", domain)
	}
	return fmt.Sprintf("/etc/httpd/conf.d/%s.conf", domain)
}

// activationScript prepares the document root, enables the site and the
// modules the vhost needs, and reloads. Every step tolerates having already
// been applied.
func (u *webServerUnit) activationScript(app config.AppConfig, mapping osmap.Mapping) string {
	var b strings.Builder
	fmt.Fprintf(&b, "mkdir -p %s\n", app.WebRoot)
	fmt.Fprintf(&b, "chown -R %s:%s %s\n", mapping.User, mapping.Group, app.WebRoot)
	if u.deps.Family == osmap.FamilyDebian {
		b.WriteString("a2enmod headers rewrite\n")
		fmt.Fprintf(&b, "a2ensite %s.conf\n", app.Domain)
	}
	b.WriteString(osmap.ServiceReloadCommand(mapping.Service))
	return b.String()
}

// renderVHost assembles the virtual host from typed configuration only; the
// result travels through the transport's encoding path like any other
// payload.
func renderVHost(domain, webRoot string) string {
	var b strings.Builder
	b.WriteString("<VirtualHost *:80>\n")
	fmt.Fprintf(&b, "    ServerName %s\n", domain)
	fmt.Fprintf(&b, "    DocumentRoot %s\n", webRoot)
	b.WriteString("\n")
	fmt.Fprintf(&b, "    <Directory %s>\n", webRoot)
	b.WriteString("        AllowOverride All\n")
	b.WriteString("        Require all granted\n")
	b.WriteString("    </Directory>\n")
	b.WriteString("\n")
	b.WriteString("    Header always set X-Frame-Options \"SAMEORIGIN\"\n")
	b.WriteString("    Header always set X-Content-Type-Options \"nosniff\"\n")
	b.WriteString("    Header always set Referrer-Policy \"strict-origin-when-cross-origin\"\n")
	b.WriteString("    Header always set X-XSS-Protection \"1; mode=block\"\n")
	b.WriteString("\n")
	fmt.Fprintf(&b, "    ErrorLog /var/log/%s-error.log\n", domain)
	fmt.Fprintf(&b, "    CustomLog /var/log/%s-access.log combined\n", domain)
	b.WriteString("</VirtualHost>\n")
	return b.String()
}
