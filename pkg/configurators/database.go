package configurators

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/stackforge/stackforge/pkg/osmap"
	"github.com/stackforge/stackforge/pkg/transports/ssh"
)

// databaseUnit bootstraps the application schema and user, and wires the
// credentials into the application's environment file.
type databaseUnit struct {
	deps Deps
}

func newDatabaseUnit(deps Deps) *databaseUnit {
	return &databaseUnit{deps: deps}
}

func (u *databaseUnit) Name() string     { return "database-bootstrap" }
func (u *databaseUnit) Requires() string { return osmap.CapDataStore }

func (u *databaseUnit) Configure(ctx context.Context) error {
	db := u.deps.App.Database
	if db.Name == "" {
		return fmt.Errorf("database name is required to bootstrap the data store")
	}

	// IF NOT EXISTS throughout: a re-run against an already-bootstrapped
	// target is a no-op, not an error.
	script := renderDatabaseBootstrap(db.Name, db.User, db.Password)

	result, err := u.deps.Runner.Execute(ctx, ssh.Command{
		Body:    script,
		Timeout: 2 * time.Minute,
	})
	if err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("database bootstrap exited %d: %s", result.ExitCode, result.Stderr)
	}

	if u.deps.App.WebRoot != "" && db.User != "" {
		if err := u.wireCredentials(ctx, db.Name, db.User, db.Password); err != nil {
			return err
		}
	}

	return nil
}

// renderDatabaseBootstrap builds the schema/user bootstrap script. The body
// may contain arbitrary password characters; it is delivered through the
// transport's encoding path, never through shell interpolation.
func renderDatabaseBootstrap(name, user, password string) string {
	var b strings.Builder
	b.WriteString("mysql --protocol=socket <<'STACKFORGE_SQL'\n")
	fmt.Fprintf(&b, "CREATE DATABASE IF NOT EXISTS `%s` CHARACTER SET utf8mb4 COLLATE utf8mb4_unicode_ci;\n", name)
	if user != "" {
		fmt.Fprintf(&b, "CREATE USER IF NOT EXISTS '%s'@'localhost' IDENTIFIED BY '%s';\n", user, escapeSQL(password))
		fmt.Fprintf(&b, "GRANT ALL PRIVILEGES ON `%s`.* TO '%s'@'localhost';\n", name, user)
		b.WriteString("FLUSH PRIVILEGES;\n")
	}
	b.WriteString("STACKFORGE_SQL\n")
	return b.String()
}

// wireCredentials writes the application environment file with database
// connection settings, owned by the web-serving principal.
func (u *databaseUnit) wireCredentials(ctx context.Context, name, user, password string) error {
	webMapping, err := osmap.Resolve(osmap.CapWebServer, u.deps.Family)
	if err != nil {
		return err
	}

	envPath := path.Join(u.deps.App.WebRoot, ".env")
	env := renderDatabaseEnv(name, user, password)

	if err := u.deps.Runner.UploadBytes(ctx, []byte(env), envPath, 0640); err != nil {
		return fmt.Errorf("failed to upload environment file: %w", err)
	}

	result, err := u.deps.Runner.Execute(ctx, ssh.Command{
		Body:    fmt.Sprintf("chown %s:%s %s", webMapping.User, webMapping.Group, envPath),
		Timeout: 30 * time.Second,
	})
	if err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("environment file chown exited %d: %s", result.ExitCode, result.Stderr)
	}

	return nil
}

func renderDatabaseEnv(name, user, password string) string {
	var b strings.Builder
	b.WriteString("# managed by stackforge\n")
	b.WriteString("DB_HOST=localhost\n")
	fmt.Fprintf(&b, "DB_NAME=%s\n", name)
	fmt.Fprintf(&b, "DB_USER=%s\n", user)
	fmt.Fprintf(&b, "DB_PASSWORD=%s\n", password)
	return b.String()
}

// escapeSQL escapes single quotes and backslashes for SQL string literals.
func escapeSQL(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}
