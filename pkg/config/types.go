// Package config loads and validates the deployment document: one target,
// a capability set, and the application parameters configurators consume.
package config

// Document is the top-level deployment configuration.
type Document struct {
	// Target identifies the machine to converge.
	Target TargetConfig `yaml:"target" validate:"required"`

	// Capabilities enumerates the desired capability set.
	Capabilities []CapabilityConfig `yaml:"capabilities" validate:"required,min=1,dive"`

	// App holds application-level parameters shared by configurators.
	App AppConfig `yaml:"app"`

	// Verify configures the post-deployment reachability check.
	Verify VerifyConfig `yaml:"verify"`
}

// TargetConfig identifies and authenticates the deployment target.
type TargetConfig struct {
	// Host is the network address of the target.
	Host string `yaml:"host" validate:"required"`

	// Port is the SSH port (default: 22).
	Port int `yaml:"port" validate:"omitempty,min=1,max=65535"`

	// User is the remote login identity.
	User string `yaml:"user" validate:"required"`

	// Blueprint is the instance image identifier the OS family is derived
	// from (e.g. "ubuntu-24.04", "rocky-9").
	Blueprint string `yaml:"blueprint" validate:"required"`

	// PrivateKeyPath points at the SSH private key. Empty falls back to the
	// conventional default key locations.
	PrivateKeyPath string `yaml:"private_key_path"`

	// Password enables password authentication when set.
	Password string `yaml:"password"`

	// KnownHostsPath overrides the known_hosts file used for host key
	// verification.
	KnownHostsPath string `yaml:"known_hosts_path"`

	// InsecureSkipHostKey disables host key verification.
	InsecureSkipHostKey bool `yaml:"insecure_skip_host_key"`
}

// CapabilityConfig is one desired capability entry.
type CapabilityConfig struct {
	// Name is the abstract capability name (e.g. "web-server").
	Name string `yaml:"name" validate:"required"`

	// Enabled toggles the capability.
	Enabled bool `yaml:"enabled"`

	// Version is an optional version hint for the package manager.
	Version string `yaml:"version"`

	// Params is a free-form parameter bag.
	Params map[string]any `yaml:"params"`
}

// AppConfig carries application parameters used during configuration.
type AppConfig struct {
	// Domain is the virtual host server name.
	Domain string `yaml:"domain"`

	// WebRoot is the document root. Defaults to /var/www/<domain>.
	WebRoot string `yaml:"web_root"`

	// Database configures schema and credential bootstrap.
	Database DatabaseConfig `yaml:"database"`

	// Runtime configures language runtime tuning.
	Runtime RuntimeConfig `yaml:"runtime"`

	// Cache configures the cache service.
	Cache CacheConfig `yaml:"cache"`

	// Compose configures the container composition.
	Compose ComposeConfig `yaml:"compose"`

	// OpenPorts lists TCP ports the firewall must allow.
	// Defaults to 22, 80, 443.
	OpenPorts []int `yaml:"open_ports" validate:"omitempty,dive,min=1,max=65535"`
}

// DatabaseConfig bootstraps the application schema and user.
type DatabaseConfig struct {
	// Name is the schema name.
	Name string `yaml:"name"`

	// User is the application database user.
	User string `yaml:"user"`

	// Password is the application database password.
	Password string `yaml:"password"`
}

// RuntimeConfig tunes the language runtime's process manager.
type RuntimeConfig struct {
	// MaxExecutionSeconds caps request execution time.
	MaxExecutionSeconds int `yaml:"max_execution_seconds" validate:"omitempty,min=1"`

	// UploadLimitMB caps request upload size.
	UploadLimitMB int `yaml:"upload_limit_mb" validate:"omitempty,min=1"`

	// Workers sets the process manager worker count.
	Workers int `yaml:"workers" validate:"omitempty,min=1"`
}

// CacheConfig tunes the cache service.
type CacheConfig struct {
	// MaxMemoryMB caps cache memory use.
	MaxMemoryMB int `yaml:"max_memory_mb" validate:"omitempty,min=1"`

	// EvictionPolicy selects the eviction behavior at the memory cap.
	EvictionPolicy string `yaml:"eviction_policy" validate:"omitempty,oneof=noeviction allkeys-lru allkeys-lfu volatile-lru volatile-ttl"`
}

// ComposeConfig points at the container composition to deploy.
type ComposeConfig struct {
	// File is the local path of the compose document to upload.
	File string `yaml:"file"`

	// ProjectDir is the remote directory the composition runs from.
	ProjectDir string `yaml:"project_dir"`
}

// VerifyConfig configures the post-deployment check.
type VerifyConfig struct {
	// URL is the externally-reachable endpoint to poll.
	URL string `yaml:"url"`

	// Signature is the content substring a healthy response must contain.
	Signature string `yaml:"signature"`

	// MaxAttempts bounds polling. Default 10.
	MaxAttempts int `yaml:"max_attempts" validate:"omitempty,min=1"`

	// IntervalSeconds is the delay between failed attempts. Default 10.
	IntervalSeconds int `yaml:"interval_seconds" validate:"omitempty,min=1"`

	// InitialDelaySeconds waits before the first poll, giving services time
	// to start. Default 5.
	InitialDelaySeconds int `yaml:"initial_delay_seconds" validate:"omitempty,min=0"`
}
