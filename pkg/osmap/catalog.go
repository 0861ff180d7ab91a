package osmap

import (
	"fmt"
	"sort"
)

// Capability names supported by the installer. These are the abstract,
// user-toggleable units of desired state on a target.
const (
	CapSystemTooling    = "system-tooling"
	CapWebServer        = "web-server"
	CapDataStore        = "relational-database"
	CapRuntime          = "language-runtime"
	CapCache            = "cache"
	CapContainerRuntime = "container-runtime"
	CapFirewall         = "firewall"
)

// Mapping resolves one abstract capability to concrete names for a family.
type Mapping struct {
	// Package is the package name used for install and presence probes.
	Package string

	// Service is the systemd unit name, empty for package-only capabilities.
	Service string

	// User is the conventional unprivileged principal for the capability.
	User string

	// Group is the principal's primary group.
	Group string
}

// catalog is the static resolution table. It must be total for every
// capability the installer supports, per supported family; ValidateCatalog
// enforces that at startup.
var catalog = map[Family]map[string]Mapping{
	FamilyDebian: {
		CapSystemTooling:    {Package: "git", User: "root", Group: "root"},
		CapWebServer:        {Package: "apache2", Service: "apache2", User: "www-data", Group: "www-data"},
		CapDataStore:        {Package: "mariadb-server", Service: "mariadb", User: "mysql", Group: "mysql"},
		CapRuntime:          {Package: "php-fpm", Service: "php-fpm", User: "www-data", Group: "www-data"},
		CapCache:            {Package: "redis-server", Service: "redis-server", User: "redis", Group: "redis"},
		CapContainerRuntime: {Package: "docker.io", Service: "docker", User: "root", Group: "docker"},
		CapFirewall:         {Package: "ufw", Service: "ufw", User: "root", Group: "root"},
	},
	FamilyRedHat: {
		CapSystemTooling:    {Package: "git", User: "root", Group: "root"},
		CapWebServer:        {Package: "httpd", Service: "httpd", User: "apache", Group: "apache"},
		CapDataStore:        {Package: "mariadb-server", Service: "mariadb", User: "mysql", Group: "mysql"},
		CapRuntime:          {Package: "php-fpm", Service: "php-fpm", User: "apache", Group: "apache"},
		CapCache:            {Package: "redis", Service: "redis", User: "redis", Group: "redis"},
		CapContainerRuntime: {Package: "docker", Service: "docker", User: "root", Group: "docker"},
		CapFirewall:         {Package: "firewalld", Service: "firewalld", User: "root", Group: "root"},
	},
}

// SupportedCapabilities returns the capability names present in the catalog,
// sorted for stable output.
func SupportedCapabilities() []string {
	caps := []string{
		CapSystemTooling,
		CapWebServer,
		CapDataStore,
		CapRuntime,
		CapCache,
		CapContainerRuntime,
		CapFirewall,
	}
	sort.Strings(caps)
	return caps
}

// Resolve looks up the concrete names for a capability under a family.
// Resolve is a pure function: the same inputs always return the same names.
func Resolve(capability string, family Family) (Mapping, error) {
	familyTable, ok := catalog[family]
	if !ok {
		return Mapping{}, fmt.Errorf("no capability catalog for OS family %q", family)
	}

	mapping, ok := familyTable[capability]
	if !ok {
		return Mapping{}, fmt.Errorf("capability %q has no mapping for OS family %q", capability, family)
	}

	return mapping, nil
}

// ValidateCatalog verifies that every requested capability resolves under the
// given family. A miss here is a configuration error and must be surfaced
// before any remote command is issued.
func ValidateCatalog(family Family, capabilities []string) error {
	if family == FamilyUnknown {
		return fmt.Errorf("cannot validate catalog for unknown OS family")
	}
	for _, capability := range capabilities {
		if _, err := Resolve(capability, family); err != nil {
			return err
		}
	}
	return nil
}
