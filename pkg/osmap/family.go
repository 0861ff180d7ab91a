// Package osmap maps abstract capability names to concrete package, service,
// and principal names per OS family, and probes installed state on a target.
package osmap

import "strings"

// Family is the OS classification of a deployment target. It is derived once
// from the instance blueprint identifier and drives every name-mapping lookup
// for the remainder of a run.
type Family string

const (
	// FamilyDebian covers Debian, Ubuntu, and derivatives (apt/dpkg).
	FamilyDebian Family = "debian"

	// FamilyRedHat covers RHEL, CentOS, Rocky, Alma, Fedora (dnf/rpm).
	FamilyRedHat Family = "redhat"

	// FamilyUnknown is returned for unrecognized blueprints. Classifying to
	// an explicit unknown instead of defaulting avoids installing the wrong
	// package names on an unexpected image.
	FamilyUnknown Family = "unknown"
)

// familyMarkers maps blueprint substring markers to families. Matching is
// case-insensitive and first-match wins in the order below.
var familyMarkers = []struct {
	marker string
	family Family
}{
	{"ubuntu", FamilyDebian},
	{"debian", FamilyDebian},
	{"mint", FamilyDebian},
	{"centos", FamilyRedHat},
	{"rhel", FamilyRedHat},
	{"redhat", FamilyRedHat},
	{"red-hat", FamilyRedHat},
	{"rocky", FamilyRedHat},
	{"alma", FamilyRedHat},
	{"fedora", FamilyRedHat},
	{"amazon-linux", FamilyRedHat},
	{"amzn", FamilyRedHat},
}

// Classify derives the OS family from a blueprint identifier. It is a
// deterministic, total function; unrecognized blueprints classify to
// FamilyUnknown.
func Classify(blueprintID string) Family {
	id := strings.ToLower(blueprintID)
	for _, m := range familyMarkers {
		if strings.Contains(id, m.marker) {
			return m.family
		}
	}
	return FamilyUnknown
}

// SupportedFamilies lists the families with complete capability catalogs.
func SupportedFamilies() []Family {
	return []Family{FamilyDebian, FamilyRedHat}
}
