package semver

import (
	"sort"

	masterminds "github.com/Masterminds/semver/v3"
)

// VersionRecord is one registered version of a named service.
type VersionRecord struct {
	ID      string
	Version string
}

// ResolveVersion returns the highest version matching rangeStr, preferring
// stable releases over prereleases. An empty range matches every version.
// Records whose version does not parse only match an identical exact range.
func ResolveVersion(versions []VersionRecord, rangeStr string) *VersionRecord {
	if len(versions) == 0 {
		return nil
	}

	var match func(*masterminds.Version) bool
	switch {
	case rangeStr == "":
		match = func(*masterminds.Version) bool { return true }
	case IsMajorOnly(rangeStr):
		major := uint64(ExtractMajorFromRange(rangeStr))
		match = func(v *masterminds.Version) bool { return v.Major() == major }
	default:
		constraint, err := masterminds.NewConstraint(rangeStr)
		if err != nil {
			return findExactVersion(versions, rangeStr)
		}
		match = constraint.Check
	}

	type candidate struct {
		rec *VersionRecord
		ver *masterminds.Version
	}
	var matching []candidate
	for i := range versions {
		sv, err := masterminds.NewVersion(versions[i].Version)
		if err != nil {
			continue
		}
		if match(sv) {
			matching = append(matching, candidate{rec: &versions[i], ver: sv})
		}
	}
	if len(matching) == 0 {
		return findExactVersion(versions, rangeStr)
	}

	sort.SliceStable(matching, func(i, j int) bool {
		return matching[i].ver.GreaterThan(matching[j].ver)
	})

	for _, c := range matching {
		if c.ver.Prerelease() == "" {
			return c.rec
		}
	}
	return matching[0].rec
}

// SatisfiesRange checks if a version string satisfies a range.
func SatisfiesRange(version, rangeStr string) bool {
	if rangeStr == "" {
		return true
	}

	sv, err := masterminds.NewVersion(version)
	if err != nil {
		return version == rangeStr
	}

	if IsMajorOnly(rangeStr) {
		return int(sv.Major()) == ExtractMajorFromRange(rangeStr)
	}

	constraint, err := masterminds.NewConstraint(rangeStr)
	if err != nil {
		return false
	}
	return constraint.Check(sv)
}

func findExactVersion(versions []VersionRecord, versionStr string) *VersionRecord {
	if versionStr == "" {
		return nil
	}
	for i := range versions {
		if versions[i].Version == versionStr {
			return &versions[i]
		}
	}
	return nil
}
