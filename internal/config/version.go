package config

import "fmt"

// CurrentVersion is the configuration file version this build reads.
const CurrentVersion = 1

// VersionError reports a config file whose version this build cannot read.
type VersionError struct {
	Version int
	Current int
}

// Missing reports whether the file had no usable version at all.
func (e *VersionError) Missing() bool { return e != nil && e.Version <= 0 }

// Newer reports whether the file was written for a later deskpilot.
func (e *VersionError) Newer() bool { return e != nil && e.Version > e.Current }

func (e *VersionError) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Missing():
		return fmt.Sprintf("config has no version; add `version: %d` at the top", e.Current)
	case e.Newer():
		return fmt.Sprintf("config version %d needs a newer deskpilot (this build reads %d)", e.Version, e.Current)
	default:
		return fmt.Sprintf("config version %d is no longer supported; migrate it to version %d", e.Version, e.Current)
	}
}

// ValidateVersion returns a *VersionError unless version is CurrentVersion.
func ValidateVersion(version int) error {
	if version == CurrentVersion {
		return nil
	}
	return &VersionError{Version: version, Current: CurrentVersion}
}
