package schema

import (
	"path"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/pseudomuto/leaf/pkg/consts"
)

// RuleSet controls which objects a diff considers and how drops are handled.
type RuleSet struct {
	// ExcludedTypes are kinds ignored on both sides of a diff.
	ExcludedTypes []ObjectKind `json:"excluded_types,omitempty" yaml:"exclude_types,omitempty"`

	// ExcludedNames are case-insensitive glob patterns matched against both
	// NAME and SCHEMA.NAME (e.g. "TMP_*", "HR.AUDIT_*").
	ExcludedNames []string `json:"excluded_names,omitempty" yaml:"exclude_names,omitempty"`

	// DisabledDropTypes are kinds for which Drop ops are never emitted.
	DisabledDropTypes []ObjectKind `json:"disabled_drop_types,omitempty" yaml:"disabled_drop_types,omitempty"`

	// DisableAllDrops suppresses every Drop op and every column drop in table alters.
	DisableAllDrops bool `json:"disable_all_drops,omitempty" yaml:"disable_all_drops,omitempty"`

	// IncludeUnknownKinds opts kinds outside KnownKinds into diffing.
	IncludeUnknownKinds bool `json:"include_unknown_kinds,omitempty" yaml:"include_unknown_kinds,omitempty"`

	// Cutoff excludes source objects last modified at or before it. Nil
	// disables the filter.
	Cutoff *time.Time `json:"cutoff,omitempty" yaml:"-"`

	// FailFast stops a deployment at its first failed op.
	FailFast bool `json:"fail_fast" yaml:"fail_fast"`
}

// Validate checks that every name pattern is a well-formed glob.
func (r RuleSet) Validate() error {
	for _, p := range r.ExcludedNames {
		if _, err := path.Match(strings.ToUpper(p), ""); err != nil {
			return errors.Wrapf(err, "invalid name pattern %q", p)
		}
	}
	return nil
}

// Excludes reports whether id is filtered out by kind or name.
func (r RuleSet) Excludes(id ObjectIdentity) bool {
	if !id.Kind.Known() && !r.IncludeUnknownKinds {
		return true
	}

	for _, k := range r.ExcludedTypes {
		if k == id.Kind {
			return true
		}
	}

	for _, p := range r.ExcludedNames {
		if matchName(strings.ToUpper(strings.TrimSpace(p)), id) {
			return true
		}
	}

	return false
}

// DropDisabled reports whether drops of kind are suppressed.
func (r RuleSet) DropDisabled(kind ObjectKind) bool {
	if r.DisableAllDrops {
		return true
	}
	for _, k := range r.DisabledDropTypes {
		if k == kind {
			return true
		}
	}
	return false
}

// AfterCutoff reports whether def changed strictly after the cutoff. Objects
// without a last-modified time are always current.
func (r RuleSet) AfterCutoff(def *ObjectDefinition) bool {
	if r.Cutoff == nil || def.LastModified == nil {
		return true
	}
	return def.LastModified.After(*r.Cutoff)
}

// WithCutoff returns a copy of r using cutoff.
func (r RuleSet) WithCutoff(cutoff time.Time) RuleSet {
	r.Cutoff = &cutoff
	return r
}

func matchName(pattern string, id ObjectIdentity) bool {
	for _, candidate := range []string{id.Name, id.QualifiedName()} {
		ok, err := path.Match(pattern, candidate)
		if err != nil {
			ok = pattern == candidate
		}
		if ok {
			return true
		}
	}
	return false
}

// ParseCutoff parses a cutoff in either "2006.01.02:15.04.05" or "2006.01.02"
// form, interpreted as UTC.
//
// Example:
//
//	cutoff, err := schema.ParseCutoff("2025.03.01:18.30.00")
func ParseCutoff(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{consts.CutoffDateTimeLayout, consts.CutoffDateLayout} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}

	return time.Time{}, errors.Errorf(
		"invalid cutoff %q: expected %s or %s",
		s, consts.CutoffDateTimeLayout, consts.CutoffDateLayout,
	)
}
