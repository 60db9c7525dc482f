package meta

import (
	"fmt"
	"strings"
)

// Mode is a bitmask selecting metadata granularity. It is used both for
// what gets loaded from a source and for what has been resolved.
type Mode int

const (
	ModeNone        Mode = 0
	ModeMeta        Mode = 1
	ModeMapping     Mode = 2
	ModeQuery       Mode = 4
	ModeMappingInit Mode = 8
	ModeAll         Mode = ModeMeta | ModeMapping | ModeQuery | ModeMappingInit
)

// Has reports whether every bit of m2 is set in m.
func (m Mode) Has(m2 Mode) bool {
	return m2 != ModeNone && m&m2 == m2
}

// With returns m with mode set or cleared. Setting ModeNone resets to none.
func (m Mode) With(mode Mode, on bool) Mode {
	switch {
	case mode == ModeNone:
		return ModeNone
	case on:
		return m | mode
	default:
		return m &^ mode
	}
}

// String renders the mode the way it appears in trace logs, e.g. "[META][QUERY]".
func (m Mode) String() string {
	var b strings.Builder
	if m&ModeMeta != 0 {
		b.WriteString("[META]")
	}
	if m&ModeQuery != 0 {
		b.WriteString("[QUERY]")
	}
	if m&ModeMapping != 0 {
		b.WriteString("[MAPPING]")
	}
	if m&ModeMappingInit != 0 {
		b.WriteString("[MAPPING_INIT]")
	}
	if b.Len() == 0 {
		return "[NONE]"
	}
	return b.String()
}

// ParseModes combines mode names ("meta", "mapping", "query",
// "mapping_init", "all", "none") into a Mode.
func ParseModes(names []string) (Mode, error) {
	var m Mode
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "none":
			m = ModeNone
		case "meta":
			m |= ModeMeta
		case "mapping":
			m |= ModeMapping
		case "query":
			m |= ModeQuery
		case "mapping_init", "mapping-init":
			m |= ModeMappingInit
		case "all":
			m |= ModeAll
		default:
			return 0, fmt.Errorf("unknown metadata mode: %s", name)
		}
	}
	return m, nil
}

// Validation is a bitmask of the checks performed while resolving.
type Validation int

const (
	ValidateNone       Validation = 0
	ValidateMeta       Validation = 1
	ValidateMapping    Validation = 2
	ValidateUnenhanced Validation = 4
	ValidateRuntime    Validation = 8
)

// Has reports whether flag is set.
func (v Validation) Has(flag Validation) bool {
	return flag != ValidateNone && v&flag == flag
}

// With returns v with flag set or cleared. Setting ValidateNone resets to none.
func (v Validation) With(flag Validation, on bool) Validation {
	switch {
	case flag == ValidateNone:
		return ValidateNone
	case on:
		return v | flag
	default:
		return v &^ flag
	}
}

// ParseValidation combines validation names ("none", "meta", "mapping",
// "unenhanced", "runtime") into a Validation.
func ParseValidation(names []string) (Validation, error) {
	var v Validation
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "none":
			v = ValidateNone
		case "meta":
			v |= ValidateMeta
		case "mapping":
			v |= ValidateMapping
		case "unenhanced":
			v |= ValidateUnenhanced
		case "runtime":
			v |= ValidateRuntime
		default:
			return 0, fmt.Errorf("unknown validation flag: %s", name)
		}
	}
	return v, nil
}
