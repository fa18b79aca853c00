package debug

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/orizon-lang/orizon/internal/position"
)

// CurrentSchemaVersion is stamped onto debug info produced by this build.
// supportedSchemaVersions bounds what Deserialize will accept from disk,
// so older or newer producers fail fast with a clear error instead of
// feeding a gdbserver.Server malformed line tables.
const CurrentSchemaVersion = "1.0.0"

var supportedSchemaVersions = mustConstraint(">= 1.0.0, < 2.0.0")

func mustConstraint(s string) *semver.Constraints {
	c, err := semver.NewConstraint(s)
	if err != nil {
		panic(err)
	}

	return c
}

// LineEntry maps an address (abstract) to a source line.
type LineEntry struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

// VariableInfo describes a variable with scope and type.
type VariableInfo struct {
	TypeMeta    *TypeMeta     `json:"type_meta,omitempty"`
	Name        string        `json:"name"`
	Type        string        `json:"type"`
	Location    string        `json:"location"`
	AddressBase string        `json:"address_base,omitempty"`
	Span        position.Span `json:"span"`
	FrameOffset int64         `json:"frame_offset,omitempty"`
	IsParam     bool          `json:"is_param"`
	IsCaptured  bool          `json:"is_captured"`
}

// FunctionInfo describes a function for debug.
type FunctionInfo struct {
	ReturnType *TypeMeta      `json:"return_type,omitempty"`
	Name       string         `json:"name"`
	Lines      []LineEntry    `json:"lines"`
	Variables  []VariableInfo `json:"variables"`
	ParamTypes []TypeMeta     `json:"param_types,omitempty"`
	Span       position.Span  `json:"span"`
}

// ModuleDebugInfo aggregates module-level debug info.
type ModuleDebugInfo struct {
	ModuleName string         `json:"module_name"`
	Functions  []FunctionInfo `json:"functions"`
}

// ProgramDebugInfo is the top-level debug info artifact consumed by
// gdbserver.Server: one or more modules, each with functions, their line
// tables, and their variables.
type ProgramDebugInfo struct {
	GeneratedAt time.Time `json:"generated_at"`
	// SchemaVersion is a semver string. Empty is treated as CurrentSchemaVersion
	// for payloads produced before this field existed.
	SchemaVersion string            `json:"schema_version,omitempty"`
	Modules       []ModuleDebugInfo `json:"modules"`
}

// TypeMeta provides a lightweight, JSON-serializable snapshot of a type.
type TypeMeta struct {
	AliasOf    *TypeMeta   `json:"alias_of,omitempty"`
	Kind       string      `json:"kind"`
	Name       string      `json:"name"`
	Parameters []TypeMeta  `json:"parameters,omitempty"`
	Fields     []TypeField `json:"fields,omitempty"`
	Qualifiers []string    `json:"qualifiers,omitempty"`
	Size       int64       `json:"size"`
	Alignment  int64       `json:"alignment"`
}

// TypeField describes a struct/record field.
type TypeField struct {
	Type   TypeMeta `json:"type"`
	Name   string   `json:"name"`
	Offset int64    `json:"offset"`
}

// Serialize returns canonical JSON for the debug info, stamping
// SchemaVersion when the caller left it unset.
func Serialize(info ProgramDebugInfo) ([]byte, error) {
	if info.SchemaVersion == "" {
		info.SchemaVersion = CurrentSchemaVersion
	}

	return json.MarshalIndent(info, "", "  ")
}

// Deserialize parses ProgramDebugInfo from JSON and rejects payloads whose
// SchemaVersion falls outside supportedSchemaVersions.
func Deserialize(b []byte) (ProgramDebugInfo, error) {
	var info ProgramDebugInfo
	if err := json.Unmarshal(b, &info); err != nil {
		return ProgramDebugInfo{}, err
	}

	v, err := semver.NewVersion(info.SchemaVersion)
	if info.SchemaVersion == "" {
		v, err = semver.NewVersion(CurrentSchemaVersion)
	}

	if err != nil {
		return ProgramDebugInfo{}, fmt.Errorf("debug info schema_version %q is not valid semver: %w", info.SchemaVersion, err)
	}

	if !supportedSchemaVersions.Check(v) {
		return ProgramDebugInfo{}, fmt.Errorf("debug info schema_version %q is not supported (want %s)", info.SchemaVersion, supportedSchemaVersions)
	}

	return info, nil
}
