// Package agents defines the pipeline roles: their response schemas, their
// prompts, and the mapping from extracted fields back to domain values.
//
// Every role answers in the same markdown section protocol so one
// extraction layer serves all of them. The schemas here are the single
// source of truth for what each role must produce.
package agents

import (
	"fmt"

	"github.com/zhuang-keju/GreyCells/internal/extract"
)

// Role names, in pipeline order.
const (
	RolePM       = "pm"
	RoleCoder    = "coder"
	RoleTester   = "tester"
	RoleDebugger = "debugger"
)

// Debugger target decisions.
const (
	TargetSource = "SOURCE"
	TargetTest   = "TEST"
)

// Default artifact paths when a role's metadata does not name one.
const (
	DefaultSourcePath = "generated_code.py"
	DefaultTestPath   = "test_generated_code.py"
)

// PMSchema is the response contract of the pm role.
var PMSchema = extract.Schema{
	{Name: "Story", Kind: extract.KindText, Required: true},
}

// CoderSchema is the response contract of the coder role.
var CoderSchema = extract.Schema{
	{Name: "Content", Kind: extract.KindCode, Required: true},
	{Name: "Metadata", Kind: extract.KindJSON, Required: true},
}

// TesterSchema is the response contract of the tester role.
var TesterSchema = extract.Schema{
	{Name: "Content", Kind: extract.KindCode, Required: true},
	{Name: "Metadata", Kind: extract.KindJSON, Required: true},
}

// DebuggerSchema is the response contract of the debugger role. Target
// names the artifact the fix applies to and must match the artifact the
// call asked for.
var DebuggerSchema = extract.Schema{
	{Name: "Reasoning", Kind: extract.KindText, Required: true},
	{Name: "Target", Kind: extract.KindDecision, Required: true, Enum: []string{TargetSource, TargetTest}},
	{Name: "Content", Kind: extract.KindCode, Required: true},
	{Name: "Metadata", Kind: extract.KindJSON},
}

// SchemaFor returns the response schema of a role.
func SchemaFor(role string) (extract.Schema, error) {
	switch role {
	case RolePM:
		return PMSchema, nil
	case RoleCoder:
		return CoderSchema, nil
	case RoleTester:
		return TesterSchema, nil
	case RoleDebugger:
		return DebuggerSchema, nil
	}
	return nil, fmt.Errorf("unknown role %q", role)
}
