package agents

import (
	"fmt"
	"strings"

	"github.com/zhuang-keju/GreyCells/internal/model"
)

// Prompt is one ready-to-send generation request.
type Prompt struct {
	System string
	User   string
}

const pmSystem = "You are the product manager on a small software team. " +
	"You turn a raw feature request into a user story that a developer can " +
	"implement without follow-up questions. The story states who wants what " +
	"and why, followed by concrete, checkable acceptance criteria. Keep it " +
	"short; do not invent requirements that were not asked for."

const coderSystem = "You are a senior Python developer. You implement the " +
	"user story in a single self-contained module. Write simple, readable " +
	"code and concentrate on the small part of the feature surface that " +
	"delivers most of the value; skip speculative options. Keep function " +
	"and class names stable across revisions, they are the module's public " +
	"interface. If third-party packages are unavoidable, declare them in " +
	"the metadata."

const testerSystem = "You are a QA engineer. You write black-box unit " +
	"tests for a Python module from its user story alone; you never look " +
	"at the implementation. Use unittest.TestCase subclasses. Do not write " +
	"any import statements: the harness injects unittest and a star import " +
	"of the module under test, so every public name is already in scope. " +
	"Test observable behavior from the acceptance criteria, not internals."

const debuggerSystem = "You are a debugging specialist. A generated module " +
	"and its test suite failed; an arbiter has already ruled which file is " +
	"at fault, and you repair exactly that file. Produce the complete " +
	"replacement file content, not a diff. Make the smallest change that " +
	"resolves the failure, keep every public entry point name and signature " +
	"stable, and never rewrite parts that are not implicated. The user " +
	"story is the only source of truth: when the test expects something the " +
	"story does not support, the test is wrong."

// PMPrompt asks for the user story behind a raw requirement.
func PMPrompt(requirement string) Prompt {
	var b strings.Builder
	fmt.Fprintf(&b, "Feature request:\n%s\n\n", strings.TrimSpace(requirement))
	b.WriteString("Write the user story with acceptance criteria.\n\n")
	b.WriteString(replyFormatStory())
	return Prompt{System: pmSystem, User: b.String()}
}

// CoderPrompt asks for the implementation of a story.
func CoderPrompt(story string) Prompt {
	var b strings.Builder
	fmt.Fprintf(&b, "User story:\n%s\n\n", strings.TrimSpace(story))
	b.WriteString("Implement the story as one Python module.\n\n")
	b.WriteString(replyFormatFile(DefaultSourcePath, true))
	return Prompt{System: coderSystem, User: b.String()}
}

// TesterPrompt asks for the test suite of a story. The source artifact
// contributes only its module name, never its content: tests are written
// against the story.
func TesterPrompt(story string, source model.Artifact) Prompt {
	var b strings.Builder
	fmt.Fprintf(&b, "User story:\n%s\n\n", strings.TrimSpace(story))
	fmt.Fprintf(&b, "The module under test is %q. Its public names will be "+
		"star-imported for you; write the tests without any import lines.\n\n", source.Module())
	b.WriteString(replyFormatFile(DefaultTestPath, false))
	return Prompt{System: testerSystem, User: b.String()}
}

// DebuggerPrompt asks for the repaired content of one artifact. target is
// TargetSource or TargetTest; rationale is the arbiter's ruling.
func DebuggerPrompt(state model.CycleState, outcome model.Outcome, target, rationale string) Prompt {
	var b strings.Builder
	fmt.Fprintf(&b, "User story:\n%s\n\n", strings.TrimSpace(state.UserStory))
	fmt.Fprintf(&b, "Source file %s:\n```python\n%s\n```\n\n", state.Source.Path, state.Source.Content)
	fmt.Fprintf(&b, "Test file %s (imports are injected by the harness):\n```python\n%s\n```\n\n", state.Tests.Path, state.Tests.Content)
	fmt.Fprintf(&b, "Failure log:\n%s\n\n", FormatFailure(outcome))
	fmt.Fprintf(&b, "Arbiter ruling: %s\n\n", rationale)
	switch target {
	case TargetSource:
		fmt.Fprintf(&b, "Repair the SOURCE file (%s). The test file is off limits.\n\n", state.Source.Path)
	case TargetTest:
		fmt.Fprintf(&b, "Repair the TEST file (%s). The source file is off limits.\n\n", state.Tests.Path)
	}
	b.WriteString(replyFormatFix(target))
	return Prompt{System: debuggerSystem, User: b.String()}
}

// FormatFailure renders an execution outcome the way the debugger sees it.
func FormatFailure(o model.Outcome) string {
	summary := "Tests Failed"
	if o.TimedOut {
		summary = "Execution Timed Out"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Summary: %s\n", summary)
	fmt.Fprintf(&b, "Exit Code: %d\n", o.ExitCode)
	b.WriteString("Details:\n")
	b.WriteString(strings.TrimSpace(o.Stdout))
	b.WriteString("\nTraceback:\n")
	b.WriteString(strings.TrimSpace(o.Stderr))
	return b.String()
}

func replyFormatStory() string {
	var b strings.Builder
	b.WriteString("Reply in markdown with exactly this section:\n")
	b.WriteString("## Story:\n")
	b.WriteString("<the user story and its acceptance criteria>\n")
	return b.String()
}

func replyFormatFile(path string, withPackages bool) string {
	var b strings.Builder
	b.WriteString("Reply in markdown with exactly these sections:\n")
	b.WriteString("## Content:\n")
	b.WriteString("```python\n<the complete file>\n```\n")
	if withPackages {
		fmt.Fprintf(&b, "## Metadata: {\"path\": %q, \"packages\": []}\n", path)
		b.WriteString("List every third-party package the code imports in packages; leave it empty for stdlib-only code.\n")
	} else {
		fmt.Fprintf(&b, "## Metadata: {\"path\": %q}\n", path)
	}
	return b.String()
}

func replyFormatFix(target string) string {
	var b strings.Builder
	b.WriteString("Reply in markdown with exactly these sections:\n")
	b.WriteString("## Reasoning:\n")
	b.WriteString("<why the failure happens and what the minimal repair is>\n")
	fmt.Fprintf(&b, "## Target: %s\n", target)
	b.WriteString("## Content:\n")
	b.WriteString("```python\n<the complete repaired file>\n```\n")
	return b.String()
}
