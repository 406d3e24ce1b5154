package agents

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zhuang-keju/GreyCells/internal/extract"
	"github.com/zhuang-keju/GreyCells/internal/model"
)

// ErrMalformed marks a response that failed extraction. The caller may
// regenerate with the same role a bounded number of times; the error text
// carries the diagnostics for the log.
var ErrMalformed = errors.New("malformed agent response")

func malformed(res extract.Result) error {
	return fmt.Errorf("%w: %s", ErrMalformed, strings.Join(res.Diagnostics, "; "))
}

// StoryFromResult returns the user story from a pm response.
func StoryFromResult(res extract.Result) (string, error) {
	if !res.OK {
		return "", malformed(res)
	}
	story := strings.TrimSpace(res.Field("Story").Text)
	if story == "" {
		return "", fmt.Errorf("%w: Story section is empty", ErrMalformed)
	}
	return story, nil
}

// ArtifactFromResult converts a coder or tester response into an
// artifact. The metadata path wins over fallbackPath when present.
func ArtifactFromResult(res extract.Result, fallbackPath string) (model.Artifact, error) {
	if !res.OK {
		return model.Artifact{}, malformed(res)
	}
	art := model.Artifact{
		Path:    fallbackPath,
		Content: res.Field("Content").Code,
	}
	if strings.TrimSpace(art.Content) == "" {
		return model.Artifact{}, fmt.Errorf("%w: Content section is empty", ErrMalformed)
	}
	applyMetadata(&art, res.Field("Metadata").JSON)
	return art, nil
}

// FixFromResult validates a debugger response against the artifact that
// was put on trial and returns its replacement. The response must target
// the requested artifact; the fix replaces content only, the path never
// changes.
func FixFromResult(res extract.Result, requested string, current model.Artifact) (model.Artifact, error) {
	if !res.OK {
		return model.Artifact{}, malformed(res)
	}
	if target := res.Field("Target").Decision; target != requested {
		return model.Artifact{}, fmt.Errorf("%w: fix targets %q, %q was requested", ErrMalformed, target, requested)
	}
	content := res.Field("Content").Code
	if strings.TrimSpace(content) == "" {
		return model.Artifact{}, fmt.Errorf("%w: Content section is empty", ErrMalformed)
	}
	fixed := current
	fixed.Content = content
	applyMetadata(&fixed, res.Field("Metadata").JSON)
	fixed.Path = current.Path
	return fixed, nil
}

// applyMetadata copies path and packages out of a metadata object.
// Anything that is not the expected shape is ignored: metadata is a
// convenience, not a contract.
func applyMetadata(art *model.Artifact, meta any) {
	obj, ok := meta.(map[string]any)
	if !ok {
		return
	}
	if p, ok := obj["path"].(string); ok && model.ValidPath(p) {
		art.Path = p
	}
	if raw, ok := obj["packages"].([]any); ok {
		var pkgs []string
		for _, item := range raw {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				pkgs = append(pkgs, strings.TrimSpace(s))
			}
		}
		art.Packages = pkgs
	}
}
