package progress

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/JakeFAU/difflog/internal/tree"
)

// FramePrefix marks a forwarded line as a state frame, distinguishing it from
// warnings and other text that shares the same sink.
const FramePrefix = "@diff "

// FrameLevel is the severity every frame is forwarded at.
const FrameLevel = LevelError

// Frame kinds reported to the Observer.
const (
	FrameBaseline = "baseline"
	FramePatch    = "patch"
)

// BaselineFrame renders a full state value as a single compact frame line.
func BaselineFrame(state any) (string, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("marshal baseline: %w", err)
	}
	return FramePrefix + string(data), nil
}

// PatchFrame renders a patch as a single compact frame line.
func PatchFrame(patch tree.Patch) (string, error) {
	if patch == nil {
		patch = tree.Patch{}
	}
	data, err := json.Marshal(patch)
	if err != nil {
		return "", fmt.Errorf("marshal patch: %w", err)
	}
	return FramePrefix + string(data), nil
}
