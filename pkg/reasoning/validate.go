package reasoning

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/quillworks/quill/pkg/llms"
)

const critiquePrompt = `You are a strict reasoning critic. Evaluate whether the reasoning step below is sound, relevant, and free of logical errors.

Respond with a single JSON object: {"pass": true|false, "critique": "<one sentence>"}`

type critiqueVerdict struct {
	Pass     bool   `json:"pass"`
	Critique string `json:"critique"`
}

// critiqueStep asks the model to accept or reject a reasoning step. An
// unparseable critique counts as a pass so a flaky critic never wedges the
// run.
func critiqueStep(ctx context.Context, client llms.ModelClient, thought string) (bool, string, error) {
	req := llms.Request{
		Messages: []llms.Message{
			{Role: llms.RoleSystem, Content: critiquePrompt},
			{Role: llms.RoleUser, Content: fmt.Sprintf("Reasoning step:\n%s", thought)},
		},
		Temperature: 0,
	}

	text, err := collectText(ctx, client, req)
	if err != nil {
		return false, "", err
	}

	raw, ok := extractJSON(text)
	if !ok {
		return true, "", nil
	}
	var v critiqueVerdict
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return true, "", nil
	}
	return v.Pass, v.Critique, nil
}
