package kiro

import (
	"fmt"
	"sort"

	"github.com/karthick-kk/kiro-gateway/pkg/api"
)

// modelAliases maps the externally exposed model names to the
// provider's internal model identifiers.
var modelAliases = map[string]string{
	"claude-sonnet-4-5":          "CLAUDE_SONNET_4_5_20250929_V1_0",
	"claude-sonnet-4-5-20250929": "CLAUDE_SONNET_4_5_20250929_V1_0",
	"claude-sonnet-4":            "CLAUDE_SONNET_4_20250514_V1_0",
	"claude-sonnet-4-20250514":   "CLAUDE_SONNET_4_20250514_V1_0",
	"claude-3-7-sonnet":          "CLAUDE_3_7_SONNET_20250219_V1_0",
	"claude-3-7-sonnet-20250219": "CLAUDE_3_7_SONNET_20250219_V1_0",
	"claude-haiku-4-5":           "CLAUDE_HAIKU_4_5_20251001_V1_0",
	"claude-haiku-4-5-20251001":  "CLAUDE_HAIKU_4_5_20251001_V1_0",
}

// UnknownModelError indicates a model alias not present in the lookup
// table. The request fails before any upstream call is made.
type UnknownModelError struct {
	Model string
}

func (e *UnknownModelError) Error() string {
	return fmt.Sprintf("unknown model %q", e.Model)
}

// ResolveModel maps an external model alias to the provider's internal
// identifier.
func ResolveModel(alias string) (string, error) {
	if id, ok := modelAliases[alias]; ok {
		return id, nil
	}
	return "", &UnknownModelError{Model: alias}
}

// AliasesFor returns the external aliases that resolve to the given
// provider model identifier, sorted. Empty when the id is unknown.
func AliasesFor(modelID string) []string {
	var aliases []string
	for alias, id := range modelAliases {
		if id == modelID {
			aliases = append(aliases, alias)
		}
	}
	sort.Strings(aliases)
	return aliases
}

// StaticModels returns the alias table as a /v1/models listing, sorted
// by id. Used as the fallback when the provider list call fails.
func StaticModels() []api.ChatModel {
	seen := make(map[string]bool, len(modelAliases))
	var models []api.ChatModel
	for alias := range modelAliases {
		if seen[alias] {
			continue
		}
		seen[alias] = true
		models = append(models, api.ChatModel{
			ID:      alias,
			Object:  "model",
			OwnedBy: "kiro",
		})
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return models
}
