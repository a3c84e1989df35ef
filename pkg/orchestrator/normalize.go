package orchestrator

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/flowmill/flowmill/pkg/models"
)

// responseFormatField is the block config field that may arrive JSON-encoded.
const responseFormatField = "responseFormat"

// NormalizeWorkflowVariables parses workflow-scoped variables into structured
// form. Workflow variables are supplementary context, so malformed input degrades
// to an empty set instead of failing the request.
func NormalizeWorkflowVariables(raw any, logger *slog.Logger) map[string]any {
	switch v := raw.(type) {
	case nil:
		return map[string]any{}
	case map[string]any:
		return v
	case string:
		if strings.TrimSpace(v) == "" {
			return map[string]any{}
		}

		parsed := map[string]any{}
		if err := json.Unmarshal([]byte(v), &parsed); err != nil {
			logger.Warn("Malformed workflow variables, continuing with empty set", "error", err)

			return map[string]any{}
		}

		return parsed
	default:
		logger.Warn("Unsupported workflow variables shape, continuing with empty set",
			"shape", fmt.Sprintf("%T", raw))

		return map[string]any{}
	}
}

// NormalizeResponseFormat parses a block's JSON-encoded response format field in
// place of the string form. Parse failure leaves the original string and
// continues.
func NormalizeResponseFormat(block *models.BlockState, logger *slog.Logger) *models.BlockState {
	raw, ok := block.Config[responseFormatField].(string)
	if !ok || strings.TrimSpace(raw) == "" {
		return block
	}

	var parsed any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		logger.Warn("Malformed response format, keeping raw value",
			"block_id", block.ID, "error", err)

		return block
	}

	config := make(map[string]any, len(block.Config))
	for field, value := range block.Config {
		config[field] = value
	}

	config[responseFormatField] = parsed

	return &models.BlockState{
		ID:     block.ID,
		Name:   block.Name,
		Type:   block.Type,
		Config: config,
	}
}
