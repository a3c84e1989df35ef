package web

import (
	"github.com/flowmill/flowmill/pkg/models"
	"github.com/gofiber/fiber/v3"
)

// responseBlockType marks blocks whose output declares the HTTP response shape.
const responseBlockType = "response"

// respondWithResult returns either the enriched result as JSON or, when the
// result contains a response block's output, an HTTP response built from that
// block's declared status, headers and body.
func respondWithResult(c fiber.Ctx, result *models.EnrichedResult) error {
	for _, blockLog := range result.Logs {
		if blockLog.BlockType == responseBlockType && blockLog.Success {
			return respondFromBlock(c, blockLog.Output)
		}
	}

	return c.JSON(result)
}

func respondFromBlock(c fiber.Ctx, output map[string]any) error {
	status := fiber.StatusOK

	if raw, ok := output["status"]; ok {
		switch v := raw.(type) {
		case float64:
			status = int(v)
		case int:
			status = v
		}
	}

	if headers, ok := output["headers"].(map[string]any); ok {
		for name, value := range headers {
			if str, ok := value.(string); ok {
				c.Set(name, str)
			}
		}
	}

	body, ok := output["data"]
	if !ok {
		return c.SendStatus(status)
	}

	return c.Status(status).JSON(body)
}
