package service

import (
	"encoding/json"
	"time"

	"app/internal/llm"
)

// ChatTools declares the auxiliary functions a model may call
// mid-conversation.
type ChatTools struct {
	now func() time.Time
}

func NewChatTools() *ChatTools {
	return &ChatTools{now: time.Now}
}

func (t *ChatTools) AvailableTools() []*llm.Tool {
	return []*llm.Tool{
		t.datetimeTool(),
	}
}

func (t *ChatTools) datetimeTool() *llm.Tool {
	return &llm.Tool{
		Name:        "get_datetime",
		Description: "Get the current date and time in a specific timezone",
		Parameters: []llm.Parameter{
			{
				Name:        "timezone",
				Description: `Timezone identifier (e.g., "America/New_York", "Europe/London", "UTC"). Defaults to "UTC".`,
			},
			{
				Name:        "format",
				Description: `Output format: "iso" for ISO 8601, "unix" for Unix timestamp, "human" for readable format. Defaults to "iso".`,
			},
		},
		Handler: func(args map[string]any) (string, error) {
			timezone, _ := args["timezone"].(string)
			format, _ := args["format"].(string)

			name, location := validateTimezone(timezone)
			now := t.now().In(location)

			var payload map[string]any
			switch format {
			case "unix":
				payload = map[string]any{
					"timestamp": now.Unix(),
					"datetime":  now.Format("2006-01-02 15:04:05"),
					"timezone":  name,
				}
			case "human":
				payload = map[string]any{
					"readable": now.Format("Monday, January 2, 2006 at 3:04 PM"),
					"timezone": name,
				}
			default:
				// Unknown formats fall back to iso.
				payload = map[string]any{
					"iso8601":  now.Format(time.RFC3339),
					"rfc2822":  now.Format("Mon, 02 Jan 2006 15:04:05 -0700"),
					"timezone": name,
				}
			}

			encoded, err := json.Marshal(payload)
			if err != nil {
				return "", err
			}
			return string(encoded), nil
		},
	}
}

// validateTimezone resolves a timezone identifier against the host timezone
// database, falling back to UTC for invalid or absent values.
func validateTimezone(timezone string) (string, *time.Location) {
	if timezone == "" {
		return "UTC", time.UTC
	}
	location, err := time.LoadLocation(timezone)
	if err != nil {
		return "UTC", time.UTC
	}
	return timezone, location
}
