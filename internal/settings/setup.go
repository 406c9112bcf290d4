package settings

import (
	"encoding/json"
	"strings"
)

// DefaultModel is written when the model step is submitted without a choice.
const DefaultModel = "anthropic/claude-opus-4-6"

// SetModel stores agent.model.
func (s *Store) SetModel(model string) error {
	model = strings.TrimSpace(model)
	if model == "" {
		model = DefaultModel
	}
	return s.SetField("agent", "model", model)
}

// Model returns agent.model or "" when unset.
func Model(doc Document) string {
	agent, ok := doc["agent"].(map[string]any)
	if !ok {
		return ""
	}
	m, _ := agent["model"].(string)
	return m
}

// Toggle is a form switch. Any non-empty value other than 0, false, off or no
// turns it on, so an HTML checkbox sending "on" counts as enabled.
type Toggle bool

// ParseToggle reports the state a submitted value selects.
func ParseToggle(v string) Toggle {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "0", "false", "off", "no":
		return false
	}
	return true
}

// UnmarshalParam implements gin's form binding hook.
func (t *Toggle) UnmarshalParam(param string) error {
	*t = ParseToggle(param)
	return nil
}

// UnmarshalJSON accepts a JSON boolean or any string ParseToggle understands.
func (t *Toggle) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch x := v.(type) {
	case bool:
		*t = Toggle(x)
	case string:
		*t = ParseToggle(x)
	case float64:
		*t = x != 0
	default:
		*t = false
	}
	return nil
}

// ChannelForm carries the channel step of the setup wizard.
type ChannelForm struct {
	WhatsAppEnabled Toggle `json:"whatsapp_enabled" form:"whatsapp_enabled"`
	WhatsAppAllow   string `json:"whatsapp_allow" form:"whatsapp_allow"`
	TelegramEnabled Toggle `json:"telegram_enabled" form:"telegram_enabled"`
	TelegramToken   string `json:"telegram_token" form:"telegram_token"`
	DiscordEnabled  Toggle `json:"discord_enabled" form:"discord_enabled"`
	DiscordToken    string `json:"discord_token" form:"discord_token"`
	SlackEnabled    Toggle `json:"slack_enabled" form:"slack_enabled"`
	SlackBotToken   string `json:"slack_bot_token" form:"slack_bot_token"`
	SlackAppToken   string `json:"slack_app_token" form:"slack_app_token"`
}

// ApplyChannels writes the enabled channels into doc.channels. A channel whose
// required tokens are missing is left as it was. Disabled channels are not removed.
// It reports whether anything changed.
func ApplyChannels(doc Document, f ChannelForm) bool {
	channels := Section(doc, "channels")
	changed := false
	if f.WhatsAppEnabled {
		channels["whatsapp"] = map[string]any{"allowFrom": SplitAllowList(f.WhatsAppAllow)}
		changed = true
	}
	if f.TelegramEnabled && f.TelegramToken != "" {
		channels["telegram"] = map[string]any{"botToken": f.TelegramToken}
		changed = true
	}
	if f.DiscordEnabled && f.DiscordToken != "" {
		channels["discord"] = map[string]any{"token": f.DiscordToken}
		changed = true
	}
	if f.SlackEnabled && f.SlackBotToken != "" && f.SlackAppToken != "" {
		channels["slack"] = map[string]any{"botToken": f.SlackBotToken, "appToken": f.SlackAppToken}
		changed = true
	}
	return changed
}

// ApplyChannels applies f to the stored document. The file is rewritten even when
// no channel changed, which normalizes its formatting.
func (s *Store) ApplyChannels(f ChannelForm) error {
	return s.Update(func(doc Document) error {
		_ = ApplyChannels(doc, f)
		return nil
	})
}

// SplitAllowList splits a comma separated list, trimming entries and dropping empty ones.
func SplitAllowList(raw string) []any {
	out := []any{}
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
