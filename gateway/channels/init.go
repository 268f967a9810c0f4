// Package channels - channel construction from configuration

package channels

import (
	"log"

	"github.com/gliderlab/clawbee/gateway/channels/discord"
	"github.com/gliderlab/clawbee/gateway/channels/slack"
	"github.com/gliderlab/clawbee/gateway/channels/telegram"
	"github.com/gliderlab/clawbee/gateway/channels/types"
	"github.com/gliderlab/clawbee/gateway/channels/whatsapp"
	"github.com/gliderlab/clawbee/pkg/config"
	"github.com/gliderlab/clawbee/pkg/kv"
)

// BuildFromConfig registers every enabled integration on a new adapter.
// Tokens come from the config file; environment variables win when set
// so secrets can stay out of the file.
func BuildFromConfig(cfg *config.Config, responder Responder, state *kv.KV) *Adapter {
	adapter := NewAdapter(responder)
	count := 0

	if ic, ok := cfg.Integrations["telegram"]; ok && ic.Enabled {
		token := config.EnvOrDefault("TELEGRAM_BOT_TOKEN", ic.Token)
		if token == "" {
			log.Printf("[WARN] telegram enabled but no token configured")
		} else {
			if err := adapter.Register(telegram.New(token, responder, state)); err != nil {
				log.Printf("[WARN] telegram register failed: %v", err)
			} else {
				count++
			}
		}
	}

	if ic, ok := cfg.Integrations["discord"]; ok && ic.Enabled {
		token := config.EnvOrDefault("DISCORD_BOT_TOKEN", ic.Token)
		if token == "" {
			log.Printf("[WARN] discord enabled but no token configured")
		} else {
			if err := adapter.Register(discord.New(token, responder)); err != nil {
				log.Printf("[WARN] discord register failed: %v", err)
			} else {
				count++
			}
		}
	}

	if ic, ok := cfg.Integrations["slack"]; ok && ic.Enabled {
		botToken := config.EnvOrDefault("SLACK_BOT_TOKEN", ic.Token)
		appToken := config.EnvOrDefault("SLACK_APP_TOKEN", ic.AppToken)
		if botToken == "" || appToken == "" {
			log.Printf("[WARN] slack enabled but tokens incomplete")
		} else {
			if err := adapter.Register(slack.New(botToken, appToken, responder)); err != nil {
				log.Printf("[WARN] slack register failed: %v", err)
			} else {
				count++
			}
		}
	}

	if ic, ok := cfg.Integrations["whatsapp"]; ok && ic.Enabled {
		sessionID := config.EnvOrDefault("WHATSAPP_SESSION_ID", ic.Token)
		bridge := config.EnvOrDefault("WHATSAPP_BRIDGE_URL", ic.Webhook)
		if sessionID == "" {
			log.Printf("[WARN] whatsapp enabled but no session configured")
		} else {
			if err := adapter.Register(whatsapp.New(sessionID, bridge, responder)); err != nil {
				log.Printf("[WARN] whatsapp register failed: %v", err)
			} else {
				count++
			}
		}
	}

	log.Printf("[OK] Registered %d channels", count)
	return adapter
}

// AvailableChannels lists the channel types this build supports.
func AvailableChannels() []types.ChannelType {
	return []types.ChannelType{
		types.ChannelTelegram,
		types.ChannelDiscord,
		types.ChannelSlack,
		types.ChannelWhatsApp,
	}
}
