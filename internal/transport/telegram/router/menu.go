package router

import (
	"sort"
	"strings"
	"unicode"

	kit "quakebot/internal/transport"
)

// sanitizeTelegramCommand converts a command name or alias into a Telegram-safe
// bot command. Telegram command names are restricted to [a-z0-9_]{1,32}.
func sanitizeTelegramCommand(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(s))
	lastUnderscore := false
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if r == '_' || r == '-' || r == '/' || unicode.IsSpace(r) {
			if b.Len() > 0 && !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
			continue
		}
		// drop anything else
	}

	out := strings.Trim(b.String(), "_")
	if out == "" {
		return ""
	}
	if len(out) > 32 {
		out = strings.TrimRight(out[:32], "_")
	}
	if out == "" {
		return ""
	}
	// Telegram clients generally expect commands to start with a letter.
	if out[0] >= '0' && out[0] <= '9' {
		out = "cmd_" + out
		if len(out) > 32 {
			out = strings.TrimRight(out[:32], "_")
		}
	}
	return out
}

// buildTelegramMenuCommands turns the registry into the list pushed to
// Telegram's /menu autocomplete: one entry per canonical command, sorted,
// owner-only entries marked with a lock.
func buildTelegramMenuCommands(cmds map[string]Command) []kit.BotCommand {
	out := make([]kit.BotCommand, 0, len(cmds))
	for name, c := range cmds {
		cmd := sanitizeTelegramCommand(name)
		if cmd == "" {
			continue
		}

		desc := strings.TrimSpace(strings.ReplaceAll(c.Description, "\n", " "))
		if desc == "" {
			desc = cmd
		}
		if c.Access == AccessOwnerOnly {
			desc = "🔒 " + desc
		}
		if len(desc) > 256 {
			desc = desc[:256]
		}
		out = append(out, kit.BotCommand{Command: cmd, Description: desc})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Command < out[j].Command })
	if len(out) > 100 { // Telegram's setMyCommands cap
		out = out[:100]
	}
	return out
}
