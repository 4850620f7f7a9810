package tgui

import "strings"

// Data formats inline callback data as "scope:action:payload".
// Payload is kept as-is (no escaping); it must not contain ':' separators of
// its own unless the handler splits with a bounded SplitN. Telegram caps
// callback_data at 64 bytes, so payloads are short tokens, not values.
func Data(scope, action, payload string) string {
	scope = strings.TrimSpace(scope)
	action = strings.TrimSpace(action)
	if payload == "" {
		return scope + ":" + action
	}
	return scope + ":" + action + ":" + payload
}
