// Package tgui provides small Telegram UI helpers:
//   - Inline keyboard builders
//   - Callback data formatting ("scope:action:payload")
//   - A message builder that is safe by default for ParseMode="HTML"
//   - A TTL token store for interactive prompt sessions
package tgui
