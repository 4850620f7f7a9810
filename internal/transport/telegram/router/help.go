package router

import (
	"html"
	"sort"
	"strings"
)

// helpText renders Telegram-friendly help in HTML parse mode.
// It is safe to pass directly to Telegram with ParseMode="HTML".
func (m *CommandManager) helpText(args []string) string {
	m.mu.RLock()
	cmds := m.cmds
	alias := m.alias
	m.mu.RUnlock()

	if len(args) == 0 {
		return helpListHTML(cmds)
	}

	name := strings.TrimPrefix(strings.TrimSpace(args[0]), "/")
	if canonical, ok := alias[name]; ok {
		name = canonical
	}
	c, ok := cmds[name]
	if !ok {
		return strings.Join([]string{
			"❓ <b>Unknown command</b>",
			"Type <code>/help</code> to see the command list.",
		}, "\n")
	}
	return helpCommandHTML(c)
}

func helpListHTML(cmds map[string]Command) string {
	type row struct {
		name string
		desc string
		lock bool
	}
	rows := make([]row, 0, len(cmds))
	for name, c := range cmds {
		rows = append(rows, row{name: name, desc: strings.TrimSpace(c.Description), lock: c.Access == AccessOwnerOnly})
	}
	// Owner-only commands sink to the bottom; alphabetical within groups.
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].lock != rows[j].lock {
			return !rows[i].lock
		}
		return rows[i].name < rows[j].name
	})

	lines := []string{
		"📚 <b>Command List</b>",
		"Type <code>/help &lt;cmd&gt;</code> for details.",
		"",
	}
	for _, r := range rows {
		prefix := "• "
		if r.lock {
			prefix = "• 🔒 "
		}
		suffix := ""
		if r.desc != "" {
			suffix = " · " + html.EscapeString(r.desc)
		}
		lines = append(lines, prefix+"<code>/"+html.EscapeString(r.name)+"</code>"+suffix)
	}
	lines = append(lines,
		"",
		"Tip: in Telegram, type <code>/</code> and keep typing to see suggestions (autocomplete).",
	)
	return strings.Join(filterEmpty(lines), "\n")
}

func helpCommandHTML(c Command) string {
	lines := []string{"📚 <b>Help</b> <code>/" + html.EscapeString(c.Name) + "</code>"}

	if d := strings.TrimSpace(c.Description); d != "" {
		lines = append(lines, html.EscapeString(d))
	}
	if c.Access == AccessOwnerOnly {
		lines = append(lines, "🔒 <i>Owner only</i>")
	}
	if u := strings.TrimSpace(c.Usage); u != "" {
		lines = append(lines, "", "<b>Usage</b>", "<code>"+html.EscapeString(u)+"</code>")
	}

	aliases := make([]string, 0, len(c.Aliases))
	for _, a := range c.Aliases {
		if a = strings.TrimSpace(a); a != "" {
			aliases = append(aliases, a)
		}
	}
	if len(aliases) > 0 {
		sort.Strings(aliases)
		lines = append(lines, "", "<b>Shortcut</b>")
		for _, a := range aliases {
			lines = append(lines, "• <code>/"+html.EscapeString(a)+"</code>")
		}
	}

	return strings.Join(filterEmpty(lines), "\n")
}

func filterEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if strings.TrimSpace(s) == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}
