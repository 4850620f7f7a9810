package router

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"quakebot/internal/quake"
	"quakebot/internal/render"
	kit "quakebot/internal/transport"
	logx "quakebot/pkg/logx"
	"quakebot/pkg/tgui"
)

const (
	configPromptText = "Please choose a minimum magnitude to report on."

	// configPromptExpiry is the answer window for the threshold picker. The
	// Prompts store TTL must exceed it, otherwise a lapsed token is
	// indistinguishable from a consumed one.
	configPromptExpiry = 60 * time.Second

	configExpiredNotice = "Timed out, nothing changed. Re-run /config and choose within 1 minute."
	configLapsedAnswer  = "This prompt has expired. Run /config again."
)

var levelEmoji = [5]string{"0️⃣", "1️⃣", "2️⃣", "3️⃣", "4️⃣"}

// configSession is the server-side state behind one /config prompt. Only the
// short token travels in callback_data.
type configSession struct {
	SubscriberID string         `json:"subscriber_id"`
	Chat         kit.ChatTarget `json:"chat"`
}

// Registry returns the bot's command set and inline-callback routes. The
// command manager injects /help on top of these.
func Registry() ([]Command, []CallbackRoute) {
	cmds := []Command{
		{
			Name:        "start",
			Description: "enable earthquake alerts in this chat",
			Usage:       "/start",
			Access:      AccessEveryone,
			Timeout:     10 * time.Second,
			Handle:      handleStart,
		},
		{
			Name:        "config",
			Aliases:     []string{"cfg"},
			Description: "choose the minimum magnitude to report on",
			Usage:       "/config",
			Access:      AccessEveryone,
			Timeout:     15 * time.Second,
			Handle:      handleConfig,
		},
		{
			Name:        "top10",
			Description: "today's ten strongest earthquakes",
			Usage:       "/top10",
			Access:      AccessEveryone,
			Timeout:     15 * time.Second,
			Handle:      handleTop10,
		},
		{
			Name:        "today",
			Description: "today's earthquake summary",
			Usage:       "/today",
			Access:      AccessEveryone,
			Timeout:     15 * time.Second,
			Handle:      handleToday,
		},
		{
			Name:        "status",
			Description: "operational snapshot",
			Usage:       "/status",
			Access:      AccessOwnerOnly,
			Timeout:     15 * time.Second,
			Handle:      handleStatus,
		},
	}

	cbs := []CallbackRoute{
		{
			Scope:       "config",
			Action:      "set",
			Description: "apply a threshold selection",
			Access:      CallbackAccessEveryone,
			Timeout:     10 * time.Second,
			Handle:      handleConfigSet,
		},
	}

	return cmds, cbs
}

// subscriberID derives the durable registry key for a chat. Chats started via
// /start are keyed by their decimal chat id; config-seeded subscribers keep
// whatever id the operator chose.
func subscriberID(chat kit.ChatTarget) string {
	return strconv.FormatInt(chat.ChatID, 10)
}

func replyError(ctx context.Context, req *Request, err error) error {
	req.Logger.Warn("command failed", logx.Err(err))
	_, _ = req.Adapter.SendText(ctx, req.Chat, "something went wrong, try again later", nil)
	return err
}

func notReady(ctx context.Context, req *Request) error {
	_, err := req.Adapter.SendText(ctx, req.Chat, "not ready yet, try again shortly", nil)
	return err
}

func handleStart(ctx context.Context, req *Request) error {
	svc := req.Services
	if svc == nil || svc.Store == nil {
		return notReady(ctx, req)
	}

	id := subscriberID(req.Chat)
	subs := svc.Store.Subscribers()
	sub, err := subs.GetOrCreate(ctx, id)
	if err != nil {
		return replyError(ctx, req, err)
	}
	if err := subs.BindTarget(ctx, id, req.Chat.ChatID, req.Chat.ThreadID); err != nil {
		return replyError(ctx, req, err)
	}

	msg := tgui.New().
		Title("🌍", "Earthquake alerts enabled").
		Blank().
		Line("This chat now receives USGS earthquake notifications, checked every minute.").
		KV("Reporting", sub.MinSeverity.Label()).
		Blank().
		Line("Use /config to change the minimum level and /help to see every command.").
		Build()
	_, err = msg.Send(ctx, req.Adapter, req.Chat)
	return err
}

func handleConfig(ctx context.Context, req *Request) error {
	svc := req.Services
	if svc == nil || svc.Store == nil || svc.Prompts == nil {
		return notReady(ctx, req)
	}

	id := subscriberID(req.Chat)
	subs := svc.Store.Subscribers()
	if _, err := subs.GetOrCreate(ctx, id); err != nil {
		return replyError(ctx, req, err)
	}
	// A picked threshold is pointless if dispatch cannot deliver afterwards.
	if err := subs.BindTarget(ctx, id, req.Chat.ChatID, req.Chat.ThreadID); err != nil {
		return replyError(ctx, req, err)
	}

	tok, err := svc.Prompts.PutJSON(configSession{SubscriberID: id, Chat: req.Chat})
	if err != nil {
		return replyError(ctx, req, err)
	}

	kb := tgui.NewInline()
	for lvl := quake.ThresholdAll; lvl <= quake.ThresholdSignificant; lvl++ {
		data := tgui.Data("config", "set", strconv.Itoa(int(lvl))+":"+tok)
		kb.Row(tgui.Btn(levelEmoji[lvl]+" "+lvl.Label(), data))
	}

	msg := tgui.New().Line(configPromptText).Inline(kb).Build()
	ref, err := msg.Send(ctx, req.Adapter, req.Chat)
	if err != nil {
		svc.Prompts.Delete(tok)
		return err
	}

	expire := configExpiryFunc(svc.Prompts, req.Adapter, tok, ref)
	if svc.AppSupervisor != nil {
		svc.AppSupervisor.Go("config.prompt.expiry", expire)
	} else {
		// Fallback for minimal/test environments.
		go func() { _ = expire(context.Background()) }()
	}
	return nil
}

// configExpiryFunc waits out the answer window. A token that is still live
// afterwards means nobody picked: strip the keyboard and say nothing changed.
func configExpiryFunc(prompts *tgui.TokenStore, ad kit.Adapter, tok string, ref kit.MessageRef) func(context.Context) error {
	return func(c context.Context) error {
		t := time.NewTimer(configPromptExpiry)
		defer t.Stop()
		select {
		case <-c.Done():
			return nil
		case <-t.C:
		}
		if !prompts.Has(tok) {
			return nil
		}
		prompts.Delete(tok)

		edit := tgui.New().
			Line(configPromptText).
			Blank().
			Line(configExpiredNotice).
			Build()
		ectx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = edit.Edit(ectx, ad, ref)
		return nil
	}
}

func handleConfigSet(ctx context.Context, req *Request, payload string) error {
	svc := req.Services
	cb := req.Update.Callback
	if svc == nil || svc.Store == nil || svc.Prompts == nil || cb == nil {
		return nil
	}

	levelStr, tok, ok := strings.Cut(payload, ":")
	if !ok {
		return nil
	}
	level, err := strconv.Atoi(levelStr)
	if err != nil {
		return req.Adapter.AnswerCallback(ctx, cb.ID, "That is not a valid option.")
	}

	var sess configSession
	if err := svc.Prompts.GetJSON(tok, &sess); err != nil {
		// Lapsed or already answered.
		return req.Adapter.AnswerCallback(ctx, cb.ID, configLapsedAnswer)
	}
	// Consume before applying so a double-tap cannot race two confirmations.
	svc.Prompts.Delete(tok)

	if err := svc.Store.Subscribers().SetThreshold(ctx, sess.SubscriberID, level); err != nil {
		var inv *quake.InvalidThresholdError
		if errors.As(err, &inv) {
			return req.Adapter.AnswerCallback(ctx, cb.ID, "That is not a valid option.")
		}
		req.Logger.Warn("threshold update failed", logx.Err(err))
		return req.Adapter.AnswerCallback(ctx, cb.ID, "Could not save, try again.")
	}

	t, _ := quake.ParseThreshold(level)
	conf := tgui.New().Line(t.Summary()).Build()
	ref := kit.MessageRef{ChatID: cb.ChatID, ThreadID: cb.ThreadID, MessageID: cb.MessageID}
	if err := conf.Edit(ctx, req.Adapter, ref); err != nil {
		// The prompt may have been deleted; confirm with a fresh message.
		if _, e2 := conf.Send(ctx, req.Adapter, req.Chat); e2 != nil {
			return e2
		}
	}
	return req.Adapter.AnswerCallback(ctx, cb.ID, "Saved.")
}

func handleTop10(ctx context.Context, req *Request) error {
	svc := req.Services
	if svc == nil || svc.Store == nil {
		return notReady(ctx, req)
	}
	events, err := svc.Store.Events().All(ctx)
	if err != nil {
		return replyError(ctx, req, err)
	}
	msg := render.TopTen(events, time.Now())
	_, err = msg.Send(ctx, req.Adapter, req.Chat)
	return err
}

func handleToday(ctx context.Context, req *Request) error {
	svc := req.Services
	if svc == nil || svc.Store == nil {
		return notReady(ctx, req)
	}
	events, err := svc.Store.Events().All(ctx)
	if err != nil {
		return replyError(ctx, req, err)
	}
	msg := render.Today(events, time.Now())
	_, err = msg.Send(ctx, req.Adapter, req.Chat)
	return err
}

func handleStatus(ctx context.Context, req *Request) error {
	svc := req.Services
	b := tgui.New().Title("🩺", "quakebot status")
	if svc == nil {
		b.Blank().Line("no services wired")
		_, err := b.Build().Send(ctx, req.Adapter, req.Chat)
		return err
	}

	if !svc.StartedAt.IsZero() {
		b.KV("Uptime", time.Since(svc.StartedAt).Round(time.Second).String())
	}

	if svc.Poll != nil {
		snap := svc.Poll.Snapshot()
		state := "idle"
		if snap.Running {
			state = "running"
		}
		b.KV("Schedule", snap.Schedule)
		b.KV("Cycle", fmt.Sprintf("%s (runs=%d skipped=%d)", state, snap.Runs, snap.SkippedTicks))
		if !snap.NextRun.IsZero() {
			b.KV("Next run", snap.NextRun.UTC().Format(time.RFC3339))
		}
	}

	if svc.Dispatch != nil {
		if rep, ok := svc.Dispatch.LastReport(); ok {
			b.Blank().Section("Last cycle")
			b.KV("Run", rep.RunID)
			b.KV("Fetched", strconv.Itoa(rep.Fetched))
			b.KV("New events", strconv.Itoa(rep.NewEvents))
			b.KV("Sent", fmt.Sprintf("%d (failed=%d)", rep.Sent, rep.Failed))
			b.KV("Took", rep.Duration.Round(time.Millisecond).String())
		}
	}

	if svc.Store != nil {
		evN, err1 := svc.Store.Events().Count(ctx)
		subN, err2 := svc.Store.Subscribers().Count(ctx)
		if err1 == nil && err2 == nil {
			b.Blank().Section("Storage")
			b.KV("Events", strconv.Itoa(evN))
			b.KV("Subscribers", strconv.Itoa(subN))
		}
	}

	if svc.RuntimeSupervisors != nil {
		snaps := svc.RuntimeSupervisors.Snapshot()
		if len(snaps) > 0 {
			b.Blank().Section("Supervisors")
			names := make([]string, 0, len(snaps))
			for name := range snaps {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				sup := snaps[name]
				if sup == nil {
					continue
				}
				ss := sup.Snapshot()
				line := fmt.Sprintf("active=%d started=%d", ss.Counters.Active, ss.Counters.Started)
				if ss.FirstError != "" {
					line += " err=" + tgui.TruncRunes(ss.FirstError, 80)
				}
				b.KV(name, line)
			}
		}
	}

	_, err := b.Build().Send(ctx, req.Adapter, req.Chat)
	return err
}
