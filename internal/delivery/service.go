package delivery

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	kit "quakebot/internal/transport"
	logx "quakebot/pkg/logx"

	"golang.org/x/time/rate"
)

var ErrNoAdapter = errors.New("delivery: no transport adapter")

const historyCap = 100

// Service is safe for concurrent use; Apply hot-swaps the tuning knobs.
type Service struct {
	mu sync.Mutex

	log     logx.Logger
	adapter kit.Adapter

	cfg     Config
	limiter *rate.Limiter

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, adapter kit.Adapter, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{adapter: adapter, log: log}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	// Defaults
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}

	s.cfg = cfg
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Send delivers one notification, retrying transient failures. It returns nil
// only after the adapter accepted the message (possibly text-only when the
// photo path kept failing).
func (s *Service) Send(ctx context.Context, n kit.Notification) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	ad := s.adapter
	log := s.log
	s.mu.Unlock()

	if ad == nil {
		return ErrNoAdapter
	}
	if strings.TrimSpace(n.Text) == "" {
		return errors.New("delivery: empty notification text")
	}

	maxAttempts := 1 + cfg.RetryMax

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := lim.Wait(ctx); err != nil {
			return err
		}

		callCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
		err := sendOnce(callCtx, ad, n)
		cancel()
		if err == nil {
			s.appendHistory(n, false)
			return nil
		}
		lastErr = err
		log.Debug("delivery attempt failed",
			logx.Err(err), logx.Int("attempt", attempt), logx.Int("max", maxAttempts),
			logx.Int64("chat_id", n.Target.ChatID))

		if attempt >= maxAttempts {
			break
		}
		if err := sleepRetry(ctx, retryDelay(cfg, attempt)); err != nil {
			return err
		}
	}

	// Last resort for photo sends: the alert text still matters even when the
	// artifact is rejected.
	if n.ImagePath != "" {
		if err := lim.Wait(ctx); err != nil {
			return err
		}
		callCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
		_, err := ad.SendText(callCtx, n.Target, n.Text, n.Options)
		cancel()
		if err == nil {
			log.Warn("photo delivery kept failing, sent text only",
				logx.Err(lastErr), logx.Int64("chat_id", n.Target.ChatID))
			s.appendHistory(n, true)
			return nil
		}
		lastErr = err
	}

	return fmt.Errorf("delivery: %w", lastErr)
}

func sendOnce(ctx context.Context, ad kit.Adapter, n kit.Notification) error {
	if n.ImagePath != "" {
		_, err := ad.SendPhoto(ctx, n.Target, n.ImagePath, n.Text, n.Options)
		return err
	}
	_, err := ad.SendText(ctx, n.Target, n.Text, n.Options)
	return err
}

// Snapshot returns recent deliveries, oldest first.
func (s *Service) Snapshot() []HistoryItem {
	s.hmu.Lock()
	out := append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return out
}

func (s *Service) appendHistory(n kit.Notification, textOnly bool) {
	s.hmu.Lock()
	s.history = append(s.history, HistoryItem{At: time.Now(), Target: n.Target, Text: n.Text, TextOnly: textOnly})
	if len(s.history) > historyCap {
		s.history = s.history[len(s.history)-historyCap:]
	}
	s.hmu.Unlock()
}

func sleepRetry(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// retryDelay is exponential from RetryBase, capped at RetryMaxDelay,
// with 0.7..1.3 jitter.
func retryDelay(cfg Config, attempt int) time.Duration {
	d := cfg.RetryBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= cfg.RetryMaxDelay {
			d = cfg.RetryMaxDelay
			break
		}
	}
	j := 0.7 + rand.Float64()*0.6
	d = time.Duration(float64(d) * j)
	if d < 0 {
		return 0
	}
	if d > cfg.RetryMaxDelay {
		d = cfg.RetryMaxDelay
	}
	return d
}
