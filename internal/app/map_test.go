package app

import (
	"strings"
	"testing"
	"time"
)

func TestMapStorageConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		driver     string
		busy       string
		wantDriver string
		wantBusy   time.Duration
		wantErr    string
	}{
		{name: "default is file", driver: "", wantDriver: "file"},
		{name: "file", driver: "file", wantDriver: "file"},
		{name: "sqlite default busy", driver: "sqlite", wantDriver: "sqlite", wantBusy: time.Second},
		{name: "sqlite3 alias", driver: "sqlite3", busy: "250ms", wantDriver: "sqlite", wantBusy: 250 * time.Millisecond},
		{name: "unknown driver", driver: "bolt", wantErr: "unknown storage.driver"},
		{name: "bad busy timeout", driver: "sqlite", busy: "soon", wantErr: "storage.busy_timeout"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := &Config{}
			cfg.Storage.Driver = tt.driver
			cfg.Storage.Path = "./data/test.db"
			cfg.Storage.BusyTimeout = tt.busy

			sc, err := mapStorageConfig(cfg)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("mapStorageConfig() err = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("mapStorageConfig() err = %v", err)
			}
			if sc.Driver != tt.wantDriver {
				t.Fatalf("driver = %q, want %q", sc.Driver, tt.wantDriver)
			}
			if sc.BusyTimeout != tt.wantBusy {
				t.Fatalf("busy timeout = %v, want %v", sc.BusyTimeout, tt.wantBusy)
			}
			if sc.Path != "./data/test.db" {
				t.Fatalf("path = %q, want it passed through", sc.Path)
			}
		})
	}
}

func TestMapPollConfigRejectsBadSchedule(t *testing.T) {
	t.Parallel()

	cfg := &Config{}
	cfg.Poll.Schedule = "every minute or so"
	if _, err := mapPollConfig(cfg); err == nil {
		t.Fatal("mapPollConfig() accepted a bogus schedule")
	}

	cfg.Poll.Schedule = "@every 60s"
	cfg.Poll.CycleTimeout = "45s"
	pc, err := mapPollConfig(cfg)
	if err != nil {
		t.Fatalf("mapPollConfig() err = %v", err)
	}
	if pc.Schedule != "@every 60s" || pc.CycleTimeout != 45*time.Second {
		t.Fatalf("unexpected poll config: %+v", pc)
	}
}

func TestMapAdapterConfigDefaultsPollTimeout(t *testing.T) {
	t.Parallel()

	cfg := &Config{}
	cfg.Telegram.Token = "123:abc"
	ac, err := mapAdapterConfig(cfg)
	if err != nil {
		t.Fatalf("mapAdapterConfig() err = %v", err)
	}
	if ac.PollTimeout != 10*time.Second {
		t.Fatalf("poll timeout = %v, want default 10s", ac.PollTimeout)
	}
	if ac.Token != "123:abc" {
		t.Fatalf("token = %q, want it passed through", ac.Token)
	}
}
