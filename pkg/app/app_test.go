package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/koding/multiconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgsim/devicectl/pkg/config"
	"github.com/pgsim/devicectl/pkg/datasource"
	"github.com/pgsim/devicectl/pkg/session"
	"github.com/pgsim/devicectl/pkg/store"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	require.NoError(t, (&multiconfig.TagLoader{}).Load(cfg))
	cfg.ListenAddr = "127.0.0.1:0"
	return cfg
}

func getJSON(t *testing.T, url string) map[string]interface{} {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := map[string]interface{}{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func waitDone(t *testing.T, a *App) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		a.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("app did not shut down")
	}
}

func TestStartServesOffline(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	a := New(testConfig(t))
	require.NoError(t, a.Start(ctx))

	body := getJSON(t, fmt.Sprintf("http://%s/health", a.Addr()))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "not configured", body["kernel"])

	cancel()
	waitDone(t, a)
}

func TestSessionRestoreAndShutdownSave(t *testing.T) {
	mr := miniredis.RunT(t)

	// seed the session a previous run would have left behind
	seed := store.New()
	seed.SetManual("sgen-1", datasource.ManualSetpoint{ActivePowerKW: 7})
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	mgr := session.NewManager(session.NewRedisKV(client), "default", time.Hour)
	require.NoError(t, mgr.Save(context.Background(), seed.Snapshot()))

	cfg := testConfig(t)
	cfg.RedisAddr = mr.Addr()

	ctx, cancel := context.WithCancel(context.Background())
	a := New(cfg)
	require.NoError(t, a.Start(ctx))

	body := getJSON(t, fmt.Sprintf("http://%s/api/v1/configs", a.Addr()))
	configs := body["configs"].(map[string]interface{})
	require.Contains(t, configs, "sgen-1")

	req, err := http.NewRequest("PUT",
		fmt.Sprintf("http://%s/api/v1/configs/load-9/manual", a.Addr()),
		strings.NewReader(`{"activePower":3}`))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	waitDone(t, a)

	snap, err := mgr.Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Contains(t, snap.Configs, "sgen-1")
	assert.Contains(t, snap.Configs, "load-9")
}
