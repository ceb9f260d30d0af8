package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apihttp "github.com/GriffinCanCode/AgentOS/bgrestrict/internal/api/http"
	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/api/ws"
	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/shared/types"
)

const manifest = `
packages:
  - name: com.example.mail
    app_id: 10050
    bucket: active
  - name: com.example.game
    app_id: 10051
    bucket: rare
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func testConfig(t *testing.T) (*config.Config, string) {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "device.yaml"), manifest)
	writeFile(t, filepath.Join(dir, "policies", "base.yaml"), "rules: []\n")

	cfg := config.Default()
	cfg.Logging.Development = true
	cfg.RateLimit.Enabled = false
	cfg.Device.ManifestPath = filepath.Join(dir, "device.yaml")
	cfg.Policy.Glob = filepath.Join(dir, "policies", "*.yaml")
	cfg.Audit.Path = filepath.Join(dir, "audit.db")
	cfg.Server.ShutdownTimeout = 5 * time.Second
	return cfg, dir
}

func packageLevel(client *resty.Client, pkg string) types.RestrictionLevel {
	var out apihttp.PackageLevelResponse
	resp, err := client.R().SetResult(&out).Get("/v1/users/0/packages/" + pkg + "/level")
	if err != nil || resp.StatusCode() != 200 {
		return types.LevelUnknown
	}
	return out.Level
}

func TestServerEndToEnd(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg, dir := testConfig(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv, err := newServer(ctx, cfg, logging.NewNop())
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	base := "http://" + ln.Addr().String()
	client := resty.New().SetBaseURL(base).SetTimeout(5 * time.Second)

	require.Eventually(t, func() bool {
		resp, err := client.R().Get("/health")
		return err == nil && resp.StatusCode() == 200
	}, 5*time.Second, 20*time.Millisecond)

	assert.Eventually(t, func() bool {
		return packageLevel(client, "com.example.mail") == types.LevelAdaptiveBucket
	}, 5*time.Second, 20*time.Millisecond)

	// Stream level changes while the user restricts the game.
	wsURL := "ws" + strings.TrimPrefix(base, "http") + "/v1/stream?uid=10051"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var hello ws.Message
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, ws.TypeHello, hello.Type)

	resp, err := client.R().
		SetBody(apihttp.FlagRequest{Enabled: true}).
		Put("/v1/users/0/packages/com.example.game/background-restriction")
	require.NoError(t, err)
	require.Equal(t, 204, resp.StatusCode(), resp.String())

	var change ws.Message
	require.NoError(t, conn.ReadJSON(&change))
	require.Equal(t, ws.TypeLevelChanged, change.Type)
	assert.Equal(t, 10051, change.Change.UID)
	assert.Equal(t, types.LevelBackgroundRestricted, change.Change.Level)

	// A policy edit is picked up by the watcher and reevaluated.
	writeFile(t, filepath.Join(dir, "policies", "base.yaml"),
		"rules:\n  - package: com.example.mail\n    level: restricted_bucket\n")
	assert.Eventually(t, func() bool {
		return packageLevel(client, "com.example.mail") == types.LevelRestrictedBucket
	}, 10*time.Second, 50*time.Millisecond)

	// Transitions reach the audit history.
	assert.Eventually(t, func() bool {
		resp, err := client.R().Get("/v1/history?uid=10050&package=com.example.mail")
		if err != nil || resp.StatusCode() != 200 {
			return false
		}
		var out struct {
			Count int `json:"count"`
		}
		return json.Unmarshal(resp.Body(), &out) == nil && out.Count >= 2
	}, 5*time.Second, 50*time.Millisecond)

	resp, err = client.R().Get("/metrics")
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode())
	assert.Contains(t, resp.String(), "bgrestrict_level_transitions_total")

	// A gzip client gets the exposition encoded exactly once.
	resp, err = client.R().
		SetHeader("Accept-Encoding", "gzip").
		SetDoNotParseResponse(true).
		Get("/metrics")
	require.NoError(t, err)
	raw := resp.RawBody()
	defer raw.Close()
	assert.Equal(t, "gzip", resp.Header().Get("Content-Encoding"))
	zr, err := gzip.NewReader(raw)
	require.NoError(t, err)
	body, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Contains(t, string(body), "bgrestrict_level_transitions_total")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestNewServerErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name   string
		mutate func(cfg *config.Config, dir string)
	}{
		{"missing manifest", func(cfg *config.Config, dir string) {
			cfg.Device.ManifestPath = filepath.Join(dir, "nope.yaml")
		}},
		{"unwatchable policy dir", func(cfg *config.Config, dir string) {
			cfg.Policy.Glob = filepath.Join(dir, "missing", "*.yaml")
		}},
		{"bad audit path", func(cfg *config.Config, dir string) {
			cfg.Audit.Path = filepath.Join(dir, "missing", "audit.db")
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, dir := testConfig(t)
			tt.mutate(cfg, dir)
			_, err := newServer(context.Background(), cfg, logging.NewNop())
			assert.Error(t, err)
		})
	}
}

func TestNewServerWithoutOptionalParts(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := config.Default()
	cfg.Logging.Development = true

	srv, err := newServer(context.Background(), cfg, logging.NewNop())
	require.NoError(t, err)
	defer srv.Close()

	assert.Nil(t, srv.store)
	assert.Nil(t, srv.reloader)
	assert.Empty(t, srv.Controller().Trackers().Names())
	assert.Equal(t, []int{0}, srv.Device().UserIDs())
	assert.NotNil(t, srv.Router())
}
