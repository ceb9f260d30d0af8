package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/adapters/standby"
	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/audit"
	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/domain/device"
	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/domain/restriction"
	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/domain/tracker"
	"github.com/GriffinCanCode/AgentOS/bgrestrict/internal/shared/types"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	mail    = "com.example.mail"
	game    = "com.example.game"
	mailUID = device.FirstAppID
	gameUID = device.FirstAppID + 1
)

type harness struct {
	t        *testing.T
	router   *gin.Engine
	dev      *device.Device
	ctl      *restriction.Controller
	handlers *Handlers
}

func newHarness(t *testing.T, ready bool) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dev := device.New(nil)
	_, err := dev.Install(mail, 0, types.BucketActive)
	require.NoError(t, err)
	_, err = dev.Install(game, 0, types.BucketRare)
	require.NoError(t, err)

	registry, err := tracker.NewRegistry()
	require.NoError(t, err)
	ctl, err := restriction.NewController(dev.Collaborators(), registry, nil)
	require.NoError(t, err)
	dev.Attach(ctl)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ctl.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	h := &harness{t: t, dev: dev, ctl: ctl, handlers: NewHandlers(ctl, dev, nil)}
	h.router = gin.New()
	h.handlers.Register(h.router)

	if ready {
		ctl.OnSystemReady()
		h.settle()
	}
	return h
}

func (h *harness) settle() {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		require.NoError(h.t, h.ctl.Sync(ctx))
		if h.ctl.QueueLen() == 0 {
			return
		}
	}
}

func (h *harness) do(method, path string, body any) *httptest.ResponseRecorder {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(h.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (h *harness) level(pkg string) PackageLevelResponse {
	h.t.Helper()
	w := h.do("GET", "/v1/users/0/packages/"+pkg+"/level", nil)
	require.Equal(h.t, http.StatusOK, w.Code, w.Body.String())
	return decode[PackageLevelResponse](h.t, w)
}

func TestRootAndHealth(t *testing.T) {
	h := newHarness(t, true)

	w := h.do("GET", "/", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "bgrestrict", decode[map[string]any](t, w)["service"])

	w = h.do("GET", "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	health := decode[map[string]any](t, w)
	assert.Equal(t, true, health["ready"])
	assert.Equal(t, false, health["history"])
}

func TestHealthBeforeReady(t *testing.T) {
	h := newHarness(t, false)

	w := h.do("GET", "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "starting", decode[map[string]any](t, w)["status"])
}

func TestLevels(t *testing.T) {
	h := newHarness(t, true)

	w := h.do("GET", "/v1/levels", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Levels []restriction.PackageState `json:"levels"`
		Count  int                        `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 2, list.Count)

	w = h.do("GET", "/v1/levels/10000", nil)
	require.Equal(t, http.StatusOK, w.Code)
	byUID := decode[UIDLevelResponse](t, w)
	assert.Equal(t, types.LevelAdaptiveBucket, byUID.Level)
	require.Len(t, byUID.Packages, 1)
	assert.Equal(t, mail, byUID.Packages[0].PackageName)

	lvl := h.level(mail)
	assert.Equal(t, mailUID, lvl.UID)
	assert.Equal(t, types.LevelAdaptiveBucket, lvl.Level)
	assert.Equal(t, types.ReasonUserFlag.String(), lvl.Reason)
	assert.False(t, lvl.Active)

	assert.Equal(t, http.StatusNotFound, h.do("GET", "/v1/users/0/packages/com.example.none/level", nil).Code)
	assert.Equal(t, http.StatusBadRequest, h.do("GET", "/v1/levels/abc", nil).Code)
}

func TestBackgroundRestrictionFlag(t *testing.T) {
	h := newHarness(t, true)

	w := h.do("PUT", "/v1/users/0/packages/"+mail+"/background-restriction", FlagRequest{Enabled: true})
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())
	h.settle()

	assert.Equal(t, types.LevelBackgroundRestricted, h.level(mail).Level)
	w = h.do("GET", "/v1/users/0/packages/"+mail, nil)
	require.Equal(t, http.StatusOK, w.Code)
	info := decode[device.PackageInfo](t, w)
	assert.True(t, info.BackgroundRestricted)
	assert.Equal(t, types.BucketRestricted, info.Bucket)
}

func TestHibernationRefreshesUID(t *testing.T) {
	h := newHarness(t, true)

	w := h.do("PUT", "/v1/users/0/packages/"+game+"/hibernation", FlagRequest{Enabled: true})
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())
	h.settle()
	assert.Equal(t, types.LevelHibernation, h.level(game).Level)

	w = h.do("PUT", "/v1/users/0/packages/com.example.none/hibernation", FlagRequest{Enabled: true})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSetBucketAndInteraction(t *testing.T) {
	h := newHarness(t, true)

	w := h.do("PUT", "/v1/users/0/packages/"+game+"/bucket", map[string]string{"bucket": "never"})
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())
	h.settle()
	assert.Equal(t, types.LevelBackgroundRestricted, h.level(game).Level)

	w = h.do("PUT", "/v1/users/0/packages/"+game+"/bucket", map[string]string{"bucket": "sometimes"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do("POST", "/v1/users/0/packages/"+game+"/interaction", nil)
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())
	info, err := h.dev.Package(game, 0)
	require.NoError(t, err)
	assert.Equal(t, types.BucketActive, info.Bucket)
}

func TestRefresh(t *testing.T) {
	h := newHarness(t, true)
	uid := mailUID
	user := 0

	tests := []struct {
		name       string
		body       RefreshRequest
		wantStatus int
		wantScope  string
	}{
		{name: "everything", body: RefreshRequest{}, wantStatus: http.StatusAccepted, wantScope: "all"},
		{name: "one uid and wait", body: RefreshRequest{UID: &uid, Wait: true}, wantStatus: http.StatusOK, wantScope: "uid"},
		{name: "one user", body: RefreshRequest{UserID: &user, Reason: "usage-user_interaction"}, wantStatus: http.StatusAccepted, wantScope: "user"},
		{name: "both scopes", body: RefreshRequest{UID: &uid, UserID: &user}, wantStatus: http.StatusBadRequest},
		{name: "bad reason", body: RefreshRequest{Reason: "whim"}, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := h.do("POST", "/v1/refresh", tt.body)
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantScope != "" {
				assert.Equal(t, tt.wantScope, decode[map[string]any](t, w)["scope"])
			}
		})
	}
	h.settle()
	assert.Equal(t, types.LevelAdaptiveBucket, h.level(mail).Level)
}

func TestUsersAndPackages(t *testing.T) {
	h := newHarness(t, true)

	assert.Equal(t, http.StatusCreated, h.do("POST", "/v1/users", AddUserRequest{ID: 10}).Code)
	assert.Equal(t, http.StatusConflict, h.do("POST", "/v1/users", AddUserRequest{ID: 10}).Code)
	assert.Equal(t, http.StatusNoContent, h.do("POST", "/v1/users/10/start", nil).Code)

	bucket := types.BucketRare
	w := h.do("POST", "/v1/users/10/packages", InstallRequest{Name: mail, Bucket: &bucket})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	info := decode[device.PackageInfo](t, w)
	assert.Equal(t, types.UID(10, mailUID), info.UID)
	assert.Equal(t, types.BucketRare, info.Bucket)

	h.settle()
	assert.Equal(t, types.LevelAdaptiveBucket, h.ctl.PackageLevel(info.UID, mail))

	w = h.do("GET", "/v1/users/10/packages", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Packages []device.PackageInfo `json:"packages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list.Packages, 1)

	assert.Equal(t, http.StatusNoContent, h.do("DELETE", "/v1/users/10/packages/"+mail, nil).Code)
	assert.Equal(t, http.StatusNotFound, h.do("DELETE", "/v1/users/10/packages/"+mail, nil).Code)
	assert.Equal(t, http.StatusBadRequest, h.do("POST", "/v1/users/10/packages", map[string]string{}).Code)
	assert.Equal(t, http.StatusNotFound, h.do("POST", "/v1/users/7/packages", InstallRequest{Name: mail}).Code)
	assert.Equal(t, http.StatusBadRequest, h.do("POST", "/v1/users/abc/stop", nil).Code)
	assert.Equal(t, http.StatusNoContent, h.do("DELETE", "/v1/users/10", nil).Code)
	assert.Equal(t, http.StatusNotFound, h.do("DELETE", "/v1/users/10", nil).Code)
}

func TestProcesses(t *testing.T) {
	h := newHarness(t, true)

	w := h.do("POST", "/v1/processes/10000", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, device.StateForeground, decode[device.Process](t, w).State)
	h.settle()
	assert.True(t, h.level(mail).Active)

	assert.Equal(t, http.StatusNotFound, h.do("POST", "/v1/processes/99999", nil).Code)
	assert.Equal(t, http.StatusNotFound, h.do("POST", "/v1/processes/10001/focus", nil).Code)

	w = h.do("PUT", "/v1/processes/10000/disabled", DisabledRequest{Disabled: true})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[device.Process](t, w).Disabled)

	w = h.do("POST", "/v1/processes/10000/background", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, device.StateBackground, decode[device.Process](t, w).State)

	w = h.do("GET", "/v1/processes?state=background", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Processes []device.Process    `json:"processes"`
		Stats     device.ProcessStats `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list.Processes, 1)
	assert.Equal(t, 1, list.Stats.Background)

	assert.Equal(t, http.StatusBadRequest, h.do("GET", "/v1/processes?state=sleeping", nil).Code)
	assert.Equal(t, http.StatusNoContent, h.do("DELETE", "/v1/processes/10000", nil).Code)
	assert.Equal(t, http.StatusNotFound, h.do("DELETE", "/v1/processes/10000", nil).Code)
}

func TestProperties(t *testing.T) {
	h := newHarness(t, true)

	w := h.do("PATCH", "/v1/properties", map[string]string{"bg_policy": "strict", "other": "x"})
	require.Equal(t, http.StatusOK, w.Code)
	var changed struct {
		Changed []string `json:"changed"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &changed))
	assert.Equal(t, []string{"bg_policy", "other"}, changed.Changed)

	w = h.do("PATCH", "/v1/properties", map[string]string{"bg_policy": "strict"})
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &changed))
	assert.Empty(t, changed.Changed)

	w = h.do("GET", "/v1/properties", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"bg_policy":"strict"`)

	w = h.do("PATCH", "/v1/properties", map[string]string{"BG Policy": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEscalations(t *testing.T) {
	h := newHarness(t, true)
	h.dev.RequestEscalation(mail, mailUID)

	w := h.do("GET", "/v1/escalations", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Requests []device.EscalationRequest `json:"requests"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Requests, 1)

	w = h.do("POST", "/v1/escalations/"+list.Requests[0].ID, EscalationDecision{Approve: true})
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())
	h.settle()
	assert.Equal(t, types.LevelBackgroundRestricted, h.level(mail).Level)

	w = h.do("POST", "/v1/escalations/"+list.Requests[0].ID, EscalationDecision{})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDump(t *testing.T) {
	h := newHarness(t, true)

	w := h.do("GET", "/v1/dump", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")
	assert.Contains(t, w.Body.String(), "BACKGROUND RESTRICTION LEVEL SETTINGS")
	assert.Contains(t, w.Body.String(), mail)
}

func TestTrackers(t *testing.T) {
	h := newHarness(t, true)

	w := h.do("GET", "/v1/trackers", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"trackers":[]}`, w.Body.String())
}

type fakeHistory struct {
	records []audit.Record
	err     error
	gotUID  int
	gotPkg  string
}

func (f *fakeHistory) History(_ context.Context, uid int, pkg string, limit int) ([]audit.Record, error) {
	f.gotUID, f.gotPkg = uid, pkg
	return f.records[:min(limit, len(f.records))], f.err
}

func (f *fakeHistory) Recent(_ context.Context, limit int) ([]audit.Record, error) {
	return f.records[:min(limit, len(f.records))], f.err
}

func TestHistory(t *testing.T) {
	h := newHarness(t, true)
	assert.Equal(t, http.StatusServiceUnavailable, h.do("GET", "/v1/history", nil).Code)

	history := &fakeHistory{records: []audit.Record{
		{ID: 2, UID: mailUID, Package: mail, Level: types.LevelBackgroundRestricted, Previous: types.LevelAdaptiveBucket},
		{ID: 1, UID: mailUID, Package: mail, Level: types.LevelAdaptiveBucket},
	}}
	h.handlers.WithHistory(history)

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantCount  int
	}{
		{"recent", "", http.StatusOK, 2},
		{"limited", "?limit=1", http.StatusOK, 1},
		{"by package", "?uid=10000&package=" + mail, http.StatusOK, 2},
		{"package without uid", "?package=" + mail, http.StatusBadRequest, 0},
		{"bad limit", "?limit=-3", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := h.do("GET", "/v1/history"+tt.query, nil)
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantStatus == http.StatusOK {
				assert.EqualValues(t, tt.wantCount, decode[map[string]any](t, w)["count"])
			}
		})
	}
	assert.Equal(t, mailUID, history.gotUID)
	assert.Equal(t, mail, history.gotPkg)

	history.err = errors.New("disk gone")
	assert.Equal(t, http.StatusInternalServerError, h.do("GET", "/v1/history", nil).Code)
}

func TestStandbyRoutesServeTheAdapter(t *testing.T) {
	h := newHarness(t, true)
	srv := httptest.NewServer(h.router)
	defer srv.Close()

	cfg := standby.DefaultConfig(srv.URL)
	cfg.RetryMax = 0
	client, err := standby.New(cfg, nil)
	require.NoError(t, err)
	ctx := context.Background()

	bucket, err := client.Bucket(ctx, mail, 0)
	require.NoError(t, err)
	assert.Equal(t, types.BucketActive, bucket)

	buckets, err := client.Buckets(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []restriction.AppStandbyInfo{
		{PackageName: game, Bucket: types.BucketRare},
		{PackageName: mail, Bucket: types.BucketActive},
	}, buckets)

	require.NoError(t, client.Restrict(ctx, game, 0, types.ReasonUserFlag))
	bucket, err = client.Bucket(ctx, game, 0)
	require.NoError(t, err)
	assert.Equal(t, types.BucketRestricted, bucket)

	require.NoError(t, client.Unrestrict(ctx, game, 0, types.ReasonUserFlag, types.ReasonUsageByUser))
	bucket, err = client.Bucket(ctx, game, 0)
	require.NoError(t, err)
	assert.Equal(t, types.BucketRare, bucket)

	_, err = client.Bucket(ctx, "com.example.none", 0)
	assert.ErrorIs(t, err, restriction.ErrPackageNotFound)
}
