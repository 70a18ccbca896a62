package main

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	clock "github.com/CodeAndHammer/memorama/internal/clock"
	config "github.com/CodeAndHammer/memorama/internal/config"
	constants "github.com/CodeAndHammer/memorama/internal/constants"
	models "github.com/CodeAndHammer/memorama/internal/models"
)

var pngBytes = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

type testClient struct {
	t       *testing.T
	router  *gin.Engine
	cookies map[string]*http.Cookie
}

func newTestServer(t *testing.T) (*models.App, *clock.Manual, *testClient) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	sched := clock.NewManual()
	app := newApp(config.Config{
		CookieMaxAge:   time.Hour,
		RateLimitRPS:   100,
		RateLimitBurst: 100,
		RateLimiterTTL: time.Hour,
		SessionTTL:     time.Hour,
		MaxUploadBytes: 1 << 20,
	}, sched)
	router, err := newRouter(app, "templates", "./static")
	if err != nil {
		t.Fatalf("newRouter: %v", err)
	}
	client := &testClient{t: t, router: router, cookies: map[string]*http.Cookie{}}
	client.do(http.MethodGet, constants.RouteHome, nil, "", false)
	return app, sched, client
}

func (tc *testClient) do(method, path string, body io.Reader, contentType string, htmx bool) *httptest.ResponseRecorder {
	tc.t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if htmx {
		req.Header.Set("HX-Request", "true")
	}
	for _, ck := range tc.cookies {
		req.AddCookie(ck)
	}
	if ck, ok := tc.cookies[constants.CSRFCookieName]; ok && method != http.MethodGet {
		req.Header.Set("X-CSRF-Token", ck.Value)
	}
	w := httptest.NewRecorder()
	tc.router.ServeHTTP(w, req)
	for _, ck := range w.Result().Cookies() {
		tc.cookies[ck.Name] = ck
	}
	return w
}

func (tc *testClient) postForm(path string, values url.Values) *httptest.ResponseRecorder {
	return tc.do(http.MethodPost, path, strings.NewReader(values.Encode()), "application/x-www-form-urlencoded", true)
}

func (tc *testClient) upload(n int) *httptest.ResponseRecorder {
	tc.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for i := 0; i < n; i++ {
		fw, err := mw.CreateFormFile("images", fmt.Sprintf("img-%d.png", i))
		if err != nil {
			tc.t.Fatalf("CreateFormFile: %v", err)
		}
		fw.Write(append(append([]byte{}, pngBytes...), byte(i)))
	}
	mw.Close()
	return tc.do(http.MethodPost, constants.RouteUpload, &buf, mw.FormDataContentType(), true)
}

func onlyGame(t *testing.T, app *models.App) *models.GameState {
	t.Helper()
	if len(app.GameSessions) != 1 {
		t.Fatalf("have %d sessions, want 1", len(app.GameSessions))
	}
	for _, gs := range app.GameSessions {
		return gs
	}
	return nil
}

func TestHomeRendersSetup(t *testing.T) {
	_, _, client := newTestServer(t)
	w := client.do(http.MethodGet, constants.RouteHome, nil, "", false)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Prepara el Juego") {
		t.Error("setup panel not rendered")
	}
	if _, ok := client.cookies[constants.SessionCookieName]; !ok {
		t.Error("session cookie missing")
	}
	if _, ok := client.cookies[constants.CSRFCookieName]; !ok {
		t.Error("csrf cookie missing")
	}
}

func TestPostWithoutCSRFRejected(t *testing.T) {
	_, _, client := newTestServer(t)
	delete(client.cookies, constants.CSRFCookieName)
	w := client.do(http.MethodPost, constants.RouteStart, nil, "", true)
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
}

func TestUploadWrongCount(t *testing.T) {
	app, _, client := newTestServer(t)
	for _, n := range []int{4, 6} {
		w := client.upload(n)
		if !strings.Contains(w.Body.String(), constants.MessageUploadCount) {
			t.Errorf("upload of %d: notice missing", n)
		}
		if !strings.Contains(w.Header().Get("HX-Trigger"), constants.ErrorCodeInvalidImageCount) {
			t.Errorf("upload of %d: HX-Trigger = %q", n, w.Header().Get("HX-Trigger"))
		}
	}
	w := client.postForm(constants.RouteStart, url.Values{})
	if !strings.Contains(w.Body.String(), constants.MessageStartCount) {
		t.Error("start without images: notice missing")
	}
	if gs := onlyGame(t, app); gs.Phase != models.PhaseSetup {
		t.Errorf("Phase = %s, want setup", gs.Phase)
	}
}

func TestFullGameAndExport(t *testing.T) {
	app, sched, client := newTestServer(t)

	if w := client.upload(constants.PairCount); strings.Contains(w.Body.String(), constants.MessageUploadCount) {
		t.Fatal("valid upload rejected")
	}
	w := client.postForm(constants.RouteStart, url.Values{})
	if !strings.Contains(w.Body.String(), "Tiempo:") {
		t.Fatal("board not rendered after start")
	}

	sched.Advance(2 * time.Second)
	if w := client.do(http.MethodGet, constants.RouteBoard, nil, "", true); !strings.Contains(w.Body.String(), "33s") {
		t.Error("board does not show the ticking clock")
	}

	for k := 0; k < constants.PairCount; k++ {
		client.postForm(constants.RouteFlip, url.Values{"id": {fmt.Sprint(2 * k)}})
		w = client.postForm(constants.RouteFlip, url.Values{"id": {fmt.Sprint(2*k + 1)}})
	}
	if !strings.Contains(w.Body.String(), constants.MessageWon) {
		t.Fatalf("win banner missing, phase %s", onlyGame(t, app).Phase)
	}

	w = client.postForm(constants.RouteParticipant, url.Values{"name": {"Ana"}, "email": {"a@x.com"}, "university": {""}})
	if !strings.Contains(w.Body.String(), constants.MessageIncomplete) {
		t.Error("incomplete submission accepted")
	}
	w = client.postForm(constants.RouteParticipant, url.Values{"name": {"Ana"}, "email": {"a@x.com"}, "university": {"UNI"}})
	if !strings.Contains(w.Body.String(), "Gracias por participar") {
		t.Fatal("confirmation missing")
	}
	client.postForm(constants.RouteParticipant, url.Values{"name": {"Ana"}, "email": {"a@x.com"}, "university": {"UNI"}})
	if len(app.Participants) != 1 {
		t.Fatalf("participants = %d, want 1", len(app.Participants))
	}

	w = client.do(http.MethodGet, constants.RouteExport, nil, "", false)
	if w.Code != http.StatusOK {
		t.Fatalf("export status = %d", w.Code)
	}
	if got := w.Body.String(); got != "Nombre,Email,Universidad\n\"Ana\",\"a@x.com\",\"UNI\"" {
		t.Errorf("export body = %q", got)
	}
	if ct := w.Header().Get("Content-Type"); ct != constants.ExportContentType {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, constants.ExportFileName) {
		t.Errorf("Content-Disposition = %q", cd)
	}

	w = client.postForm(constants.RoutePlayAgain, url.Values{})
	if !strings.Contains(w.Body.String(), "Prepara el Juego") {
		t.Error("play again did not return to setup")
	}
	if !strings.Contains(w.Body.String(), "1 registro(s)") {
		t.Error("record count lost after play again")
	}
}

func playToWin(t *testing.T, client *testClient) {
	t.Helper()
	client.upload(constants.PairCount)
	client.postForm(constants.RouteStart, url.Values{})
	var w *httptest.ResponseRecorder
	for k := 0; k < constants.PairCount; k++ {
		client.postForm(constants.RouteFlip, url.Values{"id": {fmt.Sprint(2 * k)}})
		w = client.postForm(constants.RouteFlip, url.Values{"id": {fmt.Sprint(2*k + 1)}})
	}
	if !strings.Contains(w.Body.String(), constants.MessageWon) {
		t.Fatal("game not won")
	}
}

func TestParticipantFormRejectsMissingAndBlankFields(t *testing.T) {
	app, _, client := newTestServer(t)
	playToWin(t, client)

	cases := []struct {
		name   string
		values url.Values
	}{
		{"university absent", url.Values{"name": {"Ana"}, "email": {"a@x.com"}}},
		{"no fields", url.Values{}},
		{"whitespace only", url.Values{"name": {"Ana"}, "email": {"   "}, "university": {"UNI"}}},
	}
	for _, tc := range cases {
		w := client.postForm(constants.RouteParticipant, tc.values)
		if !strings.Contains(w.Body.String(), constants.MessageIncomplete) {
			t.Errorf("%s: incomplete notice missing", tc.name)
		}
		if len(app.Participants) != 0 {
			t.Fatalf("%s: stored %d record(s)", tc.name, len(app.Participants))
		}
	}

	w := client.postForm(constants.RouteParticipant, url.Values{"name": {" Ana "}, "email": {"a@x.com"}, "university": {"UNI"}})
	if !strings.Contains(w.Body.String(), "Gracias por participar") {
		t.Fatal("valid submission rejected")
	}
	if got := app.Participants[0].Name; got != "Ana" {
		t.Errorf("stored name %q, want trimmed %q", got, "Ana")
	}
}

func TestLossByTimeout(t *testing.T) {
	app, sched, client := newTestServer(t)
	client.upload(constants.PairCount)
	client.postForm(constants.RouteStart, url.Values{})

	sched.Advance(time.Duration(constants.GameDuration) * time.Second)
	w := client.do(http.MethodGet, constants.RouteBoard, nil, "", true)
	if !strings.Contains(w.Body.String(), constants.MessageLost) {
		t.Errorf("loss banner missing, phase %s", onlyGame(t, app).Phase)
	}
	if strings.Contains(w.Body.String(), `hx-trigger="every 1s"`) {
		t.Error("finished board still polls")
	}
}

func TestEmptyExport(t *testing.T) {
	_, _, client := newTestServer(t)
	w := client.do(http.MethodGet, constants.RouteExport, nil, "", false)
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
	if !strings.Contains(w.Body.String(), constants.MessageEmptyExport) {
		t.Error("empty export notice missing")
	}
	if w.Header().Get("Content-Disposition") != "" {
		t.Error("empty export offered a download")
	}
}

func TestImageServed(t *testing.T) {
	app, _, client := newTestServer(t)
	client.upload(constants.PairCount)
	gs := onlyGame(t, app)
	if len(gs.Images) != constants.PairCount {
		t.Fatalf("stored %d images", len(gs.Images))
	}

	w := client.do(http.MethodGet, string(gs.Images[0]), nil, "", false)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q, want image/png", ct)
	}

	if w := client.do(http.MethodGet, constants.RouteImages+"/missing", nil, "", false); w.Code != http.StatusNotFound {
		t.Errorf("missing image status = %d", w.Code)
	}
}

func TestQRCode(t *testing.T) {
	_, _, client := newTestServer(t)
	w := client.do(http.MethodGet, constants.RouteQRCode, nil, "", false)
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "image/png" {
		t.Errorf("status = %d, Content-Type = %q", w.Code, w.Header().Get("Content-Type"))
	}
	if !bytes.HasPrefix(w.Body.Bytes(), pngBytes[:8]) {
		t.Error("QR response is not a PNG")
	}
}

func TestHealthz(t *testing.T) {
	_, _, client := newTestServer(t)
	w := client.do(http.MethodGet, constants.RouteHealthz, nil, "", false)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Errorf("healthz = %d %s", w.Code, w.Body.String())
	}
}

func TestCleanupStaleRateLimiters(t *testing.T) {
	app := newApp(config.Config{RateLimitRPS: 1, RateLimitBurst: 1, RateLimiterTTL: time.Minute}, clock.NewManual())
	getLimiter(app, "10.0.0.1")
	getLimiter(app, "10.0.0.2")
	app.LimiterMap["10.0.0.1"].LastAccess = time.Now().Add(-time.Hour)

	if removed := cleanupStaleRateLimiters(app); removed != 1 {
		t.Errorf("removed %d, want 1", removed)
	}
	if _, ok := app.LimiterMap["10.0.0.2"]; !ok {
		t.Error("fresh limiter removed")
	}
}
