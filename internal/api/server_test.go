package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Nileneb/growdash/internal/agent"
	"github.com/Nileneb/growdash/internal/events"
	"github.com/Nileneb/growdash/internal/infrastructure/config"
	"github.com/Nileneb/growdash/internal/registry"
	"github.com/Nileneb/growdash/internal/serial"
	"github.com/Nileneb/growdash/internal/supervisor"
	"github.com/Nileneb/growdash/internal/usb"
)

type fakeInventory struct {
	entries    []registry.Entry
	refreshErr error
	refreshed  int
}

func (f *fakeInventory) All() []registry.Entry { return f.entries }

func (f *fakeInventory) Refresh(ctx context.Context) error {
	f.refreshed++
	return f.refreshErr
}

func (f *fakeInventory) SerialPorts() []registry.Entry {
	var out []registry.Entry
	for _, e := range f.entries {
		if e.Kind.IsSerial() {
			out = append(out, e)
		}
	}
	return out
}

func (f *fakeInventory) DefaultPort() (string, bool) {
	ports := f.SerialPorts()
	if len(ports) == 0 {
		return "", false
	}
	return ports[0].Path, true
}

type fakeSession struct {
	mu      sync.Mutex
	port    string
	reply   string
	ok      bool
	err     error
	sent    []string
	lines   []serial.Line
	lastSeq uint64
}

func (f *fakeSession) Port() string { return f.port }

func (f *fakeSession) Send(cmd string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, cmd)
	return nil
}

func (f *fakeSession) SendAndWait(cmd string, timeout time.Duration) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, cmd)
	return f.reply, f.ok, f.err
}

func (f *fakeSession) LogSince(seq uint64) ([]serial.Line, uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []serial.Line
	for _, l := range f.lines {
		if l.Seq > seq {
			out = append(out, l)
		}
	}
	return out, f.lastSeq
}

func (f *fakeSession) Close() error { return nil }

type fakeSupervisor struct {
	mu       sync.Mutex
	sessions map[string]*fakeSession
}

func (f *fakeSupervisor) Handles() []supervisor.HandleInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []supervisor.HandleInfo
	for port := range f.sessions {
		out = append(out, supervisor.HandleInfo{
			Port:  port,
			Kind:  usb.KindArduinoUno,
			State: supervisor.StateRunning,
		})
	}
	return out
}

func (f *fakeSupervisor) SessionFor(port string) (supervisor.Session, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sess, ok := f.sessions[port]
	if !ok {
		return nil, false
	}
	return sess, true
}

type fakeCamera struct {
	frame  []byte
	err    error
	frames [][]byte
}

func (f *fakeCamera) Snapshot(key string) ([]byte, error) {
	return f.frame, f.err
}

func (f *fakeCamera) Stream(ctx context.Context, key string) <-chan []byte {
	ch := make(chan []byte, len(f.frames))
	for _, fr := range f.frames {
		ch <- fr
	}
	close(ch)
	return ch
}

type fakeJournal struct {
	lastFilter events.Filter
	result     events.ListResult
	err        error
}

func (f *fakeJournal) List(ctx context.Context, filter events.Filter) (*events.ListResult, error) {
	f.lastFilter = filter
	if f.err != nil {
		return nil, f.err
	}
	return &f.result, f.err
}

type testEnv struct {
	inventory  *fakeInventory
	supervisor *fakeSupervisor
	camera     *fakeCamera
	journal    *fakeJournal
	server     *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		inventory: &fakeInventory{
			entries: []registry.Entry{
				{
					Device: usb.Device{
						Path:     "/dev/ttyACM0",
						VendorID: "2341",
						Kind:     usb.KindArduinoUno,
					},
					FQBN: "arduino:avr:uno",
				},
				{
					Device: usb.Device{Path: "/dev/video0", Kind: usb.KindCamera},
				},
			},
		},
		supervisor: &fakeSupervisor{
			sessions: map[string]*fakeSession{
				"/dev/ttyACM0": {port: "/dev/ttyACM0", reply: "WaterLevel: 45", ok: true},
			},
		},
		camera:  &fakeCamera{frame: []byte("jpegdata")},
		journal: &fakeJournal{},
	}

	srv, err := New(Deps{
		Config:     config.Default(),
		Registry:   env.inventory,
		Supervisor: env.supervisor,
		Executor:   agent.NewExecutor(time.Second),
		Camera:     env.camera,
		Journal:    env.journal,
		Version:    "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	env.server = httptest.NewServer(srv.buildRouter())
	t.Cleanup(env.server.Close)
	return env
}

func getJSON(t *testing.T, url string, into any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s error = %v", url, err)
	}
	defer resp.Body.Close()
	if into != nil {
		if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func postJSON(t *testing.T, url string, body any, into any) int {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("POST %s error = %v", url, err)
	}
	defer resp.Body.Close()
	if into != nil {
		if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestHandleHealth(t *testing.T) {
	env := newTestEnv(t)

	var body map[string]string
	status := getJSON(t, env.server.URL+"/api/v1/health", &body)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want %d", status, http.StatusOK)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %q, want %q", body["status"], "ok")
	}
	if body["version"] != "test" {
		t.Errorf("version = %q, want %q", body["version"], "test")
	}
}

func TestHandleListDevices(t *testing.T) {
	env := newTestEnv(t)

	var body deviceListResponse
	status := getJSON(t, env.server.URL+"/api/v1/devices", &body)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want %d", status, http.StatusOK)
	}
	if body.Count != 2 {
		t.Errorf("count = %d, want 2", body.Count)
	}
	if body.Devices[0].Path != "/dev/ttyACM0" {
		t.Errorf("first device = %q, want /dev/ttyACM0", body.Devices[0].Path)
	}
}

func TestHandleRefreshDevices(t *testing.T) {
	env := newTestEnv(t)

	status := postJSON(t, env.server.URL+"/api/v1/devices/refresh", nil, nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want %d", status, http.StatusOK)
	}
	if env.inventory.refreshed != 1 {
		t.Errorf("refreshed = %d, want 1", env.inventory.refreshed)
	}
}

func TestHandleRefreshDevices_PartialFailure(t *testing.T) {
	env := newTestEnv(t)
	env.inventory.refreshErr = fmt.Errorf("serial enumeration failed")

	var body map[string]any
	status := postJSON(t, env.server.URL+"/api/v1/devices/refresh", nil, &body)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want %d", status, http.StatusOK)
	}
	warning, _ := body["warning"].(string)
	if !strings.Contains(warning, "enumeration failed") {
		t.Errorf("warning = %q, want enumeration failure message", warning)
	}
}

func TestHandleListPorts(t *testing.T) {
	env := newTestEnv(t)

	var body portListResponse
	status := getJSON(t, env.server.URL+"/api/v1/ports", &body)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want %d", status, http.StatusOK)
	}
	if len(body.Ports) != 1 {
		t.Fatalf("ports = %d, want 1", len(body.Ports))
	}
	if body.DefaultPort != "/dev/ttyACM0" {
		t.Errorf("default_port = %q, want /dev/ttyACM0", body.DefaultPort)
	}
}

func TestHandleListSessions(t *testing.T) {
	env := newTestEnv(t)

	var body sessionListResponse
	status := getJSON(t, env.server.URL+"/api/v1/sessions", &body)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want %d", status, http.StatusOK)
	}
	if body.Count != 1 {
		t.Fatalf("count = %d, want 1", body.Count)
	}
	if body.Sessions[0].Port != "/dev/ttyACM0" {
		t.Errorf("port = %q, want /dev/ttyACM0", body.Sessions[0].Port)
	}
}

func TestHandleCommand(t *testing.T) {
	env := newTestEnv(t)

	var body commandResponse
	status := postJSON(t, env.server.URL+"/api/v1/command", commandRequest{
		Kind:    "spray",
		Payload: json.RawMessage(`{"duration_ms": 500}`),
	}, &body)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want %d", status, http.StatusOK)
	}
	if body.Port != "/dev/ttyACM0" {
		t.Errorf("port = %q, want default /dev/ttyACM0", body.Port)
	}
	if body.Wire != "Spray 500" {
		t.Errorf("wire = %q, want %q", body.Wire, "Spray 500")
	}
	if !body.Result.Confirmed {
		t.Error("result not confirmed")
	}

	sess := env.supervisor.sessions["/dev/ttyACM0"]
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if len(sess.sent) != 1 || sess.sent[0] != "Spray 500" {
		t.Errorf("sent = %v, want [Spray 500]", sess.sent)
	}
}

func TestHandleCommand_UnknownKind(t *testing.T) {
	env := newTestEnv(t)

	status := postJSON(t, env.server.URL+"/api/v1/command", commandRequest{Kind: "reboot"}, nil)
	if status != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", status, http.StatusBadRequest)
	}
}

func TestHandleCommand_NoSession(t *testing.T) {
	env := newTestEnv(t)

	status := postJSON(t, env.server.URL+"/api/v1/command", commandRequest{
		Port: "/dev/ttyUSB9",
		Kind: "status",
	}, nil)
	if status != http.StatusNotFound {
		t.Errorf("status = %d, want %d", status, http.StatusNotFound)
	}
}

func TestHandleCommand_Pending(t *testing.T) {
	env := newTestEnv(t)
	env.supervisor.sessions["/dev/ttyACM0"].err = serial.ErrRequestPending

	status := postJSON(t, env.server.URL+"/api/v1/command", commandRequest{Kind: "status"}, nil)
	if status != http.StatusConflict {
		t.Errorf("status = %d, want %d", status, http.StatusConflict)
	}
}

func TestHandleLogs(t *testing.T) {
	env := newTestEnv(t)
	sess := env.supervisor.sessions["/dev/ttyACM0"]
	sess.lines = []serial.Line{
		{Seq: 1, Text: "WaterLevel: 45"},
		{Seq: 2, Text: "TDS=320 TempC=22.5"},
	}
	sess.lastSeq = 2

	var body logResponse
	status := getJSON(t, env.server.URL+"/api/v1/logs?port=/dev/ttyACM0&since=1", &body)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want %d", status, http.StatusOK)
	}
	if len(body.Lines) != 1 {
		t.Fatalf("lines = %d, want 1", len(body.Lines))
	}
	if body.Lines[0].Text != "TDS=320 TempC=22.5" {
		t.Errorf("line = %q", body.Lines[0].Text)
	}
	if body.Cursor != 2 {
		t.Errorf("cursor = %d, want 2", body.Cursor)
	}
}

func TestHandleLogs_MissingPort(t *testing.T) {
	env := newTestEnv(t)

	status := getJSON(t, env.server.URL+"/api/v1/logs", nil)
	if status != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", status, http.StatusBadRequest)
	}
}

func TestHandleLogs_NoSession(t *testing.T) {
	env := newTestEnv(t)

	status := getJSON(t, env.server.URL+"/api/v1/logs?port=/dev/ttyUSB9", nil)
	if status != http.StatusNotFound {
		t.Errorf("status = %d, want %d", status, http.StatusNotFound)
	}
}

func TestHandleListEvents(t *testing.T) {
	env := newTestEnv(t)
	env.journal.result = events.ListResult{
		Events: []events.Event{{ID: "evt-1", Type: events.TypeAttached}},
		Total:  1,
	}

	var body events.ListResult
	status := getJSON(t, env.server.URL+"/api/v1/events?type=device_attached&port=/dev/ttyACM0&limit=10", &body)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want %d", status, http.StatusOK)
	}
	if len(body.Events) != 1 || body.Events[0].ID != "evt-1" {
		t.Errorf("events = %+v, want one evt-1", body.Events)
	}

	got := env.journal.lastFilter
	if got.Type != "device_attached" || got.Port != "/dev/ttyACM0" || got.Limit != 10 {
		t.Errorf("filter = %+v, want query params passed through", got)
	}
}

func TestHandleListEvents_BadLimit(t *testing.T) {
	env := newTestEnv(t)

	status := getJSON(t, env.server.URL+"/api/v1/events?limit=abc", nil)
	if status != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", status, http.StatusBadRequest)
	}
}

func TestHandleSnapshot(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.server.URL + "/api/v1/snapshot?device=/dev/video0")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("content type = %q, want image/jpeg", ct)
	}
	data, _ := io.ReadAll(resp.Body)
	if string(data) != "jpegdata" {
		t.Errorf("body = %q, want jpegdata", data)
	}
}

func TestHandleSnapshot_MissingDevice(t *testing.T) {
	env := newTestEnv(t)

	status := getJSON(t, env.server.URL+"/api/v1/snapshot", nil)
	if status != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", status, http.StatusBadRequest)
	}
}

func TestHandleStream(t *testing.T) {
	env := newTestEnv(t)
	env.camera.frames = [][]byte{[]byte("frame-a"), []byte("frame-b")}

	resp, err := http.Get(env.server.URL + "/api/v1/stream.mjpg?device=/dev/video0")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "multipart/x-mixed-replace") {
		t.Fatalf("content type = %q, want multipart", ct)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read stream: %v", err)
	}
	body := string(data)
	if !strings.Contains(body, "frame-a") || !strings.Contains(body, "frame-b") {
		t.Errorf("stream body missing frames: %q", body)
	}
	if strings.Count(body, "--"+mjpegBoundary) != 2 {
		t.Errorf("boundary count = %d, want 2", strings.Count(body, "--"+mjpegBoundary))
	}
}

func TestHandleWebSocket(t *testing.T) {
	env := newTestEnv(t)
	sess := env.supervisor.sessions["/dev/ttyACM0"]
	sess.mu.Lock()
	sess.lines = []serial.Line{{Seq: 1, Text: "WaterLevel: 45"}}
	sess.lastSeq = 1
	sess.mu.Unlock()

	wsURL := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/api/v1/ws?port=/dev/ttyACM0"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg wsLogMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if msg.Port != "/dev/ttyACM0" {
		t.Errorf("port = %q, want /dev/ttyACM0", msg.Port)
	}
	if len(msg.Lines) != 1 || msg.Lines[0].Text != "WaterLevel: 45" {
		t.Errorf("lines = %+v, want one water level line", msg.Lines)
	}
	if msg.Cursor != 1 {
		t.Errorf("cursor = %d, want 1", msg.Cursor)
	}
}

func TestHandleWebSocket_NoSession(t *testing.T) {
	env := newTestEnv(t)

	wsURL := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/api/v1/ws?port=/dev/ttyUSB9"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("dial to unknown port should fail")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %v, want %d", resp, http.StatusNotFound)
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Deps{})
	if err == nil {
		t.Error("New with empty deps should fail")
	}

	_, err = New(Deps{Config: config.Default()})
	if err == nil {
		t.Error("New without registry should fail")
	}
}

func TestRequestIDHeader(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.server.URL + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	resp.Body.Close()
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header missing")
	}
}
