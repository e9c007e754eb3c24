package api

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wyhuang/marketdash/internal/config"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	cfg.Institutional.UploadDir = t.TempDir()
	cfg.IR.CSVDir = t.TempDir()
	return NewServer(cfg)
}

func doRequest(t *testing.T, s *Server, req *http.Request) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	var env APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("response is not an API envelope: %v\n%s", err, rec.Body.String())
	}
	return rec, env
}

func TestHealth(t *testing.T) {
	s := testServer(t)
	rec, env := doRequest(t, s, httptest.NewRequest("GET", "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !env.Success {
		t.Fatalf("health reported failure: %s", env.Error)
	}
	data := env.Data.(map[string]interface{})
	if data["status"] != "ok" {
		t.Fatalf("status field = %v", data["status"])
	}
}

func TestRatioHistoryUnknownID(t *testing.T) {
	s := testServer(t)
	rec, env := doRequest(t, s, httptest.NewRequest("GET", "/api/ratios/not-a-ratio/history", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if env.Success || env.Error == "" {
		t.Fatalf("expected error envelope, got %+v", env)
	}
}

func TestStrategiesList(t *testing.T) {
	s := testServer(t)
	rec, env := doRequest(t, s, httptest.NewRequest("GET", "/api/strategies", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	strategies := env.Data.(map[string]interface{})
	if len(strategies) != 4 {
		t.Fatalf("got %d strategies, want 4", len(strategies))
	}
	momentum, ok := strategies["momentum"].(map[string]interface{})
	if !ok || momentum["name"] == "" {
		t.Fatalf("momentum entry = %v", strategies["momentum"])
	}
}

func TestPremarketUnknownMarket(t *testing.T) {
	s := testServer(t)
	rec, env := doRequest(t, s, httptest.NewRequest("GET", "/api/premarket-data/mars", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if env.Success {
		t.Fatal("expected failure envelope")
	}
}

func TestFilingsBadLimit(t *testing.T) {
	s := testServer(t)
	rec, _ := doRequest(t, s, httptest.NewRequest("GET", "/api/filings/10q/AAPL?limit=0", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestIRMeetingsEmptyDir(t *testing.T) {
	s := testServer(t)
	rec, env := doRequest(t, s, httptest.NewRequest("GET", "/api/ir-meetings", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, env.Error)
	}
	if !env.Success {
		t.Fatalf("ir-meetings failed: %s", env.Error)
	}
}

const uploadReport = `台北股市
中華民國115年01月05日
單位名稱,買進金額,賣出金額,買賣差額
自營商(自行買賣),"1,000","500","500"
自營商(避險),"700","200","500"
投信,"3,000","1,000","2,000"
外資及陸資(不含外資自營商),"20,000","10,000","10,000"
合計,"24,700","11,700","13,000"
`

func uploadRequest(t *testing.T, date, filename, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if date != "" {
		if err := mw.WriteField("date", date); err != nil {
			t.Fatal(err)
		}
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	mw.Close()

	req := httptest.NewRequest("POST", "/api/institutional-net/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestInstitutionalUploadAndDates(t *testing.T) {
	s := testServer(t)

	rec, env := doRequest(t, s, uploadRequest(t, "20260105", "report.csv", uploadReport))
	if rec.Code != http.StatusOK {
		t.Fatalf("upload status = %d: %s", rec.Code, env.Error)
	}
	data := env.Data.(map[string]interface{})
	if data["date"] != "20260105" {
		t.Fatalf("resolved date = %v", data["date"])
	}

	saved := filepath.Join(s.cfg.Institutional.UploadDir, "20260105.csv")
	if _, err := os.Stat(saved); err != nil {
		t.Fatalf("upload not written: %v", err)
	}

	rec, env = doRequest(t, s, httptest.NewRequest("GET", "/api/institutional-net/dates", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("dates status = %d", rec.Code)
	}
	dates := env.Data.(map[string]interface{})["dates"].([]interface{})
	if len(dates) != 1 || dates[0] != "20260105" {
		t.Fatalf("dates = %v", dates)
	}
}

func TestInstitutionalUploadDateFromContent(t *testing.T) {
	s := testServer(t)
	rec, env := doRequest(t, s, uploadRequest(t, "", "report.csv", uploadReport))
	if rec.Code != http.StatusOK {
		t.Fatalf("upload status = %d: %s", rec.Code, env.Error)
	}
	if env.Data.(map[string]interface{})["date"] != "20260105" {
		t.Fatalf("date not resolved from Minguo title: %+v", env.Data)
	}
}

func TestInstitutionalUploadMissingFile(t *testing.T) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("date", "20260105")
	mw.Close()

	req := httptest.NewRequest("POST", "/api/institutional-net/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	s := testServer(t)
	rec, env := doRequest(t, s, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(env.Error, "file") {
		t.Fatalf("error = %q", env.Error)
	}
}

func TestEnvelopeOnError(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, http.StatusBadGateway, "upstream broke")

	var env APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatal(err)
	}
	if env.Success || env.Error != "upstream broke" {
		t.Fatalf("envelope = %+v", env)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type = %q", ct)
	}
}

func TestWSHubBroadcast(t *testing.T) {
	hub := NewWSHub()
	go hub.Run()

	client := &WSClient{hub: hub, send: make(chan WSMessage, 1)}
	hub.Register(client)

	hub.Broadcast(WSMessage{Type: "section_update"})
	msg := <-client.send
	if msg.Type != "section_update" {
		t.Fatalf("got %q", msg.Type)
	}
	if hub.ClientCount() != 1 {
		t.Fatalf("client count = %d", hub.ClientCount())
	}
	hub.Unregister(client)
	if hub.ClientCount() != 0 {
		t.Fatalf("client count after unregister = %d", hub.ClientCount())
	}
}
