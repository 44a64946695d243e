package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"sensor-hub/internal/control"
	"sensor-hub/internal/realtime"
	"sensor-hub/internal/store"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type fakePublisher struct {
	payloads []string
	err      error
}

func (p *fakePublisher) Publish(_ string, payload []byte) error {
	if p.err != nil {
		return p.err
	}
	p.payloads = append(p.payloads, string(payload))
	return nil
}

func newTestServer(t *testing.T) (*Server, *store.Repo, *fakePublisher) {
	t.Helper()
	// Use a unique in-memory DB per test to avoid cross-test contamination.
	dsn := "file:httpapi_" + strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()) + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	repo, err := store.New(db)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	pub := &fakePublisher{}
	toggler := &control.Toggler{Repo: repo, Publisher: pub, ControlTopic: "control/led"}
	return New(repo, nil, toggler, realtime.NewHub()), repo, pub
}

func doRequest(t *testing.T, s *Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rw := httptest.NewRecorder()
	s.Handler().ServeHTTP(rw, req)
	return rw
}

func TestHealth(t *testing.T) {
	s, _, _ := newTestServer(t)
	rw := doRequest(t, s, http.MethodGet, "/api/iot/health")
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
	var resp map[string]any
	_ = json.Unmarshal(rw.Body.Bytes(), &resp)
	if resp["ok"] != true {
		t.Fatalf("expected ok=true, got %v", resp)
	}
}

func TestLatestNotFoundWhenEmpty(t *testing.T) {
	s, _, _ := newTestServer(t)
	rw := doRequest(t, s, http.MethodGet, "/api/iot/telemetry/latest")
	if rw.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rw.Code)
	}
}

func TestLatestReturnsNewestSample(t *testing.T) {
	s, repo, _ := newTestServer(t)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	_ = repo.InsertSample(context.Background(), &store.TelemetrySample{Temperature: 20, Timestamp: base})
	_ = repo.InsertSample(context.Background(), &store.TelemetrySample{Temperature: 21, Timestamp: base.Add(time.Minute)})

	rw := doRequest(t, s, http.MethodGet, "/api/iot/telemetry/latest")
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rw.Code, rw.Body.String())
	}
	var got store.TelemetrySample
	if err := json.Unmarshal(rw.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Temperature != 21 {
		t.Fatalf("expected newest sample, got %+v", got)
	}
}

func TestSearchPaginates(t *testing.T) {
	s, repo, _ := newTestServer(t)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 7; i++ {
		_ = repo.InsertSample(context.Background(), &store.TelemetrySample{Temperature: float64(i), Timestamp: base.Add(time.Duration(i) * time.Minute)})
	}

	rw := doRequest(t, s, http.MethodGet, "/api/iot/telemetry/search?pageNumber=2&pageSize=3")
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
	var page store.Page[store.TelemetrySample]
	if err := json.Unmarshal(rw.Body.Bytes(), &page); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if page.TotalPages != 3 || page.PageNumber != 2 || len(page.Data) != 3 {
		t.Fatalf("unexpected page: totalPages=%d pageNumber=%d rows=%d", page.TotalPages, page.PageNumber, len(page.Data))
	}
}

func TestSearchUnknownFieldYieldsEmptyPage(t *testing.T) {
	s, repo, _ := newTestServer(t)
	_ = repo.InsertSample(context.Background(), &store.TelemetrySample{Temperature: 25, Timestamp: time.Now().UTC()})

	rw := doRequest(t, s, http.MethodGet, "/api/iot/telemetry/search?searchTerm=25&searchType=pressure")
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
	var page store.Page[store.TelemetrySample]
	if err := json.Unmarshal(rw.Body.Bytes(), &page); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(page.Data) != 0 || page.TotalPages != 0 {
		t.Fatalf("expected empty page, got %+v", page)
	}
}

func TestDeleteRangeValidation(t *testing.T) {
	s, _, _ := newTestServer(t)

	cases := []string{
		"/api/iot/telemetry?startDate=xx&endDate=2024-01-03",
		"/api/iot/telemetry?startDate=2024-01-03&endDate=yy",
		"/api/iot/telemetry?startDate=2024-01-04&endDate=2024-01-03",
		"/api/iot/telemetry?startDate=2024-01-02&endDate=" + time.Now().Format("2006-01-02"),
		"/api/iot/telemetry?startDate=2024-01-02&endDate=2999-01-01",
	}
	for _, target := range cases {
		rw := doRequest(t, s, http.MethodDelete, target)
		if rw.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", target, rw.Code)
		}
	}
}

func TestDeleteRangeRemovesInclusiveDays(t *testing.T) {
	s, repo, _ := newTestServer(t)

	// One sample per local day, 2024-01-01 through 2024-01-05.
	for day := 1; day <= 5; day++ {
		ts := time.Date(2024, 1, day, 12, 0, 0, 0, time.Local)
		_ = repo.InsertSample(context.Background(), &store.TelemetrySample{Temperature: float64(day), Timestamp: ts.UTC()})
	}

	rw := doRequest(t, s, http.MethodDelete, "/api/iot/telemetry?startDate=2024-01-02&endDate=2024-01-03")
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rw.Code, rw.Body.String())
	}
	var resp map[string]int64
	_ = json.Unmarshal(rw.Body.Bytes(), &resp)
	if resp["deleted"] != 2 {
		t.Fatalf("expected 2 deleted, got %d", resp["deleted"])
	}

	page, err := repo.SearchSamples(context.Background(), store.SampleQuery{Page: 1, PageSize: 10})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(page.Data) != 3 {
		t.Fatalf("expected 3 surviving rows, got %d", len(page.Data))
	}
}

func TestToggleAccepted(t *testing.T) {
	s, _, pub := newTestServer(t)

	rw := doRequest(t, s, http.MethodPost, "/api/iot/devices/Light/toggle")
	if rw.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d body=%s", rw.Code, rw.Body.String())
	}
	var cmd control.Command
	if err := json.Unmarshal(rw.Body.Bytes(), &cmd); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if cmd.Payload != "bulb_on" {
		t.Fatalf("expected bulb_on, got %+v", cmd)
	}
	if len(pub.payloads) != 1 || pub.payloads[0] != "bulb_on" {
		t.Fatalf("unexpected publishes: %v", pub.payloads)
	}
}

func TestToggleEmptyName(t *testing.T) {
	s, _, _ := newTestServer(t)
	rw := doRequest(t, s, http.MethodPost, "/api/iot/devices/%20/toggle")
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rw.Code)
	}
}

func TestTogglePublishFailureIsBadGateway(t *testing.T) {
	s, _, pub := newTestServer(t)
	pub.err = errors.New("broker down")

	rw := doRequest(t, s, http.MethodPost, "/api/iot/devices/fan/toggle")
	if rw.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rw.Code)
	}
}

func TestActionsFilterAndPaginate(t *testing.T) {
	s, repo, _ := newTestServer(t)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, name := range []string{"Fan", "Light", "fan"} {
		_ = repo.InsertAction(context.Background(), &store.DeviceAction{DeviceName: name, IsOn: true, Timestamp: base.Add(time.Duration(i) * time.Minute)})
	}

	rw := doRequest(t, s, http.MethodGet, "/api/iot/actions?deviceName=fan&pageSize=1&pageNumber=1")
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
	var page store.Page[store.DeviceAction]
	if err := json.Unmarshal(rw.Body.Bytes(), &page); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if page.TotalPages != 2 || len(page.Data) != 1 {
		t.Fatalf("unexpected page: %+v", page)
	}
	if page.Data[0].DeviceName != "fan" {
		t.Fatalf("expected newest fan record first, got %+v", page.Data[0])
	}
}
