package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/sluice/internal/accel"
	"github.com/samcharles93/sluice/internal/accel/sim"
	"github.com/samcharles93/sluice/internal/streams"
)

var setupOnce sync.Once

func newTestEcho(t *testing.T) *echo.Echo {
	t.Helper()
	setupOnce.Do(func() {
		accel.Register(sim.New(sim.WithDevices(2)))
	})
	drv, err := accel.Default()
	if err != nil {
		t.Fatalf("accel.Default: %v", err)
	}
	e := echo.New()
	NewServer(drv, NewJobStore()).Register(e)
	return e
}

func doJSON(t *testing.T, e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	e := newTestEcho(t)
	rec := doJSON(t, e, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status: %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestListDevices(t *testing.T) {
	e := newTestEcho(t)
	rec := doJSON(t, e, http.MethodGet, "/v1/devices", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("devices status: %d body=%s", rec.Code, rec.Body.String())
	}
	var out struct {
		Driver string             `json:"driver"`
		Data   []accel.DeviceInfo `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode devices: %v", err)
	}
	if out.Driver != "sim" {
		t.Fatalf("driver: got %q, want sim", out.Driver)
	}
	if len(out.Data) != 2 {
		t.Fatalf("expected 2 devices, got %d", len(out.Data))
	}
	if out.Data[1].ID != 1 || out.Data[1].Kind != "sim" {
		t.Fatalf("unexpected device: %+v", out.Data[1])
	}
}

func TestJobLifecycle(t *testing.T) {
	e := newTestEcho(t)

	createRec := doJSON(t, e, http.MethodPost, "/v1/jobs",
		`{"device":0,"experts":4,"tokens":16,"d_model":8,"d_hidden":16,"seed":1}`)
	if createRec.Code != http.StatusOK {
		t.Fatalf("create status: %d body=%s", createRec.Code, createRec.Body.String())
	}
	var job Job
	if err := json.Unmarshal(createRec.Body.Bytes(), &job); err != nil {
		t.Fatalf("decode job: %v", err)
	}
	if job.ID == "" || !strings.HasPrefix(job.ID, "job_") {
		t.Fatalf("bad job id: %q", job.ID)
	}
	if job.SlotsUsed != 4 {
		t.Fatalf("slots used: got %d, want 4", job.SlotsUsed)
	}
	if job.TokensPerSec <= 0 {
		t.Fatalf("tokens/sec not positive: %v", job.TokensPerSec)
	}

	getRec := doJSON(t, e, http.MethodGet, "/v1/jobs/"+job.ID, "")
	if getRec.Code != http.StatusOK {
		t.Fatalf("get status: %d body=%s", getRec.Code, getRec.Body.String())
	}

	listRec := doJSON(t, e, http.MethodGet, "/v1/jobs", "")
	if listRec.Code != http.StatusOK {
		t.Fatalf("list status: %d", listRec.Code)
	}
	var list JobList
	if err := json.Unmarshal(listRec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Data) != 1 || list.Data[0].ID != job.ID {
		t.Fatalf("unexpected job list: %+v", list)
	}

	// The job first-touched device 0; its pool must now be visible.
	poolRec := doJSON(t, e, http.MethodGet, "/v1/pools/0", "")
	if poolRec.Code != http.StatusOK {
		t.Fatalf("pool status: %d body=%s", poolRec.Code, poolRec.Body.String())
	}
	var st streams.Stats
	if err := json.Unmarshal(poolRec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode pool stats: %v", err)
	}
	if st.Device != 0 || st.Slots != streams.Slots || !st.Live {
		t.Fatalf("unexpected pool stats: %+v", st)
	}

	poolsRec := doJSON(t, e, http.MethodGet, "/v1/pools", "")
	if poolsRec.Code != http.StatusOK {
		t.Fatalf("pools status: %d", poolsRec.Code)
	}
	if !strings.Contains(poolsRec.Body.String(), `"device":0`) {
		t.Fatalf("pools listing missing device 0: %s", poolsRec.Body.String())
	}
}

func TestCreateJobDefaults(t *testing.T) {
	e := newTestEcho(t)
	rec := doJSON(t, e, http.MethodPost, "/v1/jobs", `{"device":0}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("create status: %d body=%s", rec.Code, rec.Body.String())
	}
	var job Job
	if err := json.Unmarshal(rec.Body.Bytes(), &job); err != nil {
		t.Fatalf("decode job: %v", err)
	}
	if job.Plan.Experts != 4 || job.Plan.Tokens != 64 {
		t.Fatalf("defaults not applied: %+v", job.Plan)
	}
}

func TestCreateJobRejectsBadInput(t *testing.T) {
	e := newTestEcho(t)

	if rec := doJSON(t, e, http.MethodPost, "/v1/jobs", `{not json`); rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed body: got %d", rec.Code)
	}
	if rec := doJSON(t, e, http.MethodPost, "/v1/jobs", `{"device":-1}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("negative device: got %d", rec.Code)
	}
	if rec := doJSON(t, e, http.MethodPost, "/v1/jobs", `{"device":0,"experts":-3}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("negative experts: got %d", rec.Code)
	}
}

func TestGetJobNotFound(t *testing.T) {
	e := newTestEcho(t)
	rec := doJSON(t, e, http.MethodGet, "/v1/jobs/job_missing", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing job: got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "not_found_error") {
		t.Fatalf("unexpected error body: %s", rec.Body.String())
	}
}

func TestGetPoolNeverCreates(t *testing.T) {
	e := newTestEcho(t)

	if rec := doJSON(t, e, http.MethodGet, "/v1/pools/7", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("uncreated pool: got %d", rec.Code)
	}
	if _, ok := streams.Lookup(7); ok {
		t.Fatal("GET /v1/pools/:device must not create a pool")
	}
	if rec := doJSON(t, e, http.MethodGet, "/v1/pools/zero", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("non-integer device: got %d", rec.Code)
	}
}
