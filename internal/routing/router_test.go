package routing

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRouter_Dispatch(t *testing.T) {
	r := NewRouter()
	r.HandleFunc(http.MethodGet, "/api/tables/{table}/records/{id}", func(w http.ResponseWriter, req *http.Request) {
		params := PathParams(req.Context())
		WriteJSON(w, http.StatusOK, params)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tables/employees/records/r1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("code=%d", rec.Code)
	}
	var params map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &params); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if params["table"] != "employees" || params["id"] != "r1" {
		t.Fatalf("params=%v", params)
	}
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	r := NewRouter()
	r.HandleFunc(http.MethodGet, "/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/healthz", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("code=%d", rec.Code)
	}
	var env ErrorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Code != "method_not_allowed" || env.Meta.Path != "/healthz" {
		t.Fatalf("envelope=%+v", env)
	}
}

func TestRouter_NotFound(t *testing.T) {
	r := NewRouter()
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("code=%d", rec.Code)
	}
}

func TestRouter_PanicRecovery(t *testing.T) {
	r := NewRouter()
	r.HandleFunc(http.MethodGet, "/boom", func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("code=%d", rec.Code)
	}
	var env ErrorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Code != "internal_error" {
		t.Fatalf("envelope=%+v", env)
	}
}

func TestWriteError_TraceID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	rec := httptest.NewRecorder()
	WriteError(rec, req, http.StatusBadRequest, "bad_request", "nope")

	var env ErrorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.TraceID != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Fatalf("trace=%q", env.TraceID)
	}

	// Malformed and all-zero trace ids are ignored.
	for _, tp := range []string{"garbage", "00-00000000000000000000000000000000-00f067aa0ba902b7-01"} {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set("traceparent", tp)
		rec := httptest.NewRecorder()
		WriteError(rec, req, http.StatusBadRequest, "bad_request", "nope")
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if env.TraceID != "" {
			t.Fatalf("trace=%q for %q", env.TraceID, tp)
		}
	}
}
