package batch

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"clinical-review-backend/internal/analysis"
	"clinical-review-backend/internal/results"
	"clinical-review-backend/internal/shared/server/middleware"
	"clinical-review-backend/internal/tenants"
)

type uploadFile struct {
	name string
	data []byte
}

func newTestRouter(svc *Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.RequestID())
	NewHandler(svc, 0).RegisterRoutes(r.Group("/api/v1"))
	return r
}

func multipartBody(t *testing.T, files []uploadFile, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for _, f := range files {
		fw, err := writer.CreateFormFile("files[]", f.name)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := fw.Write(f.data); err != nil {
			t.Fatalf("write file: %v", err)
		}
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return body, writer.FormDataContentType()
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decodeError(t *testing.T, resp *httptest.ResponseRecorder) errorEnvelope {
	t.Helper()
	var env errorEnvelope
	if err := json.Unmarshal(resp.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode error body %q: %v", resp.Body.String(), err)
	}
	return env
}

func TestHandlerProcessBatch(t *testing.T) {
	svc := newTestService(Deps{
		Stores:  results.NewMemoryStores(),
		Tenants: tenants.NewMemoryResolver(map[string]string{"intake@sunrise.example": "agency-1"}),
	}, Options{})
	router := newTestRouter(svc)

	body, contentType := multipartBody(t, []uploadFile{
		{name: "note.txt", data: []byte("Primary dx CHF")},
		{name: "empty.pdf", data: nil},
	}, map[string]string{
		"priority":    "high",
		"tenantEmail": "intake@sunrise.example",
		"persist":     "true",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyses/coding-review/batch", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Request-Id", "req-42")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var summary Summary
	if err := json.Unmarshal(resp.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary.TotalCount != 2 || summary.SuccessCount != 1 || summary.FailureCount != 1 {
		t.Fatalf("unexpected counts %+v", summary)
	}
	if summary.Records[0].Priority != "high" || summary.Records[0].TenantID != "agency-1" {
		t.Fatalf("metadata not applied: %+v", summary.Records[0])
	}
	if _, ok := summary.Records[1].Results.(*analysis.CodingReviewResults); !ok {
		t.Fatalf("expected coding review results on failed record, got %T", summary.Records[1].Results)
	}

	get := httptest.NewRequest(http.MethodGet, "/api/v1/analyses/coding-review/results/"+summary.Records[0].ID, nil)
	getResp := httptest.NewRecorder()
	router.ServeHTTP(getResp, get)
	if getResp.Code != http.StatusOK {
		t.Fatalf("expected 200 on get, got %d", getResp.Code)
	}

	list := httptest.NewRequest(http.MethodGet, "/api/v1/results?tenantEmail=INTAKE@sunrise.example", nil)
	listResp := httptest.NewRecorder()
	router.ServeHTTP(listResp, list)
	if listResp.Code != http.StatusOK {
		t.Fatalf("expected 200 on list, got %d", listResp.Code)
	}
	var listed struct {
		TenantID string            `json:"tenantId"`
		Results  []json.RawMessage `json:"results"`
		Count    int               `json:"count"`
	}
	if err := json.Unmarshal(listResp.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if listed.TenantID != "agency-1" || listed.Count != 2 || len(listed.Results) != 2 {
		t.Fatalf("unexpected listing %+v", listed)
	}

	del := httptest.NewRequest(http.MethodDelete, "/api/v1/analyses/coding-review/results/"+summary.Records[0].ID, nil)
	delResp := httptest.NewRecorder()
	router.ServeHTTP(delResp, del)
	if delResp.Code != http.StatusNoContent {
		t.Fatalf("expected 204 on delete, got %d", delResp.Code)
	}
	again := httptest.NewRecorder()
	router.ServeHTTP(again, httptest.NewRequest(http.MethodGet, "/api/v1/analyses/coding-review/results/"+summary.Records[0].ID, nil))
	if again.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", again.Code)
	}
}

func TestHandlerErrors(t *testing.T) {
	svc := newTestService(Deps{
		Stores:  results.NewMemoryStores(),
		Tenants: tenants.NewMemoryResolver(nil),
	}, Options{})
	router := newTestRouter(svc)

	oneFile := []uploadFile{{name: "a.txt", data: []byte("x")}}
	cases := []struct {
		name     string
		build    func() *http.Request
		wantCode int
		wantErr  string
	}{
		{
			name: "unknown type",
			build: func() *http.Request {
				body, ct := multipartBody(t, oneFile, nil)
				req := httptest.NewRequest(http.MethodPost, "/api/v1/analyses/xyz/batch", body)
				req.Header.Set("Content-Type", ct)
				return req
			},
			wantCode: http.StatusBadRequest,
			wantErr:  "invalid_analysis_type",
		},
		{
			name: "no files",
			build: func() *http.Request {
				body, ct := multipartBody(t, nil, map[string]string{"priority": "low"})
				req := httptest.NewRequest(http.MethodPost, "/api/v1/analyses/qa-review/batch", body)
				req.Header.Set("Content-Type", ct)
				return req
			},
			wantCode: http.StatusBadRequest,
			wantErr:  "validation_error",
		},
		{
			name: "not multipart",
			build: func() *http.Request {
				req := httptest.NewRequest(http.MethodPost, "/api/v1/analyses/qa-review/batch", bytes.NewBufferString("{}"))
				req.Header.Set("Content-Type", "application/json")
				return req
			},
			wantCode: http.StatusBadRequest,
			wantErr:  "validation_error",
		},
		{
			name: "bad persist flag",
			build: func() *http.Request {
				body, ct := multipartBody(t, oneFile, map[string]string{"persist": "maybe"})
				req := httptest.NewRequest(http.MethodPost, "/api/v1/analyses/qa-review/batch", body)
				req.Header.Set("Content-Type", ct)
				return req
			},
			wantCode: http.StatusBadRequest,
			wantErr:  "validation_error",
		},
		{
			name: "unknown tenant",
			build: func() *http.Request {
				body, ct := multipartBody(t, oneFile, map[string]string{"persist": "true", "tenantEmail": "ghost@example.com"})
				req := httptest.NewRequest(http.MethodPost, "/api/v1/analyses/qa-review/batch", body)
				req.Header.Set("Content-Type", ct)
				return req
			},
			wantCode: http.StatusNotFound,
			wantErr:  "tenant_not_found",
		},
		{
			name: "missing tenant email",
			build: func() *http.Request {
				return httptest.NewRequest(http.MethodGet, "/api/v1/analyses/qa-review/results", nil)
			},
			wantCode: http.StatusBadRequest,
			wantErr:  "validation_error",
		},
		{
			name: "missing result",
			build: func() *http.Request {
				return httptest.NewRequest(http.MethodGet, "/api/v1/analyses/qa-review/results/nope", nil)
			},
			wantCode: http.StatusNotFound,
			wantErr:  "not_found",
		},
		{
			name: "missing job",
			build: func() *http.Request {
				return httptest.NewRequest(http.MethodGet, "/api/v1/queue/nope", nil)
			},
			wantCode: http.StatusNotFound,
			wantErr:  "not_found",
		},
		{
			name: "bad queue filter",
			build: func() *http.Request {
				return httptest.NewRequest(http.MethodGet, "/api/v1/queue?type=bogus", nil)
			},
			wantCode: http.StatusBadRequest,
			wantErr:  "invalid_analysis_type",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := httptest.NewRecorder()
			router.ServeHTTP(resp, tc.build())
			if resp.Code != tc.wantCode {
				t.Fatalf("expected %d, got %d: %s", tc.wantCode, resp.Code, resp.Body.String())
			}
			if got := decodeError(t, resp).Error.Code; got != tc.wantErr {
				t.Fatalf("expected error code %q, got %q", tc.wantErr, got)
			}
		})
	}
}

func TestHandlerQueue(t *testing.T) {
	svc := newTestService(Deps{}, Options{})
	router := newTestRouter(svc)

	body, ct := multipartBody(t, []uploadFile{{name: "a.txt", data: []byte("x")}, {name: "b.txt", data: []byte("y")}}, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyses/financial-optimization/batch", body)
	req.Header.Set("Content-Type", ct)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	qResp := httptest.NewRecorder()
	router.ServeHTTP(qResp, httptest.NewRequest(http.MethodGet, "/api/v1/queue?type=financial-optimization", nil))
	if qResp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", qResp.Code)
	}
	var payload struct {
		Jobs  []analysis.Job `json:"jobs"`
		Count int            `json:"count"`
	}
	if err := json.Unmarshal(qResp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode queue: %v", err)
	}
	if payload.Count != 2 || payload.Jobs[0].FileName != "a.txt" || payload.Jobs[1].FileName != "b.txt" {
		t.Fatalf("unexpected queue %+v", payload)
	}
	for _, j := range payload.Jobs {
		if j.Status != analysis.StatusCompleted {
			t.Fatalf("expected completed jobs, got %s", j.Status)
		}
	}

	jobResp := httptest.NewRecorder()
	router.ServeHTTP(jobResp, httptest.NewRequest(http.MethodGet, "/api/v1/queue/"+payload.Jobs[0].ID, nil))
	if jobResp.Code != http.StatusOK {
		t.Fatalf("expected 200 on job lookup, got %d", jobResp.Code)
	}
}

func TestHandlerPersistenceUnavailable(t *testing.T) {
	router := newTestRouter(newTestService(Deps{}, Options{}))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/results?tenantEmail=a@b.example", nil))
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.Code)
	}
}
