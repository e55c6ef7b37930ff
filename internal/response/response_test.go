package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestFail_Envelope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/", func(c *gin.Context) {
		Fail(c, http.StatusConflict, ErrActiveSessionExists)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-42")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d", w.Code)
	}
	if got := w.Header().Get("X-Request-ID"); got != "req-42" {
		t.Errorf("X-Request-ID header = %q", got)
	}

	var body Response
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Error == nil || body.Error.Code != ErrActiveSessionExists {
		t.Fatalf("error = %+v", body.Error)
	}
	if body.Error.Message != GetMessage(ErrActiveSessionExists) {
		t.Errorf("message = %q", body.Error.Message)
	}
	if body.Metadata.RequestID != "req-42" {
		t.Errorf("request id = %q", body.Metadata.RequestID)
	}
}

func TestSuccess_GeneratesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	Success(c, http.StatusOK, gin.H{"ok": true})

	var body Response
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Metadata.RequestID == "" {
		t.Error("expected a fallback request id")
	}
	if body.Error != nil {
		t.Errorf("unexpected error body %+v", body.Error)
	}
}

func TestNewPagination(t *testing.T) {
	tests := []struct {
		page, perPage int
		total         int64
		wantPages     int
		wantNext      bool
	}{
		{1, 20, 0, 0, false},
		{1, 20, 20, 1, false},
		{1, 20, 21, 2, true},
		{2, 20, 21, 2, false},
		{1, 0, 5, 0, false},
	}
	for _, tt := range tests {
		p := NewPagination(tt.page, tt.perPage, tt.total)
		if p.TotalPages != tt.wantPages {
			t.Errorf("NewPagination(%d,%d,%d).TotalPages = %d, want %d",
				tt.page, tt.perPage, tt.total, p.TotalPages, tt.wantPages)
		}
		if p.HasNext != tt.wantNext {
			t.Errorf("NewPagination(%d,%d,%d).HasNext = %v, want %v",
				tt.page, tt.perPage, tt.total, p.HasNext, tt.wantNext)
		}
	}
}

func TestRequestIDMiddleware_RejectsUnsafeHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, RequestID(c))
	})

	tests := []struct {
		name   string
		header string
		keep   bool
	}{
		{name: "short token", header: "edge-7f3a", keep: true},
		{name: "empty", header: "", keep: false},
		{name: "contains space", header: "a b", keep: false},
		{name: "too long", header: strings.Repeat("x", 65), keep: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("X-Request-ID", tc.header)
			}
			r.ServeHTTP(w, req)

			got := w.Body.String()
			if got == "" {
				t.Fatal("request id not set")
			}
			if (got == tc.header) != tc.keep {
				t.Errorf("request id = %q, header %q, keep %v", got, tc.header, tc.keep)
			}
			if w.Header().Get("X-Request-ID") != got {
				t.Errorf("response header = %q, want %q", w.Header().Get("X-Request-ID"), got)
			}
		})
	}
}

func TestGetMessage_UnknownCode(t *testing.T) {
	if got := GetMessage("NOPE"); got != "An unexpected error occurred." {
		t.Errorf("GetMessage(unknown) = %q", got)
	}
}
