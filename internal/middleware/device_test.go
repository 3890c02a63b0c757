package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestDevice(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantDevice string
	}{
		{
			name:       "valid device id",
			header:     "pixel-7-abc123",
			wantStatus: http.StatusOK,
			wantDevice: "pixel-7-abc123",
		},
		{
			name:       "missing header",
			header:     "",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "whitespace only",
			header:     "   ",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "trimmed value",
			header:     "  tablet-9  ",
			wantStatus: http.StatusOK,
			wantDevice: "tablet-9",
		},
		{
			name:       "too long",
			header:     strings.Repeat("x", 129),
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotDevice string
			handler := Device(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotDevice, _ = GetDeviceIDFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/balance", nil)
			if tt.header != "" {
				req.Header.Set(DeviceHeader, tt.header)
			}

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status: got %d want %d", w.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK && gotDevice != tt.wantDevice {
				t.Fatalf("device: got %q want %q", gotDevice, tt.wantDevice)
			}
		})
	}
}

func TestGetDeviceIDFromContext_Empty(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, ok := GetDeviceIDFromContext(req.Context()); ok {
		t.Fatal("expected no device id in bare context")
	}
}
