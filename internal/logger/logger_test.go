package logger

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestSetup(t *testing.T) {
	require.Equal(t, zerolog.InfoLevel, Setup(false).GetLevel())
	require.Equal(t, zerolog.DebugLevel, Setup(true).GetLevel())
}

func TestRequestLogger(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantLevel string
	}{
		{name: "ok", status: http.StatusOK, wantLevel: "info"},
		{name: "unauthorized", status: http.StatusUnauthorized, wantLevel: "info"},
		{name: "server error", status: http.StatusBadGateway, wantLevel: "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			mw := RequestLogger(zerolog.New(&buf))

			var ctxLogged bool
			handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				ctxLogged = zerolog.Ctx(r.Context()).GetLevel() != zerolog.Disabled
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("hello"))
			}))

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/secure", nil))
			require.Equal(t, tt.status, w.Code)
			require.True(t, ctxLogged)

			var entry map[string]any
			require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
			require.Equal(t, "http request", entry["message"])
			require.Equal(t, tt.wantLevel, entry["level"])
			require.Equal(t, "POST", entry["method"])
			require.Equal(t, "/secure", entry["path"])
			require.Equal(t, float64(tt.status), entry["status"])
			require.Equal(t, float64(5), entry["bytes"])
			require.NotContains(t, entry, "session")
		})
	}
}
