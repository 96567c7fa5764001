package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	apimw "github.com/notifyhub/notification-relay/internal/api/middleware"
	"github.com/notifyhub/notification-relay/internal/domain"
)

func TestCorrelationID(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		wantSame bool
	}{
		{"generated when absent", "", false},
		{"caller id kept", "trace-123", true},
		{"oversized id replaced", strings.Repeat("x", 500), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			h := apimw.CorrelationID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = domain.CorrelationID(r.Context())
			}))

			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				r.Header.Set(apimw.CorrelationHeader, tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, r)

			require.NotEmpty(t, seen)
			assert.Equal(t, seen, rec.Header().Get(apimw.CorrelationHeader))
			if tt.wantSame {
				assert.Equal(t, tt.header, seen)
			} else {
				assert.NotEqual(t, tt.header, seen)
				assert.LessOrEqual(t, len(seen), 128)
			}
		})
	}
}

func newLoggedRouter(logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(apimw.CorrelationID)
	r.Use(apimw.RequestLogger(logger))
	r.Route("/notificacao", func(r chi.Router) {
		r.Get("/status/{mensagemId}", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{}`))
		})
	})
	r.Get("/boom", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	return r
}

func TestRequestLogger_RecordsMensagemID(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	h := newLoggedRouter(zap.New(core))

	r := httptest.NewRequest(http.MethodGet, "/notificacao/status/a1", nil)
	r.Header.Set(apimw.CorrelationHeader, "trace-9")
	h.ServeHTTP(httptest.NewRecorder(), r)

	entries := logs.FilterMessage("http request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "a1", fields["mensagem_id"])
	assert.Equal(t, "/notificacao/status/{mensagemId}", fields["route"])
	assert.Equal(t, "trace-9", fields["correlation_id"])
	assert.EqualValues(t, http.StatusOK, fields["status"])
	assert.EqualValues(t, 2, fields["bytes"])
}

func TestRequestLogger_ServerErrorsAtErrorLevel(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	h := newLoggedRouter(zap.New(core))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))

	entries := logs.FilterMessage("http request").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	assert.NotContains(t, entries[0].ContextMap(), "mensagem_id")
}
