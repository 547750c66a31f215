package prompush

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dvloznov/fines-ledger/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ metrics.Recorder = (*Backend)(nil)

func TestNewBackend(t *testing.T) {
	tests := []struct {
		name        string
		jobName     string
		gatewayURL  string
		wantErr     bool
		wantJobName string
	}{
		{name: "missing gateway URL", jobName: "x", wantErr: true},
		{name: "empty job uses default", gatewayURL: "http://pushgateway:9091", wantJobName: DefaultJob},
		{name: "explicit job kept", jobName: "smt", gatewayURL: "http://pushgateway:9091", wantJobName: "smt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := NewBackend(tt.jobName, tt.gatewayURL)
			if tt.wantErr {
				require.Error(t, err)
				assert.Nil(t, b)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantJobName, b.jobName)
			assert.Equal(t, tt.gatewayURL, b.gatewayURL)
		})
	}
}

func TestObserveDocument(t *testing.T) {
	b, err := NewBackend("", "http://example.com")
	require.NoError(t, err)

	b.ObserveDocument(metrics.StatusOK, 200*time.Millisecond)
	b.ObserveDocument(metrics.StatusOK, 100*time.Millisecond)
	b.ObserveDocument(metrics.StatusFailed, time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(b.documents.WithLabelValues(metrics.StatusOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(b.documents.WithLabelValues(metrics.StatusFailed)))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.documents.WithLabelValues(metrics.StatusEmpty)))
	assert.Equal(t, 3, testutil.CollectAndCount(b.duration, "fines_document_duration_seconds"))
}

func TestAddRecords(t *testing.T) {
	b, err := NewBackend("", "http://example.com")
	require.NoError(t, err)

	b.AddRecords(3)
	b.AddRecords(0)
	b.AddRecords(-1)
	b.AddRecords(4)

	assert.Equal(t, 7.0, testutil.ToFloat64(b.records))
}

func TestFlush(t *testing.T) {
	type pushRequest struct {
		method, path, body string
	}
	reqCh := make(chan pushRequest, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		body, _ := io.ReadAll(r.Body)
		reqCh <- pushRequest{method: r.Method, path: r.URL.Path, body: string(body)}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	b, err := NewBackend("fines_smt", server.URL)
	require.NoError(t, err)
	b.AddRecords(2)

	require.NoError(t, b.Flush())

	var got pushRequest
	select {
	case got = <-reqCh:
	default:
		t.Fatal("Flush did not reach the Pushgateway")
	}
	assert.Equal(t, http.MethodPut, got.method)
	assert.Equal(t, "/metrics/job/fines_smt", got.path)
	assert.NotEmpty(t, got.body)
}

func TestFlush_GatewayError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	b, err := NewBackend("", server.URL)
	require.NoError(t, err)

	err = b.Flush()
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "prompush: push to "))
}
