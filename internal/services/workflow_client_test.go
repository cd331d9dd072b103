package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promethium-examples/runner/pkg/models"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, h http.HandlerFunc, opts ...ClientOption) *HTTPWorkflowClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	opts = append([]ClientOption{WithHTTPClient(srv.Client()), WithPollInterval(time.Millisecond)}, opts...)
	return NewHTTPWorkflowClient(srv.URL+"/", opts...)
}

func TestSubmit(t *testing.T) {
	var got models.WorkflowRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v0/workflows", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, http.StatusCreated, map[string]string{"id": "wf-1", "status": "pending"})
	})

	req := &models.WorkflowRequest{Name: "ether_api_conformer-search", Kind: models.WorkflowKindConformerSearch}
	wf, err := client.Submit(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "wf-1", wf.ID)
	assert.Equal(t, models.WorkflowStatusPending, wf.Status)
	assert.Equal(t, req.Name, wf.Name)
	assert.Equal(t, req.Name, got.Name)
}

func TestSubmitErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   interface{}
		check  func(t *testing.T, err error)
	}{
		{
			name:   "unauthorized",
			status: http.StatusUnauthorized,
			body:   map[string]string{"detail": "invalid api key"},
			check: func(t *testing.T, err error) {
				var apiErr *APIError
				require.ErrorAs(t, err, &apiErr)
				assert.True(t, apiErr.IsAuth())
				assert.Equal(t, "invalid api key", apiErr.Message)
			},
		},
		{
			name:   "validation",
			status: http.StatusUnprocessableEntity,
			body:   map[string]interface{}{"detail": []map[string]string{{"msg": "field required"}}},
			check: func(t *testing.T, err error) {
				var apiErr *APIError
				require.ErrorAs(t, err, &apiErr)
				assert.True(t, apiErr.IsValidation())
				assert.Contains(t, apiErr.Message, "field required")
			},
		},
		{
			name:   "missing id",
			status: http.StatusOK,
			body:   map[string]string{"status": "PENDING"},
			check: func(t *testing.T, err error) {
				assert.ErrorContains(t, err, "no id")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, tt.body)
			})
			_, err := client.Submit(context.Background(), &models.WorkflowRequest{Name: "x"})
			require.Error(t, err)
			tt.check(t, err)
		})
	}

	_, err := NewHTTPWorkflowClient("http://unused").Submit(context.Background(), nil)
	assert.Error(t, err)
}

func TestGetNormalizesStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v0/workflows/wf-1", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"id": "wf-1", "name": "job", "status": "completed", "duration_seconds": 12.5,
		})
	})

	wf, err := client.Get(context.Background(), "wf-1")
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusCompleted, wf.Status)
	assert.Equal(t, 12.5, wf.DurationSeconds)
}

func TestGetNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such workflow", http.StatusNotFound)
	})

	_, err := client.Get(context.Background(), "nope")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsNotFound())
	assert.Equal(t, "no such workflow", apiErr.Message)
}

func TestResults(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v0/workflows/wf-1/results", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"artifacts": map[string]interface{}{"conformers": []map[string]float64{{"energy": -1}}},
		})
	})

	res, err := client.Results(context.Background(), "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "wf-1", res.WorkflowID)
	confs, err := res.Conformers()
	require.NoError(t, err)
	assert.Len(t, confs, 1)
}

// statusSequence serves the given statuses for successive GETs, repeating the
// last one.
func statusSequence(calls *int32, reason string, statuses ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n := int(atomic.AddInt32(calls, 1)) - 1
		if n >= len(statuses) {
			n = len(statuses) - 1
		}
		writeJSON(w, http.StatusOK, map[string]string{"id": "wf-1", "name": "job", "status": statuses[n], "error": reason})
	}
}

func TestWaitPollsUntilTerminal(t *testing.T) {
	var calls int32
	client := newTestClient(t, statusSequence(&calls, "", "PENDING", "QUEUED", "RUNNING", "COMPLETED"))

	wf, err := client.Wait(context.Background(), "wf-1")
	require.NoError(t, err)
	assert.True(t, wf.Status.IsTerminal())
	assert.Equal(t, models.WorkflowStatusCompleted, wf.Status)
	assert.EqualValues(t, 4, atomic.LoadInt32(&calls))
}

func TestWaitFailedWorkflow(t *testing.T) {
	var calls int32
	client := newTestClient(t, statusSequence(&calls, "SCF did not converge", "RUNNING", "FAILED"))

	wf, err := client.Wait(context.Background(), "wf-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWorkflowFailed)
	require.NotNil(t, wf)
	assert.Equal(t, models.WorkflowStatusFailed, wf.Status)

	var werr *WorkflowError
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, "wf-1", werr.ID)
	assert.Equal(t, "SCF did not converge", werr.Reason)
	assert.Contains(t, err.Error(), "wf-1")
}

func TestWaitTimeout(t *testing.T) {
	var calls int32
	client := newTestClient(t, statusSequence(&calls, "", "RUNNING"), WithWaitTimeout(30*time.Millisecond))

	wf, err := client.Wait(context.Background(), "wf-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWaitTimeout)
	require.NotNil(t, wf)
	assert.Equal(t, models.WorkflowStatusRunning, wf.Status)

	var werr *WorkflowError
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, models.WorkflowStatusRunning, werr.Status)
}

func TestWaitCancelled(t *testing.T) {
	var calls int32
	client := newTestClient(t, statusSequence(&calls, "", "RUNNING"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.Wait(ctx, "wf-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrWaitTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWaitStopsOnRequestError(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeJSON(w, http.StatusForbidden, map[string]string{"message": "forbidden"})
	})

	_, err := client.Wait(context.Background(), "wf-1")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsAuth())
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestNewAPIErrorTruncates(t *testing.T) {
	body := make([]byte, 2000)
	for i := range body {
		body[i] = 'x'
	}
	err := newAPIError(http.StatusInternalServerError, body)
	assert.Len(t, err.Message, 515)

	// multi-byte characters are never split
	err = newAPIError(http.StatusBadGateway, []byte(strings.Repeat("é", 400)))
	assert.True(t, utf8.ValidString(err.Message))
	assert.Equal(t, strings.Repeat("é", 256)+"...", err.Message)

	err = newAPIError(http.StatusBadRequest, []byte(`{"detail":null,"title":"Bad Request"}`))
	assert.Equal(t, "Bad Request", err.Message)
}
