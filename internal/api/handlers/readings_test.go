package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"freshtrack/internal/types"
)

type nopLogger struct{}

func (nopLogger) Info(string, ...any)      {}
func (nopLogger) Warn(string, ...any)      {}
func (nopLogger) Error(string, ...any)     {}
func (nopLogger) With(...any) types.Logger { return nopLogger{} }

func doJSON(t *testing.T, router chi.Router, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error.Code
}

type fakeEnqueuer struct {
	msgs []types.ReadingMessage
	err  error
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, msg types.ReadingMessage) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msg)
	return nil
}

func readingRouter(trigger *fakeEnqueuer) chi.Router {
	r := chi.NewRouter()
	NewReadingHandler(trigger, nopLogger{}).RegisterRoutes(r)
	return r
}

func TestSubmitReading_Accepted(t *testing.T) {
	trigger := &fakeEnqueuer{}
	router := readingRouter(trigger)

	rec := doJSON(t, router, http.MethodPost, "/readings", SubmitReadingRequest{
		UnitID:      "unit-1",
		Temperature: 4.5,
		ObservedAt:  time.Now().UTC().Add(-time.Minute),
	})

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, trigger.msgs, 1)
	assert.Equal(t, "unit-1", trigger.msgs[0].UnitID)
	assert.Equal(t, 4.5, trigger.msgs[0].Temperature)

	var body struct {
		Data SubmitReadingResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Data.Accepted)
}

func TestSubmitReading_MissingUnitIDRejected(t *testing.T) {
	trigger := &fakeEnqueuer{}
	router := readingRouter(trigger)

	rec := doJSON(t, router, http.MethodPost, "/readings", SubmitReadingRequest{
		Temperature: 4.5,
		ObservedAt:  time.Now().UTC(),
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(types.ErrCodeValidationInvalidReading), errorCode(t, rec))
	assert.Empty(t, trigger.msgs)
}

func TestSubmitReading_FutureObservedAtRejected(t *testing.T) {
	trigger := &fakeEnqueuer{}
	router := readingRouter(trigger)

	rec := doJSON(t, router, http.MethodPost, "/readings", SubmitReadingRequest{
		UnitID:      "unit-1",
		Temperature: 4.5,
		ObservedAt:  time.Now().UTC().Add(time.Hour),
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, trigger.msgs)
}

func TestSubmitReading_MalformedJSONRejected(t *testing.T) {
	router := readingRouter(&fakeEnqueuer{})

	req := httptest.NewRequest(http.MethodPost, "/readings", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitReading_EnqueueFailureSurfaces(t *testing.T) {
	trigger := &fakeEnqueuer{err: types.NewAppError(types.ErrCodeInternalQueue, "send failed", errors.New("boom"))}
	router := readingRouter(trigger)

	rec := doJSON(t, router, http.MethodPost, "/readings", SubmitReadingRequest{
		UnitID:      "unit-1",
		Temperature: 4.5,
		ObservedAt:  time.Now().UTC(),
	})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, string(types.ErrCodeInternalQueue), errorCode(t, rec))
}
