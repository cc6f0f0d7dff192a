package index

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smithciaran833/TicketToken-Platform-Backend-sub009/internal/model"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPClient(srv.URL, 2000, 100, 1000)
}

func TestMutateUpsertSendsTokenAndVersion(t *testing.T) {
	var gotMethod, gotPath, gotToken, gotVersion string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotToken = r.Header.Get("X-Idempotency-Token")
		gotVersion = r.Header.Get("X-Expected-Version")
		w.WriteHeader(http.StatusOK)
	})

	err := c.Mutate(context.Background(), MutateRequest{
		TenantID:        "t1",
		EntityType:      "venue",
		EntityID:        "v1",
		Kind:            model.KindUpsert,
		Token:           "aabb",
		ExpectedVersion: 3,
		Payload:         json.RawMessage(`{"schema":1,"name":"Roxy"}`),
	})

	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/v1/t1/venue/v1", gotPath)
	assert.Equal(t, "aabb", gotToken)
	assert.Equal(t, "3", gotVersion)
}

func TestMutateDeleteUsesDelete(t *testing.T) {
	var gotMethod string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		w.WriteHeader(http.StatusOK)
	})

	err := c.Mutate(context.Background(), MutateRequest{
		TenantID: "t1", EntityType: "venue", EntityID: "v1",
		Kind: model.KindDelete, Token: "aabb",
	})

	require.NoError(t, err)
	assert.Equal(t, http.MethodDelete, gotMethod)
}

func TestMutateClassifiesErrors(t *testing.T) {
	cases := []struct {
		status    int
		conflict  bool
		permanent bool
	}{
		{http.StatusConflict, true, false},
		{http.StatusBadRequest, false, true},
		{http.StatusUnprocessableEntity, false, true},
		{http.StatusTooManyRequests, false, false},
		{http.StatusInternalServerError, false, false},
		{http.StatusBadGateway, false, false},
	}

	for _, tc := range cases {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		})
		err := c.Mutate(context.Background(), MutateRequest{
			TenantID: "t1", EntityType: "venue", EntityID: "v1",
			Kind: model.KindUpsert, Token: "aabb",
		})
		require.Error(t, err, "status %d", tc.status)
		if tc.conflict {
			assert.Equal(t, ErrConflict, err)
		} else {
			assert.Equal(t, tc.permanent, IsPermanent(err), "status %d", tc.status)
		}
	}
}

func TestMutateBreakerShortCircuits(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, 2000, 2, 60000)
	req := MutateRequest{TenantID: "t1", EntityType: "venue", EntityID: "v1", Kind: model.KindUpsert, Token: "aabb"}

	for i := 0; i < 5; i++ {
		_ = c.Mutate(context.Background(), req)
	}

	// threshold=2: only the first two attempts reach the network
	assert.Equal(t, 2, calls)
	assert.Equal(t, ErrBreakerOpen, c.Mutate(context.Background(), req))
}

func TestGet(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/t1/venue/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(Document{Version: 7, Token: "ffee"})
	})

	doc, err := c.Get(context.Background(), "t1", "venue", "v1")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, int64(7), doc.Version)
	assert.Equal(t, "ffee", doc.Token)

	doc, err = c.Get(context.Background(), "t1", "venue", "missing")
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestGetHonorsBreaker(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, 2000, 2, 60000)

	for i := 0; i < 5; i++ {
		_, _ = c.Get(context.Background(), "t1", "venue", "v1")
	}

	// threshold=2: point reads fail fast once mutations would too
	assert.Equal(t, 2, calls)
	_, err := c.Get(context.Background(), "t1", "venue", "v1")
	assert.Equal(t, ErrBreakerOpen, err)
}
