package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestSend(t *testing.T) {
	t.Run("Should deliver exactly one success value", func(t *testing.T) {
		client := newTestClient(t, jsonHandler(200, "application/json", `{"id":3,"name":"bolt"}`))

		call := Send[widget](context.Background(), client, Request{Endpoint: "/"})

		results := 0
		for r := range call.Done() {
			results++
			require.NoError(t, r.Err)
			assert.Equal(t, widget{ID: 3, Name: "bolt"}, r.Value)
		}
		assert.Equal(t, 1, results)
	})

	t.Run("Should deliver exactly one failure", func(t *testing.T) {
		client := newTestClient(t, jsonHandler(404, "application/json", `{}`))

		_, err := Send[widget](context.Background(), client, Request{Endpoint: "/"}).Wait()
		assert.ErrorIs(t, err, ErrStatus)
	})

	t.Run("Should make one network call per send", func(t *testing.T) {
		var hits atomic.Int32
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(503)
		}))

		_, err := Send[widget](context.Background(), client, Request{Endpoint: "/"}).Wait()
		assert.ErrorIs(t, err, ErrStatus)
		assert.Equal(t, int32(1), hits.Load())
	})

	t.Run("Should deliver nothing after cancel", func(t *testing.T) {
		defer goleak.VerifyNone(t,
			goleak.IgnoreCurrent(),
			goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
			goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
			goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
		)

		arrived := make(chan struct{})
		aborted := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			close(arrived)
			<-r.Context().Done()
			close(aborted)
		}))
		client := NewClient(server.URL)

		call := Send[widget](context.Background(), client, Request{Endpoint: "/slow"})
		<-arrived
		call.Cancel()

		select {
		case r, ok := <-call.Done():
			assert.False(t, ok, "cancelled call must not deliver a result, got %+v", r)
		case <-time.After(5 * time.Second):
			t.Fatal("cancelled call never closed")
		}

		select {
		case <-aborted:
		case <-time.After(5 * time.Second):
			t.Fatal("in-flight request was not aborted")
		}

		_, err := call.Wait()
		assert.ErrorIs(t, err, context.Canceled)

		client.Close()
		server.Close()
	})

	t.Run("Should keep the result when cancelled after completion", func(t *testing.T) {
		client := newTestClient(t, jsonHandler(200, "application/json", `{"id":9}`))

		call := Send[widget](context.Background(), client, Request{Endpoint: "/"})
		r, ok := <-call.Done()
		require.True(t, ok)
		call.Cancel()

		require.NoError(t, r.Err)
		assert.Equal(t, 9, r.Value.ID)
	})
}
