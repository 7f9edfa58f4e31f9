package builtin

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morezero/apiview-dispatcher/pkg/apiview"
	"github.com/morezero/apiview-dispatcher/pkg/dispatcher"
	"github.com/morezero/apiview-dispatcher/pkg/fetcher"
)

var (
	started = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	now     = started.Add(90 * time.Second)
)

func newDispatcher(t *testing.T, gen fetcher.Generation) *dispatcher.Dispatcher {
	t.Helper()
	reg := fetcher.NewRegistry()
	Register(reg, "", Info{Service: "svc", Started: started, Now: func() time.Time { return now }})
	return dispatcher.NewDispatcher(dispatcher.NewDispatcherParams{
		Fetcher:    fetcher.New(reg, fetcher.WithPrefix(func() string { return "" })),
		Generation: gen,
	})
}

func dispatch(t *testing.T, d *dispatcher.Dispatcher, candidate map[string]interface{}) *apiview.Response {
	t.Helper()
	req, err := dispatcher.ValidateRequest(candidate)
	require.NoError(t, err)
	return d.Dispatch(context.Background(), req)
}

func TestRegister_Paths(t *testing.T) {
	reg := fetcher.NewRegistry()
	Register(reg, "/srv", Info{Service: "svc"})

	assert.Equal(t, []string{
		"srv/api-view/service/echo/post",
		"srv/api-view/service/status/get",
		"srv/api/service/echo/post",
		"srv/api/service/status/get",
	}, reg.Paths())
}

func TestStatus(t *testing.T) {
	for _, gen := range []fetcher.Generation{fetcher.APIView, fetcher.API} {
		t.Run(gen.Name(), func(t *testing.T) {
			d := newDispatcher(t, gen)
			resp := dispatch(t, d, map[string]interface{}{
				"entity": "service", "action": "status", "method": "get", "entityId": "node-1",
			})

			assert.Equal(t, 200, resp.Code)
			assert.Equal(t, "no-store", resp.Headers["Cache-Control"])
			assert.Equal(t, Status{
				Service:    "svc",
				Generation: gen.Name(),
				Time:       "2026-01-02T03:05:35Z",
				UptimeMs:   90000,
				EntityID:   "node-1",
			}, resp.Body)
		})
	}
}

func TestEcho(t *testing.T) {
	for _, gen := range []fetcher.Generation{fetcher.APIView, fetcher.API} {
		t.Run(gen.Name(), func(t *testing.T) {
			d := newDispatcher(t, gen)

			resp := dispatch(t, d, map[string]interface{}{
				"entity": "service", "action": "echo", "method": "post",
				"data": map[string]interface{}{"message": "hi"},
			})
			assert.Equal(t, 201, resp.Code)
			body, ok := resp.Body.(Echo)
			require.True(t, ok, "body is %T", resp.Body)
			assert.Equal(t, "hi", body.Message)
			assert.Equal(t, 1, body.Repeat)

			resp = dispatch(t, d, map[string]interface{}{
				"entity": "service", "action": "echo", "method": "post",
				"data": map[string]interface{}{"message": "hi", "repeat": 3},
			})
			assert.Equal(t, 201, resp.Code)
			assert.Equal(t, 3, resp.Body.(Echo).Repeat)

			resp = dispatch(t, d, map[string]interface{}{
				"entity": "service", "action": "echo", "method": "post",
				"data": map[string]interface{}{"repeat": 3},
			})
			assert.Equal(t, 400, resp.Code)
			errBody, ok := resp.Body.(apiview.ErrorBody)
			require.True(t, ok)
			assert.NotEmpty(t, errBody.Message)
		})
	}
}

func TestEcho_KeepsLargeIDs(t *testing.T) {
	for _, gen := range []fetcher.Generation{fetcher.APIView, fetcher.API} {
		t.Run(gen.Name(), func(t *testing.T) {
			d := newDispatcher(t, gen)
			req, err := dispatcher.ParseRequest([]byte(`{"entity":"service","action":"echo","method":"post","data":{"message":"hi","id":9007199254740993}}`))
			require.NoError(t, err)

			resp := d.Dispatch(context.Background(), req)
			require.Equal(t, 201, resp.Code)
			assert.Equal(t, int64(9007199254740993), resp.Body.(Echo).ID)
		})
	}
}

func TestEcho_ViewReturnsRequestHeaders(t *testing.T) {
	d := newDispatcher(t, fetcher.APIView)
	resp := dispatch(t, d, map[string]interface{}{
		"entity": "service", "action": "echo", "method": "post",
		"headers": map[string]interface{}{"x-trace": "abc"},
		"data":    map[string]interface{}{"message": "hi"},
	})
	require.Equal(t, 201, resp.Code)
	assert.Equal(t, map[string]string{"x-trace": "abc"}, resp.Body.(Echo).Headers)
}
