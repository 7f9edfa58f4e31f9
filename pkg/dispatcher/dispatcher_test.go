package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morezero/apiview-dispatcher/pkg/apiview"
	"github.com/morezero/apiview-dispatcher/pkg/events"
	"github.com/morezero/apiview-dispatcher/pkg/fetcher"
)

// responseSetters is applied by the test views; zero fields are skipped.
type responseSetters struct {
	code    int
	header  [2]string
	headers map[string]string
	cookie  [2]string
	cookies map[string]string
	body    interface{}
	extra   func(v *apiview.View)
}

func (s *responseSetters) apply(v *apiview.View) {
	if s == nil {
		return
	}
	if s.extra != nil {
		s.extra(v)
	}
	if s.code != 0 {
		v.SetCode(s.code)
	}
	if s.header[0] != "" {
		v.SetHeader(s.header[0], s.header[1])
	}
	if s.headers != nil {
		v.SetHeaders(s.headers)
	}
	if s.cookie[0] != "" {
		v.SetCookie(s.cookie[0], s.cookie[1])
	}
	if s.cookies != nil {
		v.SetCookies(s.cookies)
	}
	if s.body != nil {
		v.SetBody(s.body)
	}
}

type noInheritance struct{}

func (n *noInheritance) Process(context.Context) error { return nil }

type noProcess struct {
	apiview.View
}

type validProcess struct {
	apiview.View
	setters *responseSetters
}

func (p *validProcess) Process(context.Context) error {
	p.setters.apply(&p.View)
	return nil
}

type validateOk struct{ validProcess }

func (v *validateOk) Validate(context.Context) error { return nil }

type validateRejects struct {
	validProcess
	err error
}

func (v *validateRejects) Validate(context.Context) error {
	v.setters.apply(&v.View)
	return v.err
}

type processRejects struct {
	apiview.View
	setters *responseSetters
	err     error
}

func (p *processRejects) Process(context.Context) error {
	p.setters.apply(&p.View)
	return p.err
}

type processPanics struct {
	apiview.View
}

func (p *processPanics) Process(context.Context) error {
	panic("nil map write")
}

// viewFixture registers the api-view handlers used by the tests. setters is
// shared so each test can choose what the handler writes.
func viewFixture(t *testing.T, setters *responseSetters) *Dispatcher {
	t.Helper()
	reg := fetcher.NewRegistry()
	handle := func(entity string, factory fetcher.Factory) {
		reg.Handle(fetcher.APIView, "", entity, "action", "method", factory)
	}

	reg.Register("api-view/invalid-api-class/action/method", map[string]string{"foo": "bar"})
	handle("invalid-api-inheritance", func() interface{} { return &noInheritance{} })
	handle("no-process", func() interface{} { return &noProcess{} })
	handle("valid-process", func() interface{} { return &validProcess{setters: setters} })
	handle("validate-correctly", func() interface{} { return &validateOk{validProcess{setters: setters}} })
	handle("validate-rejects", func() interface{} {
		return &validateRejects{err: errors.New("some data invalid")}
	})
	handle("validate-rejects-default-message", func() interface{} {
		return &validateRejects{err: errors.New("")}
	})
	handle("validate-rejects-custom-code", func() interface{} {
		return &validateRejects{validProcess: validProcess{setters: setters}, err: errors.New("")}
	})
	handle("validate-rejects-http-error", func() interface{} {
		return &validateRejects{err: apiview.NewHTTPError(http.StatusUnauthorized, "").WithHeader("WWW-Authenticate", "Bearer")}
	})
	handle("validate-rejects-out-of-range", func() interface{} {
		return &validateRejects{err: apiview.NewHTTPError(http.StatusServiceUnavailable, "nope")}
	})
	handle("process-rejects", func() interface{} {
		return &processRejects{err: errors.New("some internal error")}
	})
	handle("process-rejects-default-message", func() interface{} {
		return &processRejects{err: errors.New("")}
	})
	handle("process-rejects-custom-code", func() interface{} {
		return &processRejects{setters: setters, err: errors.New("")}
	})
	handle("process-rejects-http-error", func() interface{} {
		return &processRejects{err: &apiview.HTTPError{Status: http.StatusNotImplemented, Err: errors.New("wrapped")}}
	})
	handle("process-rejects-client-status", func() interface{} {
		return &processRejects{err: apiview.NewHTTPError(http.StatusNotFound, "")}
	})
	handle("process-panics", func() interface{} { return &processPanics{} })

	return NewDispatcher(NewDispatcherParams{
		Fetcher:    fetcher.New(reg, fetcher.WithPrefix(func() string { return "" })),
		Generation: fetcher.APIView,
	})
}

func dispatchView(t *testing.T, d *Dispatcher, entity string) *apiview.Response {
	t.Helper()
	req, err := ValidateRequest(map[string]interface{}{"entity": entity, "action": "action", "method": "method"})
	require.NoError(t, err)
	return d.Dispatch(context.Background(), req)
}

func messageOfBody(t *testing.T, resp *apiview.Response) string {
	t.Helper()
	body, ok := resp.Body.(apiview.ErrorBody)
	require.True(t, ok, "expected ErrorBody, got %T", resp.Body)
	return body.Message
}

func TestDispatch_View5xx(t *testing.T) {
	d := viewFixture(t, &responseSetters{})

	for _, entity := range []string{"invalid-entity", "invalid-api-class", "invalid-api-inheritance", "no-process"} {
		t.Run(entity, func(t *testing.T) {
			resp := dispatchView(t, d, entity)
			assert.Equal(t, http.StatusInternalServerError, resp.Code)
			assert.Equal(t, map[string]string{}, resp.Headers)
			assert.Equal(t, map[string]string{}, resp.Cookies)
			assert.NotEmpty(t, messageOfBody(t, resp))
		})
	}

	t.Run("process rejects", func(t *testing.T) {
		resp := dispatchView(t, d, "process-rejects")
		assert.Equal(t, 500, resp.Code)
		assert.Equal(t, "some internal error", messageOfBody(t, resp))
	})

	t.Run("process rejects default message", func(t *testing.T) {
		resp := dispatchView(t, d, "process-rejects-default-message")
		assert.Equal(t, 500, resp.Code)
		assert.Equal(t, "internal server error", messageOfBody(t, resp))
	})

	t.Run("process panics", func(t *testing.T) {
		resp := dispatchView(t, d, "process-panics")
		assert.Equal(t, 500, resp.Code)
		assert.Equal(t, "internal server error", messageOfBody(t, resp))
	})

	t.Run("process http error", func(t *testing.T) {
		resp := dispatchView(t, d, "process-rejects-http-error")
		assert.Equal(t, http.StatusNotImplemented, resp.Code)
		assert.Equal(t, "wrapped", messageOfBody(t, resp))
	})

	t.Run("process http error below 500 is ignored", func(t *testing.T) {
		resp := dispatchView(t, d, "process-rejects-client-status")
		assert.Equal(t, 500, resp.Code)
	})
}

func TestDispatch_ViewProcessCustomCode(t *testing.T) {
	d := viewFixture(t, &responseSetters{code: 501})
	resp := dispatchView(t, d, "process-rejects-custom-code")
	assert.Equal(t, 501, resp.Code)
	assert.Equal(t, "internal server error", messageOfBody(t, resp))
}

func TestDispatch_View4xx(t *testing.T) {
	d := viewFixture(t, &responseSetters{})

	resp := dispatchView(t, d, "validate-rejects")
	assert.Equal(t, 400, resp.Code)
	assert.Equal(t, "some data invalid", messageOfBody(t, resp))

	resp = dispatchView(t, d, "validate-rejects-default-message")
	assert.Equal(t, 400, resp.Code)
	assert.Equal(t, "data invalid", messageOfBody(t, resp))

	resp = dispatchView(t, d, "validate-rejects-http-error")
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.Equal(t, "data invalid", messageOfBody(t, resp))
	assert.Equal(t, map[string]string{"WWW-Authenticate": "Bearer"}, resp.Headers)

	resp = dispatchView(t, d, "validate-rejects-out-of-range")
	assert.Equal(t, 400, resp.Code)
	assert.Equal(t, "nope", messageOfBody(t, resp))
}

func TestDispatch_ViewValidateCustomCode(t *testing.T) {
	d := viewFixture(t, &responseSetters{code: 401})
	resp := dispatchView(t, d, "validate-rejects-custom-code")
	assert.Equal(t, 401, resp.Code)
	assert.Equal(t, "data invalid", messageOfBody(t, resp))
}

func TestDispatch_View2xx(t *testing.T) {
	tests := []struct {
		name        string
		entity      string
		setters     *responseSetters
		wantCode    int
		wantHeaders map[string]string
		wantCookies map[string]string
	}{
		{name: "validates correctly", entity: "validate-correctly", setters: &responseSetters{}, wantCode: 200},
		{name: "no validate", entity: "valid-process", setters: &responseSetters{}, wantCode: 200},
		{name: "custom code", entity: "valid-process", setters: &responseSetters{code: 201}, wantCode: 201},
		{
			name:        "headers",
			entity:      "valid-process",
			setters:     &responseSetters{headers: map[string]string{"valid-header": "123"}},
			wantCode:    200,
			wantHeaders: map[string]string{"valid-header": "123"},
		},
		{
			name:        "single header",
			entity:      "valid-process",
			setters:     &responseSetters{header: [2]string{"valid-header", "123"}},
			wantCode:    200,
			wantHeaders: map[string]string{"valid-header": "123"},
		},
		{
			name:        "cookies",
			entity:      "valid-process",
			setters:     &responseSetters{cookies: map[string]string{"valid-cookie": "123"}},
			wantCode:    200,
			wantCookies: map[string]string{"valid-cookie": "123"},
		},
		{
			name:        "single cookie",
			entity:      "valid-process",
			setters:     &responseSetters{cookie: [2]string{"valid-cookie", "123"}},
			wantCode:    200,
			wantCookies: map[string]string{"valid-cookie": "123"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := viewFixture(t, tt.setters)
			resp := dispatchView(t, d, tt.entity)

			wantHeaders := tt.wantHeaders
			if wantHeaders == nil {
				wantHeaders = map[string]string{}
			}
			wantCookies := tt.wantCookies
			if wantCookies == nil {
				wantCookies = map[string]string{}
			}
			assert.Equal(t, tt.wantCode, resp.Code)
			assert.Equal(t, wantHeaders, resp.Headers)
			assert.Equal(t, wantCookies, resp.Cookies)
		})
	}
}

func TestDispatch_ViewRequestGetters(t *testing.T) {
	var seen bool
	setters := &responseSetters{
		body: map[string]string{"ok": "yes"},
		extra: func(v *apiview.View) {
			seen = true
			assert.Equal(t, "valid-process", v.Entity())
			assert.Equal(t, []string{"10"}, v.PathParameters())
			assert.Equal(t, map[string]interface{}{"some-great-data": json.Number("123")}, v.Data())
			assert.Equal(t, map[string]string{"my-header": "foo"}, v.Headers())
			assert.Equal(t, map[string]string{"my-cookie": "bar"}, v.Cookies())
		},
	}
	d := viewFixture(t, setters)

	req, err := ParseRequest([]byte(`{
		"entity": "valid-process",
		"action": "action",
		"method": "method",
		"entityId": 10,
		"data": {"some-great-data": 123},
		"headers": {"my-header": "foo"},
		"cookies": {"my-cookie": "bar"}
	}`))
	require.NoError(t, err)

	resp := d.Dispatch(context.Background(), req)
	assert.True(t, seen)
	assert.Equal(t, 200, resp.Code)
	assert.Equal(t, map[string]string{"ok": "yes"}, resp.Body)
}

func TestDispatch_ViewPrefix(t *testing.T) {
	reg := fetcher.NewRegistry()
	fetcher.RegisterView[validProcess](reg, "my-custom-prefix", "valid-with-prefix-entity", "action", "method")
	d := NewDispatcher(NewDispatcherParams{Fetcher: fetcher.New(reg)})

	t.Setenv(fetcher.PrefixEnv, "my-custom-prefix")
	resp := dispatchView(t, d, "valid-with-prefix-entity")
	assert.Equal(t, 200, resp.Code)

	t.Setenv(fetcher.PrefixEnv, "")
	resp = dispatchView(t, d, "valid-with-prefix-entity")
	assert.Equal(t, 500, resp.Code)
}

func TestDispatch_Idempotent(t *testing.T) {
	d := viewFixture(t, &responseSetters{code: 202, headers: map[string]string{"a": "1"}, body: "done"})
	first := dispatchView(t, d, "valid-process")
	second := dispatchView(t, d, "valid-process")
	assert.Equal(t, first, second)
}

func TestDispatch_RequestNotModified(t *testing.T) {
	setters := &responseSetters{extra: func(v *apiview.View) {
		v.Data()["injected"] = true
		v.Headers()["injected"] = "yes"
	}}
	d := viewFixture(t, setters)

	req, err := ValidateRequest(map[string]interface{}{
		"entity": "valid-process", "action": "action", "method": "method",
		"data":    map[string]interface{}{"a": 1},
		"headers": map[string]string{"h": "v"},
	})
	require.NoError(t, err)

	d.Dispatch(context.Background(), req)
	assert.NotContains(t, req.Data, "injected")
	assert.NotContains(t, req.Headers, "injected")
}

func TestDispatch_PublishesEvent(t *testing.T) {
	var got []*events.DispatchedEvent
	pub := events.NewCallbackPublisher(func(_ context.Context, e *events.DispatchedEvent) error {
		got = append(got, e)
		return errors.New("publish errors are only logged")
	})

	reg := fetcher.NewRegistry()
	reg.Handle(fetcher.APIView, "", "process-rejects", "action", "method", func() interface{} {
		return &processRejects{err: errors.New("boom")}
	})
	d := NewDispatcher(NewDispatcherParams{
		Fetcher:   fetcher.New(reg, fetcher.WithPrefix(func() string { return "" })),
		Publisher: pub,
	})

	req, err := ValidateRequest(map[string]interface{}{
		"id": "req-7", "entity": "process-rejects", "action": "action", "method": "method", "entityId": "5",
	})
	require.NoError(t, err)

	resp := d.Dispatch(context.Background(), req)
	assert.Equal(t, 500, resp.Code)

	require.Len(t, got, 1)
	assert.Equal(t, "req-7", got[0].RequestID)
	assert.Equal(t, "api-view", got[0].Generation)
	assert.Equal(t, "5", got[0].EntityID)
	assert.Equal(t, 500, got[0].Code)
	assert.Equal(t, string(StageProcess), got[0].FailedStage)
	assert.NotEmpty(t, got[0].Timestamp)
}

func TestNewDispatcher_Defaults(t *testing.T) {
	d := NewDispatcher(NewDispatcherParams{})
	assert.Equal(t, fetcher.APIView, d.Generation())

	resp := dispatchView(t, d, "anything")
	assert.Equal(t, 500, resp.Code)
}
