package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/morezero/apiview-dispatcher/pkg/apiview"
	"github.com/morezero/apiview-dispatcher/pkg/events"
	"github.com/morezero/apiview-dispatcher/pkg/fetcher"
)

const logPrefix = "dispatcher:dispatch"

const (
	defaultValidateMessage = "data invalid"
	defaultProcessMessage  = "internal server error"
)

// Stage names a pipeline stage.
type Stage string

const (
	StagePrepare  Stage = "prepare"
	StageValidate Stage = "validate"
	StageProcess  Stage = "process"
)

// Dispatcher resolves handlers for dispatch requests and runs them.
// It keeps no per-request state and is safe for concurrent use.
type Dispatcher struct {
	fetcher    *fetcher.Fetcher
	generation fetcher.Generation
	publisher  events.EventPublisher
}

// NewDispatcherParams holds parameters for NewDispatcher.
type NewDispatcherParams struct {
	Fetcher *fetcher.Fetcher
	// Generation selects the handler contract; defaults to fetcher.APIView.
	Generation fetcher.Generation
	Publisher  events.EventPublisher
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(params NewDispatcherParams) *Dispatcher {
	gen := params.Generation
	if gen.Name() == "" {
		gen = fetcher.APIView
	}
	pub := params.Publisher
	if pub == nil {
		pub = &events.NoOpPublisher{}
	}
	f := params.Fetcher
	if f == nil {
		f = fetcher.New(fetcher.NewRegistry())
	}
	return &Dispatcher{fetcher: f, generation: gen, publisher: pub}
}

// Generation returns the handler generation this dispatcher serves.
func (d *Dispatcher) Generation() fetcher.Generation {
	return d.generation
}

// Dispatch runs req through prepare, validate and process and returns the
// response envelope. Handler errors and panics never escape; they are
// reported through the envelope code and body.
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request) *apiview.Response {
	start := time.Now()
	slog.Debug(fmt.Sprintf("%s - %s %s/%s/%s id=%s", logPrefix, d.generation.Name(), req.Entity, req.Action, req.Method, req.ID))

	c := &call{gen: d.generation, req: req}
	c.prepare(d.fetcher)
	c.validate(ctx)
	c.process(ctx)
	resp := c.response()

	if c.failedAt != "" {
		slog.Warn(fmt.Sprintf("%s - %s/%s/%s failed at %s with %d", logPrefix, req.Entity, req.Action, req.Method, c.failedAt, resp.Code))
	}

	d.publish(ctx, c, resp, time.Since(start))
	return resp
}

func (d *Dispatcher) publish(ctx context.Context, c *call, resp *apiview.Response, elapsed time.Duration) {
	event := &events.DispatchedEvent{
		RequestID:   c.req.ID,
		Generation:  d.generation.Name(),
		Entity:      c.req.Entity,
		Action:      c.req.Action,
		Method:      c.req.Method,
		EntityID:    c.req.EntityID,
		Code:        resp.Code,
		FailedStage: string(c.failedAt),
		DurationMs:  elapsed.Milliseconds(),
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
	if err := d.publisher.PublishDispatched(ctx, event); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to publish dispatched event: %v", logPrefix, err))
	}
}

// call is the state of a single dispatch.
type call struct {
	gen      fetcher.Generation
	req      *Request
	handler  interface{}
	view     *apiview.View
	data     map[string]interface{}
	failedAt Stage
}

func (c *call) prepare(f *fetcher.Fetcher) {
	c.data = copyData(c.req.Data)

	instance, err := f.Fetch(c.gen, c.req.Entity, c.req.Action, c.req.Method)
	if err != nil {
		// A blank view carries the error response.
		c.view = apiview.NewView()
		c.fail(StagePrepare, err.Error(), http.StatusInternalServerError, nil)
		return
	}
	c.handler = instance

	if !c.gen.IsView() {
		c.view = apiview.NewView()
		return
	}

	view := instance.(apiview.Viewer).APIView()
	if view == nil {
		c.view = apiview.NewView()
		c.fail(StagePrepare, fmt.Sprintf("API '%T' returned no APIView", instance), http.StatusInternalServerError, nil)
		return
	}
	c.view = view
	c.view.SetEntity(c.req.Entity)
	c.view.SetData(c.data)
	c.view.SetPathParameters(c.req.PathParameters())
	c.view.SetRequestHeaders(copyStrings(c.req.Headers))
	c.view.SetRequestCookies(copyStrings(c.req.Cookies))
}

func (c *call) validate(ctx context.Context) {
	if c.failedAt != "" {
		return
	}

	if !c.gen.IsView() {
		if structured, ok := c.handler.(apiview.Structured); ok {
			var parsed map[string]interface{}
			err := guard(StageValidate, func() error {
				var err error
				parsed, err = validateStruct(structured, c.data)
				return err
			})
			if err != nil {
				c.fail(StageValidate, messageOf(err, defaultValidateMessage), http.StatusBadRequest, nil)
				return
			}
			c.data = parsed
		}
	}

	err := guard(StageValidate, func() error {
		switch h := c.handler.(type) {
		case apiview.ViewValidator:
			if c.gen.IsView() {
				return h.Validate(ctx)
			}
		case apiview.Validator:
			if !c.gen.IsView() {
				return h.Validate(ctx, c.data, c.req.EntityID)
			}
		}
		return nil
	})
	if err != nil {
		status, headers := classify(err, http.StatusBadRequest, 400, 500)
		c.fail(StageValidate, messageOf(err, defaultValidateMessage), status, headers)
	}
}

func (c *call) process(ctx context.Context) {
	if c.failedAt != "" {
		return
	}

	var result interface{}
	err := guard(StageProcess, func() error {
		if c.gen.IsView() {
			return c.handler.(apiview.ViewProcessor).Process(ctx)
		}
		var err error
		result, err = c.handler.(apiview.Processor).Process(ctx, c.data, c.req.EntityID)
		return err
	})
	if err != nil {
		status, headers := classify(err, http.StatusInternalServerError, 500, 600)
		c.fail(StageProcess, messageOf(err, defaultProcessMessage), status, headers)
		return
	}

	if !c.gen.IsView() {
		c.setResult(result)
	}
}

// setResult writes a legacy process result to the response.
func (c *call) setResult(result interface{}) {
	code := http.StatusOK
	body := result
	var headers map[string]string

	var r *apiview.Result
	switch v := result.(type) {
	case *apiview.Result:
		r = v
	case apiview.Result:
		r = &v
	}
	if r != nil {
		body = r.Body
		headers = r.Headers
		if r.Status >= 200 && r.Status < 400 {
			code = r.Status
		}
	}

	c.view.SetCode(code).SetHeaders(headers).SetBody(body)
}

// fail records the first failure. A code already set by the handler is kept.
func (c *call) fail(stage Stage, message string, code int, headers map[string]string) {
	c.failedAt = stage
	if c.view.Response().Code == 0 {
		c.view.SetCode(code)
	}
	c.view.SetHeaders(headers).SetBody(apiview.ErrorBody{Message: message})
}

func (c *call) response() *apiview.Response {
	if c.view.Response().Code == 0 {
		c.view.SetCode(http.StatusOK)
	}
	resp := c.view.Response()
	if !c.gen.IsView() {
		resp.Cookies = nil
	}
	return &resp
}

// classify returns the status carried by an *apiview.HTTPError when it lies
// in [low, high), otherwise def, and the error's response headers.
func classify(err error, def, low, high int) (int, map[string]string) {
	var httpErr *apiview.HTTPError
	if !errors.As(err, &httpErr) {
		return def, nil
	}
	if httpErr.Status >= low && httpErr.Status < high {
		return httpErr.Status, httpErr.Headers
	}
	return def, httpErr.Headers
}

func messageOf(err error, def string) string {
	if msg := err.Error(); msg != "" {
		return msg
	}
	return def
}

// errPanic is reported for recovered panics; its empty message selects the
// stage default.
var errPanic = errors.New("")

func guard(stage Stage, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error(fmt.Sprintf("%s - recovered panic in %s: %v", logPrefix, stage, r))
			err = errPanic
		}
	}()
	return fn()
}

func copyData(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyStrings(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
