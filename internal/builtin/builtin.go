// Package builtin registers the handlers every dispatcher deployment serves.
package builtin

import (
	"context"
	"encoding/json"
	"time"

	"github.com/morezero/apiview-dispatcher/pkg/apiview"
	"github.com/morezero/apiview-dispatcher/pkg/fetcher"
	"github.com/morezero/apiview-dispatcher/pkg/schema"
)

const (
	EntityService = "service"
	ActionStatus  = "status"
	ActionEcho    = "echo"
	MethodGet     = "get"
	MethodPost    = "post"
)

// Info describes the running service.
type Info struct {
	Service string
	Started time.Time
	// Now is used for status timestamps; defaults to time.Now.
	Now func() time.Time
}

// Status is the body returned by service/status/get.
type Status struct {
	Service    string `json:"service"`
	Generation string `json:"generation"`
	Time       string `json:"time"`
	UptimeMs   int64  `json:"uptimeMs"`
	EntityID   string `json:"entityId,omitempty"`
}

// Echo is the body returned by service/echo/post.
type Echo struct {
	ID      int64             `json:"id,omitempty"`
	Message string            `json:"message"`
	Repeat  int               `json:"repeat"`
	Headers map[string]string `json:"headers,omitempty"`
}

var echoSchema = schema.MustCompile("service-echo", `{
	"type": "object",
	"required": ["message"],
	"properties": {
		"id": {"type": "integer"},
		"message": {"type": "string", "minLength": 1},
		"repeat": {"type": "integer", "minimum": 1, "maximum": 10, "default": 1}
	}
}`)

// Register adds the builtin handlers of both generations under prefix.
func Register(r *fetcher.Registry, prefix string, info Info) {
	if info.Now == nil {
		info.Now = time.Now
	}

	r.Handle(fetcher.APIView, prefix, EntityService, ActionStatus, MethodGet, func() interface{} {
		return &statusView{info: info}
	})
	r.Handle(fetcher.API, prefix, EntityService, ActionStatus, MethodGet, func() interface{} {
		return &statusAPI{info: info}
	})
	fetcher.RegisterView[echoView](r, prefix, EntityService, ActionEcho, MethodPost)
	fetcher.RegisterAPI(r, prefix, EntityService, ActionEcho, MethodPost, func() *echoAPI {
		return &echoAPI{}
	})
}

func (i Info) status(gen fetcher.Generation, entityID string) Status {
	now := i.Now()
	var uptime int64
	if !i.Started.IsZero() {
		uptime = now.Sub(i.Started).Milliseconds()
	}
	return Status{
		Service:    i.Service,
		Generation: gen.Name(),
		Time:       now.UTC().Format(time.RFC3339),
		UptimeMs:   uptime,
		EntityID:   entityID,
	}
}

type statusView struct {
	apiview.View
	info Info
}

func (h *statusView) Process(context.Context) error {
	var entityID string
	if params := h.PathParameters(); len(params) > 0 {
		entityID = params[0]
	}
	h.SetHeader("Cache-Control", "no-store").
		SetBody(h.info.status(fetcher.APIView, entityID))
	return nil
}

type statusAPI struct {
	info Info
}

func (h *statusAPI) Process(_ context.Context, _ map[string]interface{}, entityID string) (interface{}, error) {
	return &apiview.Result{
		Headers: map[string]string{"Cache-Control": "no-store"},
		Body:    h.info.status(fetcher.API, entityID),
	}, nil
}

type echoView struct {
	apiview.View
	parsed map[string]interface{}
}

func (h *echoView) Validate(context.Context) error {
	parsed, err := echoSchema.Validate(h.Data())
	if err != nil {
		return err
	}
	h.parsed = parsed
	return nil
}

func (h *echoView) Process(context.Context) error {
	h.SetCode(201).SetBody(echoOf(h.parsed, h.Headers()))
	return nil
}

type echoAPI struct{}

func (h *echoAPI) Struct() []schema.Schema {
	return []schema.Schema{echoSchema}
}

func (h *echoAPI) Process(_ context.Context, data map[string]interface{}, _ string) (interface{}, error) {
	return &apiview.Result{Status: 201, Body: echoOf(data, nil)}, nil
}

func echoOf(data map[string]interface{}, headers map[string]string) Echo {
	e := Echo{Repeat: 1, Headers: headers}
	e.Message, _ = data["message"].(string)
	if n, ok := data["repeat"].(json.Number); ok {
		if v, err := n.Int64(); err == nil {
			e.Repeat = int(v)
		}
	}
	if n, ok := data["id"].(json.Number); ok {
		if v, err := n.Int64(); err == nil {
			e.ID = v
		}
	}
	return e
}
