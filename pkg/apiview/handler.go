package apiview

import (
	"context"

	"github.com/morezero/apiview-dispatcher/pkg/schema"
)

// Viewer is implemented by every type embedding View.
type Viewer interface {
	APIView() *View
}

// ViewProcessor is the process step of an api-view handler. It reads the
// request from the embedded View and writes the response to it.
type ViewProcessor interface {
	Process(ctx context.Context) error
}

// ViewValidator is the optional validate step of an api-view handler.
type ViewValidator interface {
	Validate(ctx context.Context) error
}

// Processor is the process step of a legacy api handler. The returned value
// becomes the response body; return a *Result to choose status and headers.
type Processor interface {
	Process(ctx context.Context, data map[string]interface{}, entityID string) (interface{}, error)
}

// Validator is the optional validate step of a legacy api handler.
type Validator interface {
	Validate(ctx context.Context, data map[string]interface{}, entityID string) error
}

// Structured is implemented by legacy handlers declaring the shape of their
// data. The data must satisfy every returned schema.
type Structured interface {
	Struct() []schema.Schema
}

// Result lets a legacy Process choose the success status and headers.
// Status outside [200,400) is ignored and 200 is used.
type Result struct {
	Status  int
	Headers map[string]string
	Body    interface{}
}
