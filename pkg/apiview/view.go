// Package apiview holds the per-request handler context, the handler
// contracts and the error types shared by the fetcher and the dispatcher.
package apiview

// Response is the envelope returned for every dispatch.
type Response struct {
	Code    int               `json:"code"`
	Headers map[string]string `json:"headers"`
	Cookies map[string]string `json:"cookies,omitempty"`
	Body    interface{}       `json:"body,omitempty"`
}

// ErrorBody is the body written when a dispatch fails.
type ErrorBody struct {
	Message string `json:"message"`
}

type request struct {
	entity         string
	data           map[string]interface{}
	pathParameters []string
	headers        map[string]string
	cookies        map[string]string
}

// View is the base every api-view handler embeds. The dispatcher fills the
// request side before Validate runs; the handler writes the response side
// through the chainable setters.
type View struct {
	request  request
	response Response
}

// NewView returns an empty View.
func NewView() *View {
	v := &View{}
	v.init()
	return v
}

func (v *View) init() {
	if v.response.Headers == nil {
		v.response.Headers = make(map[string]string)
	}
	if v.response.Cookies == nil {
		v.response.Cookies = make(map[string]string)
	}
}

// APIView returns the embedded View. It is the capability the fetcher checks
// to tell api-view handlers apart from arbitrary types.
func (v *View) APIView() *View {
	return v
}

// --- request ---

func (v *View) SetEntity(entity string) { v.request.entity = entity }

func (v *View) Entity() string { return v.request.entity }

func (v *View) SetData(data map[string]interface{}) { v.request.data = data }

func (v *View) Data() map[string]interface{} { return v.request.data }

func (v *View) SetPathParameters(params []string) { v.request.pathParameters = params }

func (v *View) PathParameters() []string { return v.request.pathParameters }

// SetRequestHeaders sets the inbound headers. Use SetHeaders for the response.
func (v *View) SetRequestHeaders(headers map[string]string) { v.request.headers = headers }

// Headers returns the inbound request headers.
func (v *View) Headers() map[string]string { return v.request.headers }

// SetRequestCookies sets the inbound cookies. Use SetCookies for the response.
func (v *View) SetRequestCookies(cookies map[string]string) { v.request.cookies = cookies }

// Cookies returns the inbound request cookies.
func (v *View) Cookies() map[string]string { return v.request.cookies }

// --- response ---

// Response returns a copy of the response built so far. A zero Code means no
// code has been set yet.
func (v *View) Response() Response {
	return Response{
		Code:    v.response.Code,
		Headers: copyMap(v.response.Headers),
		Cookies: copyMap(v.response.Cookies),
		Body:    v.response.Body,
	}
}

func (v *View) SetCode(code int) *View {
	v.response.Code = code
	return v
}

func (v *View) SetHeader(name, value string) *View {
	v.init()
	v.response.Headers[name] = value
	return v
}

// SetHeaders merges headers into the response headers; later values win.
func (v *View) SetHeaders(headers map[string]string) *View {
	v.init()
	for name, value := range headers {
		v.response.Headers[name] = value
	}
	return v
}

func (v *View) SetCookie(name, value string) *View {
	v.init()
	v.response.Cookies[name] = value
	return v
}

// SetCookies merges cookies into the response cookies; later values win.
func (v *View) SetCookies(cookies map[string]string) *View {
	v.init()
	for name, value := range cookies {
		v.response.Cookies[name] = value
	}
	return v
}

func (v *View) SetBody(body interface{}) *View {
	v.response.Body = body
	return v
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, val := range m {
		out[k] = val
	}
	return out
}
