package components

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/proxytap/core/internal/model"
	"github.com/tidwall/gjson"
)

// registerBuiltins wires the canonical builtin table — every row, no more,
// no less.
func registerBuiltins(r *Registry) {
	r.registerBuiltin("header-rewrite", []ParamSpec{
		{Name: "addHeaderName", Type: ParamString},
		{Name: "addHeaderValue", Type: ParamString},
		{Name: "removeHeaderNames", Type: ParamString},
	}, headerRewrite)
	r.registerBuiltin("mock-response", []ParamSpec{
		{Name: "statusCode", Type: ParamNumber, Default: numPtr(200)},
		{Name: "statusMessage", Type: ParamString},
		{Name: "contentType", Type: ParamString, Default: strPtr("application/json")},
		{Name: "body", Type: ParamString},
		{Name: "headersJson", Type: ParamJSON},
	}, mockResponse)
	r.registerBuiltin("delay", []ParamSpec{
		{Name: "ms", Type: ParamNumber, Required: true},
	}, delay)
	r.registerBuiltin("url-host-rewrite", []ParamSpec{
		{Name: "targetHost", Type: ParamString, Required: true},
		{Name: "targetScheme", Type: ParamString, Default: strPtr("https")},
		{Name: "preserveHostHeader", Type: ParamBoolean, Default: boolPtr(false)},
	}, urlHostRewrite)
	r.registerBuiltin("url-query-params", []ParamSpec{
		{Name: "addParamsJson", Type: ParamJSON},
		{Name: "removeParamNames", Type: ParamString},
	}, urlQueryParams)
	r.registerBuiltin("upstream-host", []ParamSpec{
		{Name: "targetHost", Type: ParamString, Required: true},
		{Name: "targetScheme", Type: ParamString, Default: strPtr("http")},
	}, upstreamHost)
	r.registerBuiltin("json-body-modify", []ParamSpec{
		{Name: "jsonPath", Type: ParamString, Required: true},
		{Name: "operation", Type: ParamString, Required: true},
		{Name: "valueJson", Type: ParamJSON},
	}, jsonBodyModify)
	r.registerBuiltin("response-override", []ParamSpec{
		{Name: "statusCode", Type: ParamNumber, Default: numPtr(200)},
		{Name: "statusMessage", Type: ParamString},
		{Name: "contentType", Type: ParamString, Default: strPtr("application/json")},
		{Name: "body", Type: ParamString},
	}, responseOverride)
	r.registerBuiltin("header-copy", []ParamSpec{
		{Name: "sourceHeader", Type: ParamString, Required: true},
		{Name: "targetHeader", Type: ParamString, Required: true},
	}, headerCopy)
	r.registerBuiltin("cookie-inject", []ParamSpec{
		{Name: "cookieName", Type: ParamString, Required: true},
		{Name: "cookieValue", Type: ParamString, Required: true},
	}, cookieInject)
	r.registerBuiltin("auth-inject", []ParamSpec{
		{Name: "scheme", Type: ParamString, Default: strPtr("Bearer")},
		{Name: "token", Type: ParamString, Required: true},
		{Name: "overrideExisting", Type: ParamBoolean, Default: boolPtr(true)},
	}, authInject)
	r.registerBuiltin("bandwidth-throttle", []ParamSpec{
		{Name: "delayMs", Type: ParamNumber, Required: true},
	}, bandwidthThrottle)
	r.registerBuiltin("random-failure", []ParamSpec{
		{Name: "errorRate", Type: ParamNumber, Default: numPtr(0)},
		{Name: "statusCode", Type: ParamNumber, Default: numPtr(503)},
		{Name: "body", Type: ParamString},
	}, randomFailure)
	r.registerBuiltin("retry-hint", []ParamSpec{
		{Name: "maxRetries", Type: ParamNumber, Default: numPtr(0)},
		{Name: "retryDelayMs", Type: ParamNumber, Default: numPtr(0)},
		{Name: "retryOnStatusCodes", Type: ParamString},
	}, retryHint)
	r.registerBuiltin("cors-allow-all", []ParamSpec{
		{Name: "allowOrigins", Type: ParamString, Default: strPtr("*")},
		{Name: "allowMethods", Type: ParamString, Default: strPtr("GET,POST,PUT,PATCH,DELETE,OPTIONS")},
		{Name: "allowHeaders", Type: ParamString, Default: strPtr("*")},
	}, corsAllowAll)
	r.registerBuiltin("static-local-file", []ParamSpec{
		{Name: "filePath", Type: ParamString, Required: true},
		{Name: "contentType", Type: ParamString, Default: strPtr("text/plain")},
	}, staticLocalFile)
	r.registerBuiltin("log-message", []ParamSpec{
		{Name: "message", Type: ParamString, Required: true},
	}, logMessage)
	r.registerBuiltin("tag-request", []ParamSpec{
		{Name: "tagKey", Type: ParamString, Required: true},
		{Name: "tagValue", Type: ParamString, Required: true},
	}, tagRequest)
}

func strPtr(s string) *Value  { v := StringValue(s); return &v }
func numPtr(n float64) *Value { v := NumberValue(n); return &v }
func boolPtr(b bool) *Value   { v := BoolValue(b); return &v }

func csv(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// headerRewrite sets one header and removes listed headers.
func headerRewrite(p map[string]Value, ctx *Context) (*Result, error) {
	req := ctx.Request.Clone()
	if name := p["addHeaderName"].AsString(); name != "" {
		req.Headers.Set(name, p["addHeaderValue"].AsString())
	}
	for _, name := range csv(p["removeHeaderNames"].AsString()) {
		req.Headers.Del(name)
	}
	return &Result{ReplacementRequest: req}, nil
}

// mockResponse produces a response and terminates.
func mockResponse(p map[string]Value, ctx *Context) (*Result, error) {
	resp := buildSyntheticResponse(p)
	return &Result{Response: resp, Terminate: true}, nil
}

// responseOverride has the same shape as mockResponse, kept as a distinct
// builtin name to match the canonical set's enumeration exactly.
func responseOverride(p map[string]Value, ctx *Context) (*Result, error) {
	resp := buildSyntheticResponse(p)
	return &Result{Response: resp, Terminate: true}, nil
}

func buildSyntheticResponse(p map[string]Value) *model.HTTPResponse {
	status := int(p["statusCode"].Num)
	if status == 0 {
		status = 200
	}
	headers := model.Header{}
	if ct := p["contentType"].AsString(); ct != "" {
		headers.Set("Content-Type", ct)
	}
	body := p["body"].AsString()
	headers.Set("Content-Length", strconv.Itoa(len(body)))
	if hj, ok := p["headersJson"]; ok && hj.Kind == KindMap {
		for k, v := range hj.Map {
			headers.Set(k, v.AsString())
		}
	}
	return &model.HTTPResponse{
		StatusCode: status,
		Reason:     p["statusMessage"].AsString(),
		Headers:    headers,
		Body:       body,
	}
}

// delay suspends the flow for ms milliseconds.
func delay(p map[string]Value, ctx *Context) (*Result, error) {
	ms, _ := p["ms"].AsNumber()
	if ms > 0 {
		time.Sleep(time.Duration(ms) * time.Millisecond)
	}
	return &Result{}, nil
}

// bandwidthThrottle uses the same suspension mechanic as delay, under a
// separate builtin name.
func bandwidthThrottle(p map[string]Value, ctx *Context) (*Result, error) {
	ms, _ := p["delayMs"].AsNumber()
	if ms > 0 {
		time.Sleep(time.Duration(ms) * time.Millisecond)
	}
	return &Result{}, nil
}

// urlHostRewrite replaces scheme+host+port on the absolute URL; updates the
// Host header unless preserveHostHeader is set.
func urlHostRewrite(p map[string]Value, ctx *Context) (*Result, error) {
	req := ctx.Request.Clone()
	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, fmt.Errorf("url-host-rewrite: parsing request URL: %w", err)
	}
	targetHost := p["targetHost"].AsString()
	u.Host = targetHost
	if scheme := p["targetScheme"].AsString(); scheme != "" {
		u.Scheme = scheme
	}
	req.URL = u.String()
	preserve, _ := p["preserveHostHeader"].AsBool()
	if !preserve {
		req.Headers.Set("Host", targetHost)
	}
	return &Result{ReplacementRequest: req}, nil
}

// upstreamHost is like urlHostRewrite, default scheme http, always
// rewrites the Host header.
func upstreamHost(p map[string]Value, ctx *Context) (*Result, error) {
	req := ctx.Request.Clone()
	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, fmt.Errorf("upstream-host: parsing request URL: %w", err)
	}
	targetHost := p["targetHost"].AsString()
	u.Host = targetHost
	scheme := p["targetScheme"].AsString()
	if scheme == "" {
		scheme = "http"
	}
	u.Scheme = scheme
	req.URL = u.String()
	req.Headers.Set("Host", targetHost)
	return &Result{ReplacementRequest: req}, nil
}

// urlQueryParams adds and removes URL query params.
func urlQueryParams(p map[string]Value, ctx *Context) (*Result, error) {
	req := ctx.Request.Clone()
	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, fmt.Errorf("url-query-params: parsing request URL: %w", err)
	}
	q := u.Query()
	if add, ok := p["addParamsJson"]; ok && add.Kind == KindMap {
		for k, v := range add.Map {
			q.Set(k, v.AsString())
		}
	}
	for _, name := range csv(p["removeParamNames"].AsString()) {
		q.Del(name)
	}
	u.RawQuery = q.Encode()
	req.URL = u.String()
	return &Result{ReplacementRequest: req}, nil
}

// jsonBodyModify parses the request body as JSON (requires
// application/json), applies operation at path, re-serializes, and updates
// Content-Length. A non-JSON request is a no-op.
func jsonBodyModify(p map[string]Value, ctx *Context) (*Result, error) {
	req := ctx.Request
	if !strings.Contains(strings.ToLower(req.Headers.Get("Content-Type")), "application/json") {
		return &Result{}, nil
	}
	if !gjson.Valid(req.Body) {
		return &Result{}, nil
	}
	path := p["jsonPath"].AsString()
	op := p["operation"].AsString()
	valueJSON := "null"
	if v, ok := p["valueJson"]; ok {
		if b := rawJSON(v); b != "" {
			valueJSON = b
		}
	}
	newBody, err := applyJSONPathOp(req.Body, path, op, valueJSON)
	if err != nil {
		return nil, fmt.Errorf("json-body-modify: %w", err)
	}
	out := req.Clone()
	out.Body = newBody
	out.Headers.Set("Content-Length", strconv.Itoa(len(newBody)))
	return &Result{ReplacementRequest: out}, nil
}

func rawJSON(v Value) string {
	b, err := json.Marshal(v.ToAny())
	if err != nil {
		return "null"
	}
	return string(b)
}

// headerCopy copies value if source exists.
func headerCopy(p map[string]Value, ctx *Context) (*Result, error) {
	req := ctx.Request.Clone()
	src := p["sourceHeader"].AsString()
	dst := p["targetHeader"].AsString()
	if v := req.Headers.Get(src); v != "" {
		req.Headers.Set(dst, v)
	}
	return &Result{ReplacementRequest: req}, nil
}

// cookieInject merges into the Cookie header jar.
func cookieInject(p map[string]Value, ctx *Context) (*Result, error) {
	req := ctx.Request.Clone()
	name := p["cookieName"].AsString()
	value := p["cookieValue"].AsString()
	jar := parseCookieJar(req.Headers.Get("Cookie"))
	jar[name] = value
	req.Headers.Set("Cookie", encodeCookieJar(jar))
	return &Result{ReplacementRequest: req}, nil
}

func parseCookieJar(header string) map[string]string {
	jar := make(map[string]string)
	for _, part := range strings.Split(header, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		if len(kv) == 2 {
			jar[kv[0]] = kv[1]
		}
	}
	return jar
}

func encodeCookieJar(jar map[string]string) string {
	parts := make([]string, 0, len(jar))
	for k, v := range jar {
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, "; ")
}

// authInject sets Authorization: <scheme> <token>.
func authInject(p map[string]Value, ctx *Context) (*Result, error) {
	req := ctx.Request.Clone()
	override := true
	if v, ok := p["overrideExisting"]; ok && v.Kind != KindNull {
		override, _ = v.AsBool()
	}
	if !override && req.Headers.Get("Authorization") != "" {
		return &Result{ReplacementRequest: req}, nil
	}
	req.Headers.Set("Authorization", p["scheme"].AsString()+" "+p["token"].AsString())
	return &Result{ReplacementRequest: req}, nil
}

// randomFailure synthesizes an error response and terminates with
// probability errorRate.
func randomFailure(p map[string]Value, ctx *Context) (*Result, error) {
	rate, _ := p["errorRate"].AsNumber()
	if rate <= 0 {
		return &Result{}, nil
	}
	if rate >= 1 || rand.Float64() < rate {
		status := int(p["statusCode"].Num)
		if status == 0 {
			status = 503
		}
		body := p["body"].AsString()
		headers := model.Header{}
		headers.Set("Content-Type", "text/plain")
		headers.Set("Content-Length", strconv.Itoa(len(body)))
		return &Result{
			Response:  &model.HTTPResponse{StatusCode: status, Headers: headers, Body: body},
			Terminate: true,
		}, nil
	}
	return &Result{}, nil
}

// retryHint attaches retry metadata to ctx.vars.retry; no network effect.
func retryHint(p map[string]Value, ctx *Context) (*Result, error) {
	codes := make([]Value, 0)
	for _, c := range csv(p["retryOnStatusCodes"].AsString()) {
		codes = append(codes, StringValue(c))
	}
	meta := MapValue(map[string]Value{
		"maxRetries":   p["maxRetries"],
		"retryDelayMs": p["retryDelayMs"],
		"statusCodes":  ListValue(codes),
	})
	return &Result{VarUpdates: map[string]Value{"retry": meta}}, nil
}

// corsAllowAll synthesizes a 204 with CORS headers and terminates when the
// method is OPTIONS.
func corsAllowAll(p map[string]Value, ctx *Context) (*Result, error) {
	if !strings.EqualFold(ctx.Request.Method, "OPTIONS") {
		return &Result{}, nil
	}
	headers := model.Header{}
	headers.Set("Access-Control-Allow-Origin", p["allowOrigins"].AsString())
	headers.Set("Access-Control-Allow-Methods", p["allowMethods"].AsString())
	headers.Set("Access-Control-Allow-Headers", p["allowHeaders"].AsString())
	headers.Set("Content-Length", "0")
	return &Result{
		Response:  &model.HTTPResponse{StatusCode: 204, Headers: headers},
		Terminate: true,
	}, nil
}

// staticLocalFile reads a file as text; synthesizes 200 with its content,
// or 500 on failure.
func staticLocalFile(p map[string]Value, ctx *Context) (*Result, error) {
	path := p["filePath"].AsString()
	data, err := os.ReadFile(path)
	headers := model.Header{}
	if err != nil {
		body := "failed to read " + path + ": " + err.Error()
		headers.Set("Content-Type", "text/plain")
		headers.Set("Content-Length", strconv.Itoa(len(body)))
		return &Result{
			Response:  &model.HTTPResponse{StatusCode: 500, Headers: headers, Body: body},
			Terminate: true,
		}, nil
	}
	headers.Set("Content-Type", p["contentType"].AsString())
	headers.Set("Content-Length", strconv.Itoa(len(data)))
	return &Result{
		Response:  &model.HTTPResponse{StatusCode: 200, Headers: headers, Body: string(data)},
		Terminate: true,
	}, nil
}

// logMessage appends to the context log.
func logMessage(p map[string]Value, ctx *Context) (*Result, error) {
	ctx.logf(p["message"].AsString())
	return &Result{}, nil
}

// tagRequest attaches a key/value pair to ctx.vars.tags.
func tagRequest(p map[string]Value, ctx *Context) (*Result, error) {
	tags := map[string]Value{}
	if existing, ok := ctx.Vars["tags"]; ok && existing.Kind == KindMap {
		for k, v := range existing.Map {
			tags[k] = v
		}
	}
	tags[p["tagKey"].AsString()] = StringValue(p["tagValue"].AsString())
	return &Result{VarUpdates: map[string]Value{"tags": MapValue(tags)}}, nil
}
