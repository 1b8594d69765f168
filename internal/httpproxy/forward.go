package httpproxy

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/bytebufferpool"

	"github.com/proxytap/core/internal/components"
	"github.com/proxytap/core/internal/flow"
	"github.com/proxytap/core/internal/model"
	"github.com/proxytap/core/internal/recorder"
)

// hopByHopRequestHeaders strips Proxy-Connection and Connection (named
// explicitly) plus the rest of goproxy's hopHeaders table
// (elazarl-goproxy/proxy.go), the full RFC 2616 §13.5.1 set.
var hopByHopRequestHeaders = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Connection":    true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

// handlePlain implements the plain HTTP path. It also serves decrypted MITM
// traffic: a request arriving with r.TLS set re-enters here exactly like an
// origin-listener request, with the URL reconstructed as https://host/path.
func (p *Proxy) handlePlain(w http.ResponseWriter, r *http.Request) {
	hij, ok := w.(http.Hijacker)
	if !ok {
		http.Error(w, "hijacking unsupported", http.StatusInternalServerError)
		return
	}
	conn, _, err := hij.Hijack()
	if err != nil {
		p.log.Warn().Err(err).Msg("hijack failed")
		return
	}
	defer conn.Close()

	start := time.Now()

	reqBuf := bytebufferpool.Get()
	defer bytebufferpool.Put(reqBuf)
	if _, err := reqBuf.ReadFrom(r.Body); err != nil {
		writeErrorResponse(conn, http.StatusBadGateway, "Bad Gateway", "reading request body: "+err.Error())
		return
	}
	_ = r.Body.Close()

	req := &model.HTTPRequest{
		ID:         uuid.NewString(),
		Method:     r.Method,
		URL:        resolveAbsoluteURL(r),
		Headers:    headersFromHTTP(r.Header),
		Body:       reqBuf.String(),
		Timestamp:  start.UnixMilli(),
		ClientAddr: r.RemoteAddr,
	}
	req.Headers.Set("Host", r.Host)

	rec := &recorder.Record{ID: req.ID, Request: *req}
	p.recorder.Upsert(rec)

	outcome := p.runFlows(req, rec)

	if outcome.Response != nil {
		_ = writeSynthesizedResponse(conn, outcome.Response)
		dur := time.Since(start).Milliseconds()
		rec.Response = outcome.Response
		rec.DurationMS = &dur
		p.recorder.Upsert(rec)
		p.metrics.requestsTotal.WithLabelValues("synthesized").Inc()
		return
	}

	resp, err := p.forwardUpstream(outcome.Request)
	dur := time.Since(start).Milliseconds()
	if err != nil {
		_ = writeErrorResponse(conn, http.StatusBadGateway, "Bad Gateway", err.Error())
		rec.DurationMS = &dur
		p.recorder.Upsert(rec)
		p.metrics.requestsTotal.WithLabelValues("upstream_error").Inc()
		return
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType, resp.Body = sniffContentType(resp.Body)
	}
	defer resp.Body.Close()
	textual := isTextual(contentType, resp.Header.Get("Content-Encoding"))

	recorded := &model.HTTPResponse{
		StatusCode: resp.StatusCode,
		Reason:     strings.TrimPrefix(resp.Status, fmt.Sprintf("%d ", resp.StatusCode)),
		Headers:    headersFromHTTP(resp.Header),
	}

	if textual {
		respBuf := bytebufferpool.Get()
		_, err := respBuf.ReadFrom(resp.Body)
		if err != nil {
			bytebufferpool.Put(respBuf)
			_ = writeErrorResponse(conn, http.StatusBadGateway, "Bad Gateway", "reading upstream response: "+err.Error())
			rec.DurationMS = &dur
			p.recorder.Upsert(rec)
			return
		}
		raw := append([]byte(nil), respBuf.B...)
		bytebufferpool.Put(respBuf)
		recorded.Body = string(raw)
		resp.Body = io.NopCloser(bytes.NewReader(raw))
	}

	if err := resp.Write(conn); err != nil {
		p.log.Warn().Err(err).Msg("writing forwarded response to client")
	}

	rec.Response = recorded
	rec.DurationMS = &dur
	p.recorder.Upsert(rec)
	p.metrics.requestsTotal.WithLabelValues("forwarded").Inc()
	p.metrics.forwardDuration.WithLabelValues("forwarded").Observe(time.Since(start).Seconds())
}

// runFlows matches req against the enabled flows in deterministic order and
// walks the winner. A flow that matches updates rec with the matched-flow id
// immediately, ahead of the response outcome, mirroring the request
// record's lifecycle: updated once when the flow decision is made, updated
// again when the response is complete.
func (p *Proxy) runFlows(req *model.HTTPRequest, rec *recorder.Record) flow.Outcome {
	flows, errs := p.flows.EnabledSortedByID()
	for _, e := range errs {
		p.log.Warn().Err(e).Msg("loading flow definitions")
	}

	matched, ok := flow.Match(flows, req)
	if !ok {
		return flow.Outcome{Request: req}
	}

	matchedID := matched.ID
	rec.MatchedFlow = &matchedID
	p.recorder.Upsert(rec)

	sink := components.FuncLogSink(func(line string) {
		p.log.Debug().Str("flow", matchedID).Msg(line)
	})
	return p.engine.Execute(matched, req, sink)
}

// forwardUpstream sends req to its destination, stripping the hop-by-hop
// headers.
func (p *Proxy) forwardUpstream(req *model.HTTPRequest) (*http.Response, error) {
	httpReq, err := http.NewRequest(req.Method, req.URL, strings.NewReader(req.Body))
	if err != nil {
		return nil, fmt.Errorf("building upstream request: %w", err)
	}
	for k, vs := range req.Headers {
		if hopByHopRequestHeaders[k] {
			continue
		}
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if host := req.Headers.Get("Host"); host != "" {
		httpReq.Host = host
	}
	return p.upstream.Do(httpReq)
}

// resolveAbsoluteURL computes the absolute URL: absolute-form requests are
// used as-is; origin-form requests are resolved from the Host header, with
// scheme chosen by whether the connection carries TLS (true both for the
// real listener under real HTTPS-fronted setups and for a decrypted MITM
// connection re-entering this handler).
func resolveAbsoluteURL(r *http.Request) string {
	if r.URL.IsAbs() {
		return r.URL.String()
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	host := r.Host
	if host == "" {
		host = r.URL.Host
	}
	return scheme + "://" + host + r.URL.RequestURI()
}

func headersFromHTTP(h http.Header) model.Header {
	out := model.Header{}
	for k, vs := range h {
		cp := make([]string, len(vs))
		copy(cp, vs)
		out[textproto.CanonicalMIMEHeaderKey(k)] = cp
	}
	return out
}

// sniffContentType peeks up to 512 bytes of body to run
// http.DetectContentType against, then returns a ReadCloser that replays
// those bytes ahead of the rest of the stream so the peek doesn't consume
// anything the client still needs. Grounded on goproxy's own regretable
// peek-then-rewind pattern (elazarl-goproxy/regretable), folded directly
// against this one Content-Type sniffing call site instead of carried as
// its own general-purpose package.
func sniffContentType(body io.ReadCloser) (string, io.ReadCloser) {
	peek := make([]byte, 512)
	n, _ := io.ReadFull(body, peek)
	rewound := &peekedBody{Reader: io.MultiReader(bytes.NewReader(peek[:n]), body), closer: body}
	return http.DetectContentType(peek[:n]), rewound
}

type peekedBody struct {
	io.Reader
	closer io.Closer
}

func (p *peekedBody) Close() error { return p.closer.Close() }

// isTextual implements the binary-safety rule: textual only when
// Content-Encoding is absent and Content-Type matches one of {text/*,
// */*json*, */*javascript*, */*xml*, */*x-www-form-urlencoded*}. When
// upstream omits Content-Type, handlePlain sniffs it from the first bytes
// of the body via sniffContentType.
func isTextual(contentType, contentEncoding string) bool {
	if strings.TrimSpace(contentEncoding) != "" {
		return false
	}
	ct := strings.ToLower(contentType)
	switch {
	case strings.HasPrefix(ct, "text/"):
		return true
	case strings.Contains(ct, "json"):
		return true
	case strings.Contains(ct, "javascript"):
		return true
	case strings.Contains(ct, "xml"):
		return true
	case strings.Contains(ct, "x-www-form-urlencoded"):
		return true
	default:
		return false
	}
}

// writeSynthesizedResponse writes resp to conn as a raw HTTP/1.1 message,
// used for mock-response/response-override-style component results that
// never touch upstream, for a terminator's end_with_response handling.
func writeSynthesizedResponse(conn net.Conn, resp *model.HTTPResponse) error {
	reason := resp.Reason
	if reason == "" {
		reason = http.StatusText(resp.StatusCode)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "HTTP/1.1 %d %s\r\n", resp.StatusCode, reason)
	hasContentLength := false
	for k, vs := range resp.Headers {
		if strings.EqualFold(k, "Content-Length") {
			hasContentLength = true
		}
		for _, v := range vs {
			fmt.Fprintf(&b, "%s: %s\r\n", k, v)
		}
	}
	if !hasContentLength {
		fmt.Fprintf(&b, "Content-Length: %d\r\n", len(resp.Body))
	}
	b.WriteString("\r\n")
	b.WriteString(resp.Body)
	_, err := conn.Write([]byte(b.String()))
	return err
}

// writeErrorResponse writes one of the plain-text error responses.
func writeErrorResponse(conn net.Conn, status int, reason, body string) error {
	msg := fmt.Sprintf(
		"HTTP/1.1 %d %s\r\nContent-Type: text/plain\r\nContent-Length: %d\r\nConnection: close\r\n\r\n%s",
		status, reason, len(body), body,
	)
	_, err := conn.Write([]byte(msg))
	return err
}
