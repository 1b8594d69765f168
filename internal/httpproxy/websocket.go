package httpproxy

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/proxytap/core/internal/model"
	"github.com/proxytap/core/internal/recorder"
)

// handleWebSocket relays a WebSocket upgrade end-to-end, grounded on
// goproxy's handleWsRequest/wsRelay pair (elazarl-goproxy/proxy.go,
// websocket.go), generalized so the upgrade request still runs through the
// Flow Engine for matching and header-level components before the backend
// dial: a matched flow's header mutations (auth-inject, header-rewrite, ..)
// apply to the outbound handshake, same as any other request. The data
// model here covers HTTP request/response transactions, not individual
// WebSocket frames, so once the handshake completes this path relays raw
// frames without submitting them to the Recorder.
func (p *Proxy) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	req := &model.HTTPRequest{
		ID:         uuid.NewString(),
		Method:     r.Method,
		URL:        resolveAbsoluteURL(r),
		Headers:    headersFromHTTP(r.Header),
		Timestamp:  time.Now().UnixMilli(),
		ClientAddr: r.RemoteAddr,
	}
	req.Headers.Set("Host", r.Host)

	rec := &recorder.Record{ID: req.ID, Request: *req}
	p.recorder.Upsert(rec)

	outcome := p.runFlows(req, rec)

	backendURL := outcome.Request.URL
	switch {
	case strings.HasPrefix(backendURL, "https://"):
		backendURL = "wss://" + strings.TrimPrefix(backendURL, "https://")
	case strings.HasPrefix(backendURL, "http://"):
		backendURL = "ws://" + strings.TrimPrefix(backendURL, "http://")
	}

	header := make(http.Header)
	for k, vs := range outcome.Request.Headers {
		lk := strings.ToLower(k)
		if lk == "upgrade" || lk == "connection" || lk == "host" || strings.HasPrefix(lk, "sec-websocket") {
			continue
		}
		header[k] = vs
	}

	backend, resp, err := p.wsDialer.Dial(backendURL, header)
	if err != nil {
		status := http.StatusBadGateway
		if resp != nil {
			status = resp.StatusCode
		}
		http.Error(w, "websocket dial failed: "+err.Error(), status)
		return
	}
	defer backend.Close()

	client, err := p.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		p.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer client.Close()

	var wg sync.WaitGroup
	wg.Add(2)
	go relayWS(client, backend, &wg)
	go relayWS(backend, client, &wg)
	wg.Wait()
}

func relayWS(dst, src *websocket.Conn, wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		mt, msg, err := src.ReadMessage()
		if err != nil {
			return
		}
		if err := dst.WriteMessage(mt, msg); err != nil {
			return
		}
	}
}
