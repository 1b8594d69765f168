// Package recorder implements the Request Recorder: a bounded,
// append-only, upsert-by-id log of HTTP transactions.
package recorder

import "github.com/proxytap/core/internal/model"

// Record is a recorded HTTP transaction: id (the originating request's
// ID), the request, an optional response, an optional elapsed-milliseconds
// duration, and an optional matched-flow id.
type Record struct {
	ID          string
	Request     model.HTTPRequest
	Response    *model.HTTPResponse
	DurationMS  *int64
	MatchedFlow *string
}
