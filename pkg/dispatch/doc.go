// Package dispatch handles one chat request end to end.
//
// A dispatch validates the client message, reads the profile snapshot once,
// calls the upstream generator until it succeeds or the retry policy gives
// up, and maps the result to a Reply. Handle never panics and never returns
// an error: every path ends in a well-formed Reply.
//
// The package also owns the client framing. A request is either a plain
// line of text or a one-line JSON envelope {"message": "..."}; the reply
// uses the same framing as the request (see DecodeRequest and EncodeReply).
package dispatch
