// Package logging builds the relay's structured logger.
//
// The logger is a plain *slog.Logger. Its handler writes JSON or text and, when
// redaction is enabled, masks secrets before they are written:
//
//   - attributes whose key looks sensitive (api_key, token, authorization...)
//   - Google API keys (AIza...) anywhere in string values
//   - key=... query parameters in logged URLs
//   - bearer tokens
//   - any exact secret registered through Config.Secrets
//
// Request and connection identifiers stored in the context with WithRequestID
// and WithConnID are added to records logged through the *Context methods:
//
//	ctx = logging.WithConnID(ctx, id)
//	logger.InfoContext(ctx, "connection accepted") // includes conn_id
package logging
