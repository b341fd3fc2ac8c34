package dispatch

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Framing is the encoding a client used for its request. Replies mirror it.
type Framing int

const (
	// FramingPlain is a bare line of text.
	FramingPlain Framing = iota
	// FramingJSON is a one-line {"message": "..."} envelope.
	FramingJSON
)

func (f Framing) String() string {
	if f == FramingJSON {
		return "json"
	}
	return "plain"
}

// ErrMalformedEnvelope is returned for a JSON envelope that cannot be used.
var ErrMalformedEnvelope = errors.New("malformed request envelope")

type envelope struct {
	Message *string `json:"message"`
}

type replyEnvelope struct {
	Reply string `json:"reply,omitempty"`
	Error string `json:"error,omitempty"`
}

// DecodeRequest splits a raw request line into the message and its framing.
// A line whose first non-space character is '{' must be a JSON envelope.
// Any other line is taken as the message itself.
func DecodeRequest(raw string) (string, Framing, error) {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "{") {
		return raw, FramingPlain, nil
	}
	msg, err := DecodeEnvelope([]byte(trimmed))
	return msg, FramingJSON, err
}

// DecodeEnvelope parses {"message": "..."}. A missing, null or non-string
// message is malformed.
func DecodeEnvelope(data []byte) (string, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", errors.Join(ErrMalformedEnvelope, err)
	}
	if env.Message == nil {
		return "", errors.Join(ErrMalformedEnvelope, errors.New(`missing "message" field`))
	}
	return *env.Message, nil
}

// EncodeReply renders r in framing f as a single line terminated by '\n'.
func EncodeReply(r Reply, f Framing) []byte {
	if f == FramingJSON {
		return EncodeJSONReply(r)
	}
	if r.OK() {
		return []byte(EscapeLine(r.Text) + "\n")
	}
	return []byte(errorPrefix + r.Kind.Message() + "\n")
}

// EncodeJSONReply renders r as {"reply": ...} or {"error": ...} followed by
// a newline.
func EncodeJSONReply(r Reply) []byte {
	env := replyEnvelope{Reply: r.Text}
	if !r.OK() {
		env = replyEnvelope{Error: r.Kind.Message()}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(env); err != nil {
		return []byte(`{"error":"` + InternalError.Message() + `"}` + "\n")
	}
	return buf.Bytes()
}

// EncodeRequest renders message as a request line in framing f. Plain
// requests cannot carry line breaks, so they are sent as spaces.
func EncodeRequest(message string, f Framing) []byte {
	if f != FramingJSON {
		return []byte(requestFlattener.Replace(message) + "\n")
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// A string always encodes.
	_ = enc.Encode(envelope{Message: &message})
	return buf.Bytes()
}

var requestFlattener = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// ClientReply is a decoded reply line as a front-end sees it. Exactly one
// of Text and Error is meaningful.
type ClientReply struct {
	Text  string
	Error string
}

// Failed reports whether the relay answered with an error.
func (c ClientReply) Failed() bool {
	return c.Error != ""
}

// DecodeReply parses a reply line received for a request sent in framing f.
func DecodeReply(line string, f Framing) (ClientReply, error) {
	line = strings.TrimRight(line, "\r\n")
	if f != FramingJSON {
		if msg, ok := strings.CutPrefix(line, errorPrefix); ok {
			return ClientReply{Error: msg}, nil
		}
		return ClientReply{Text: UnescapeLine(line)}, nil
	}

	var env replyEnvelope
	if err := json.Unmarshal([]byte(line), &env); err != nil {
		return ClientReply{}, fmt.Errorf("malformed reply %q: %w", line, err)
	}
	return ClientReply{Text: env.Reply, Error: env.Error}, nil
}

// EscapeLine keeps s on one line: backslashes become `\\`, newlines `\n`
// and carriage returns `\r`. A leading error prefix is sent as `\ERROR: `
// so a success reply is never read as a failure.
func EscapeLine(s string) string {
	s = lineEscaper.Replace(s)
	if strings.HasPrefix(s, errorPrefix) {
		return `\` + s
	}
	return s
}

// UnescapeLine reverses EscapeLine.
func UnescapeLine(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case '\\':
			b.WriteByte('\\')
		case 'E':
			b.WriteByte('E')
		default:
			b.WriteByte('\\')
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// errorPrefix starts every plain-text error reply.
const errorPrefix = "ERROR: "

var lineEscaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`, "\r", `\r`)
