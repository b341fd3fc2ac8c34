package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
)

type rendered struct {
	Reply string `json:"reply"`
}

func (r rendered) RenderText() string { return "> " + r.Reply }

func TestTextFormatter(t *testing.T) {
	tests := []struct {
		name string
		data any
		want string
	}{
		{"plain value", "test message", "test message\n"},
		{"renderer", rendered{Reply: "hi"}, "> hi\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			formatter := &TextFormatter{}

			output, err := formatter.Format(tt.data)
			if err != nil {
				t.Fatalf("Format() error = %v", err)
			}
			if string(output) != tt.want {
				t.Errorf("Format() = %q, want %q", output, tt.want)
			}

			buf := &bytes.Buffer{}
			if err := formatter.FormatTo(buf, tt.data); err != nil {
				t.Fatalf("FormatTo() error = %v", err)
			}
			if buf.String() != tt.want {
				t.Errorf("FormatTo() = %q, want %q", buf.String(), tt.want)
			}
		})
	}
}

func TestJSONFormatter(t *testing.T) {
	formatter := &JSONFormatter{Indent: true}
	data := rendered{Reply: "<b>bold</b>"}

	buf := &bytes.Buffer{}
	if err := formatter.FormatTo(buf, data); err != nil {
		t.Fatalf("FormatTo() error = %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte("<b>bold</b>")) {
		t.Errorf("HTML should not be escaped: %s", buf.String())
	}

	var got rendered
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if got != data {
		t.Errorf("decoded = %+v, want %+v", got, data)
	}

	compact, err := (&JSONFormatter{}).Format(data)
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	if !bytes.Contains(compact, []byte(`"reply"`)) {
		t.Errorf("Format() = %s", compact)
	}
}

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", FormatText, false},
		{"text", FormatText, false},
		{"JSON", FormatJSON, false},
		{"csv", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseOutputFormat(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("format = %q, want %q", got, tt.want)
			}
			var cfgErr *ConfigError
			if tt.wantErr && !errors.As(err, &cfgErr) {
				t.Errorf("error should be a ConfigError, got %T", err)
			}
		})
	}
}

func TestNewFormatter(t *testing.T) {
	if _, ok := NewFormatter(FormatJSON).(*JSONFormatter); !ok {
		t.Error("json format should yield a JSONFormatter")
	}
	if _, ok := NewFormatter(FormatText).(*TextFormatter); !ok {
		t.Error("text format should yield a TextFormatter")
	}
}
