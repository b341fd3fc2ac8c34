package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"mercator-hq/relay/pkg/cli"
	"mercator-hq/relay/pkg/dispatch"

	"github.com/spf13/cobra"
)

var askFlags struct {
	address string
	plain   bool
	timeout time.Duration
	output  string
}

var askCmd = &cobra.Command{
	Use:   "ask <message>",
	Short: "Send one message to a running relay",
	Long: `Send one message to a running relay over the socket protocol and print
the reply.

The message is sent as a JSON envelope unless --plain is given. Arguments
are joined with spaces. An error reply is printed to stderr and exits with
status 3.

Examples:
  # Ask the relay configured in relay.yaml
  relay ask "What are your opening hours?"

  # Ask a relay at a specific address using plain framing
  relay ask --address 10.0.0.5:8080 --plain hello

  # Machine readable output
  relay ask -o json "hello"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)

	askCmd.Flags().StringVarP(&askFlags.address, "address", "a", "", "relay socket address (default: server.listen_address from config)")
	askCmd.Flags().BoolVar(&askFlags.plain, "plain", false, "send a plain text line instead of a JSON envelope")
	askCmd.Flags().DurationVar(&askFlags.timeout, "timeout", 90*time.Second, "how long to wait for the reply")
	askCmd.Flags().StringVarP(&askFlags.output, "output", "o", "text", "output format (text, json)")
}

func runAsk(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(askFlags.output)
	if err != nil {
		return err
	}

	addr := askFlags.address
	if addr == "" {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		addr = cfg.Server.ListenAddress
	}

	framing := dispatch.FramingJSON
	if askFlags.plain {
		framing = dispatch.FramingPlain
	}

	result, err := ask(commandContext(cmd), addr, strings.Join(args, " "), framing, askFlags.timeout)
	if err != nil {
		return cli.NewCommandError("ask", err)
	}

	if format == cli.FormatJSON || !result.Failed() {
		if err := cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), result); err != nil {
			return err
		}
	}
	if result.Failed() {
		return &cli.ReplyError{Message: result.Error}
	}
	return nil
}

// askResult is one exchange with the relay.
type askResult struct {
	Reply     string `json:"reply,omitempty"`
	Error     string `json:"error,omitempty"`
	Framing   string `json:"framing"`
	LatencyMs int64  `json:"latency_ms"`
}

func (r askResult) Failed() bool {
	return r.Error != ""
}

func (r askResult) RenderText() string {
	return r.Reply
}

// ask sends message to the relay at addr and waits for the single reply
// line. Cancelling ctx abandons the exchange.
func ask(ctx context.Context, addr, message string, framing dispatch.Framing, timeout time.Duration) (askResult, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return askResult{}, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	start := time.Now()
	if _, err := conn.Write(dispatch.EncodeRequest(message, framing)); err != nil {
		return askResult{}, fmt.Errorf("failed to send request: %w", err)
	}

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return askResult{}, readFailure(ctx, addr, err)
	}

	reply, err := dispatch.DecodeReply(line, framing)
	if err != nil {
		return askResult{}, err
	}

	return askResult{
		Reply:     reply.Text,
		Error:     reply.Error,
		Framing:   framing.String(),
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}

// readFailure describes a failed reply read. Running out of time is "no
// reply"; the conn deadline can fire before ctx records its own.
func readFailure(ctx context.Context, addr string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("no reply from %s: %w", addr, ctxErr)
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return fmt.Errorf("no reply from %s: %w", addr, context.DeadlineExceeded)
	}
	return fmt.Errorf("failed to read reply: %w", err)
}
