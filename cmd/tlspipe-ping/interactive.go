package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/chzyer/readline"
)

// replyTimeout bounds the wait for one interactive reply.
const replyTimeout = 10 * time.Second

// repl is the interactive command loop.
type repl struct {
	rl   *readline.Instance
	sess *session
	conn *connection
}

func newREPL(prompt string) (*repl, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt + "> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &repl{rl: rl}, nil
}

// Stdout returns a writer that properly coordinates with the readline input.
func (r *repl) Stdout() io.Writer {
	return r.rl.Stdout()
}

// Close releases the terminal.
func (r *repl) Close() error {
	return r.rl.Close()
}

// Run reads commands until quit, EOF or ctx is done. Each line is sent
// to the server and its reply printed.
func (r *repl) Run(ctx context.Context) {
	r.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := r.rl.Readline()
		if err != nil {
			// EOF or interrupt
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			fmt.Fprintln(r.rl.Stdout(), "Exiting...")
			r.quit(ctx)
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		switch strings.ToLower(strings.Fields(input)[0]) {
		case "help", "?":
			r.printHelp()
			continue
		case "status":
			r.printStatus()
			continue
		case "quit", "exit":
			r.quit(ctx)
			return
		}

		rctx, cancel := context.WithTimeout(ctx, replyTimeout)
		reply, err := r.sess.roundTrip(rctx, input)
		cancel()
		switch {
		case errors.Is(err, io.EOF):
			fmt.Fprintln(r.rl.Stdout(), "server closed the connection")
			return
		case err != nil:
			fmt.Fprintf(r.rl.Stdout(), "Error: %v\n", err)
			if ctx.Err() != nil {
				return
			}
		default:
			fmt.Fprintln(r.rl.Stdout(), reply.String())
		}
	}
}

// quit sends QUIT and ends the output.
func (r *repl) quit(ctx context.Context) {
	qctx, cancel := context.WithTimeout(ctx, replyTimeout)
	defer cancel()
	if reply, err := r.sess.roundTrip(qctx, "QUIT"); err == nil {
		fmt.Fprintln(r.rl.Stdout(), reply.String())
	}
	r.conn.Output().Complete(nil)
}

func (r *repl) printStatus() {
	w := r.rl.Stdout()
	if r.conn.pipeline == nil {
		fmt.Fprintln(w, "Connection: plain TCP")
		return
	}
	p := r.conn.pipeline
	state := p.ConnectionState()
	fmt.Fprintf(w, "Connection ID: %s\n", p.ConnectionID())
	fmt.Fprintf(w, "Handshake:     %s\n", p.State())
	fmt.Fprintf(w, "TLS version:   %s\n", tls.VersionName(state.Version))
	fmt.Fprintf(w, "Cipher suite:  %s\n", tls.CipherSuiteName(state.CipherSuite))
	if state.NegotiatedProtocol != "" {
		fmt.Fprintf(w, "ALPN:          %s\n", state.NegotiatedProtocol)
	}
	if len(state.PeerCertificates) > 0 {
		fmt.Fprintf(w, "Server cert:   %s\n", state.PeerCertificates[0].Subject)
	}
}

func (r *repl) printHelp() {
	fmt.Fprintln(r.rl.Stdout(), `
Commands are sent to the server as typed, e.g.:
    PING
    SET greeting "hello world"
    GET greeting

  Local commands:
    status  - Show connection and TLS details
    help    - Show this help
    quit    - Send QUIT and exit`)
}
