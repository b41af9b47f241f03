package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tlspipe/tlspipe/pkg/pipe"
)

// defaultCommands run when a test case names none.
var defaultCommands = []string{`ECHO "noisy in here"`, "PING"}

// errIncompleteReply is returned when the server closes mid-reply.
var errIncompleteReply = errors.New("connection closed inside a reply")

// session speaks RESP over a duplex stream.
type session struct {
	conn pipe.Duplex
	out  io.Writer

	// showDetails prints secrets and per-read buffer sizes.
	showDetails bool
}

// send writes one command and flushes it.
func (s *session) send(ctx context.Context, args ...string) error {
	shown := strings.Join(args, " ")
	if !s.showDetails && len(args) > 0 && strings.EqualFold(args[0], "AUTH") {
		shown = "AUTH ****"
	}
	fmt.Fprintf(s.out, ">> sending '%s'...\n", shown)

	if _, err := s.conn.Output().WriteContext(ctx, AppendCommand(nil, args...)); err != nil {
		return fmt.Errorf("send %s: %w", args[0], err)
	}
	return nil
}

// sendLine splits line into arguments and sends it.
func (s *session) sendLine(ctx context.Context, line string) error {
	args, err := SplitCommand(line)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return nil
	}
	return s.send(ctx, args...)
}

// execute authenticates, sends the commands, and prints replies until
// the server closes the connection. The first PONG is answered with
// QUIT and completes the output.
func (s *session) execute(ctx context.Context, password string, commands []string) error {
	fmt.Fprintln(s.out, "executing...")

	if password != "" {
		// a "success" for this would be a response that says "+OK"
		if err := s.send(ctx, "AUTH", password); err != nil {
			return err
		}
	}
	if len(commands) == 0 {
		commands = defaultCommands
	}
	for _, cmd := range commands {
		if err := s.sendLine(ctx, cmd); err != nil {
			return err
		}
	}

	quit := false
	return s.readReplies(ctx, func(r Reply) error {
		fmt.Fprintf(s.out, "<< received: '%s' (%s)\n", r.String(), r.Type)
		if quit || !r.IsPong() {
			return nil
		}
		quit = true
		if err := s.send(ctx, "QUIT"); err != nil {
			return err
		}
		s.conn.Output().Complete(nil)
		return nil
	})
}

// readReplies parses replies from the input and hands each to handle
// until the server completes the stream.
func (s *session) readReplies(ctx context.Context, handle func(Reply) error) error {
	in := s.conn.Input()
	for {
		if s.showDetails {
			fmt.Fprintln(s.out, "awaiting response...")
		}
		res, err := in.Read(ctx)
		if err != nil && len(res.Buffer) == 0 {
			return fmt.Errorf("read: %w", err)
		}

		buf := res.Buffer
		if s.showDetails {
			fmt.Fprintf(s.out, "checking response (%d bytes)...\n", len(buf))
		}

		consumed := 0
		for consumed < len(buf) {
			r, n, ok, perr := ParseReply(buf[consumed:])
			if perr != nil {
				return perr
			}
			if !ok {
				break
			}
			consumed += n
			if herr := handle(r); herr != nil {
				return herr
			}
		}
		in.AdvanceTo(consumed, len(buf))

		if res.Completed {
			if err != nil {
				return fmt.Errorf("read: %w", err)
			}
			if consumed < len(buf) {
				return errIncompleteReply
			}
			fmt.Fprintln(s.out, "done")
			return nil
		}
	}
}

// roundTrip sends one command line and waits for its reply.
func (s *session) roundTrip(ctx context.Context, line string) (Reply, error) {
	args, err := SplitCommand(line)
	if err != nil {
		return Reply{}, err
	}
	if len(args) == 0 {
		return Reply{}, fmt.Errorf("empty command")
	}
	return s.call(ctx, args...)
}

// call sends one command and waits for its reply.
func (s *session) call(ctx context.Context, args ...string) (Reply, error) {
	if err := s.send(ctx, args...); err != nil {
		return Reply{}, err
	}

	in := s.conn.Input()
	for {
		res, err := in.Read(ctx)
		if err != nil && len(res.Buffer) == 0 {
			return Reply{}, fmt.Errorf("read: %w", err)
		}

		r, n, ok, perr := ParseReply(res.Buffer)
		if perr != nil {
			return Reply{}, perr
		}
		if ok {
			in.AdvanceTo(n, n)
			return r, nil
		}
		in.AdvanceTo(0, len(res.Buffer))

		if res.Completed {
			if len(res.Buffer) == 0 {
				return Reply{}, io.EOF
			}
			return Reply{}, errIncompleteReply
		}
	}
}
