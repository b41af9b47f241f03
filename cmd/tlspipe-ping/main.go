// Command tlspipe-ping checks Redis-compatible servers over the TLS
// client pipeline.
//
// Each test case is a YAML file naming a server, by host or by mDNS
// service, and whether to speak TLS. The client authenticates, sends
// AUTH (when a password is set) followed by the case's commands, prints
// every reply, and answers the first PONG with QUIT. A case passes when
// the server closes the connection before the case times out.
//
// Usage:
//
//	tlspipe-ping [flags]
//
// Flags:
//
//	-tests string         Directory of test case files (default "Tests")
//	-case string          Run a single test case file
//	-interactive          Open a command prompt on the (first) test case
//	-details              Show passwords and per-read buffer sizes
//	-log-level string     Log level: debug, info, warn, error (default "info")
//	-protocol-log string  Write TLS protocol events to a CBOR file
//	-direct               Ignore proxy settings from the environment
//	-iface string         Network interface for mDNS lookups
//
// Examples:
//
//	# Run every test case in ./Tests
//	tlspipe-ping
//
//	# Run one case with protocol logging
//	tlspipe-ping -case Tests/azure.yaml -protocol-log /tmp/ping.log
//
//	# Send commands by hand
//	tlspipe-ping -case Tests/local.yaml -interactive
//
// Interactive Commands:
//
//	<command> [args...]  Send a Redis command and print the reply
//	status               Show connection and TLS details
//	help                 Show help
//	quit                 Send QUIT and exit
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/tlspipe/tlspipe/internal/testcase"
	"github.com/tlspipe/tlspipe/pkg/discovery"
	protolog "github.com/tlspipe/tlspipe/pkg/log"
	"github.com/tlspipe/tlspipe/pkg/transport"
)

// Config holds the command configuration.
type Config struct {
	TestsDir    string
	CaseFile    string
	Interactive bool
	ShowDetails bool
	LogLevel    string
	ProtocolLog string
	Direct      bool
	Interface   string
}

var config Config

func init() {
	flag.StringVar(&config.TestsDir, "tests", "Tests", "Directory of test case files")
	flag.StringVar(&config.CaseFile, "case", "", "Run a single test case file")
	flag.BoolVar(&config.Interactive, "interactive", false, "Open a command prompt on the (first) test case")
	flag.BoolVar(&config.ShowDetails, "details", false, "Show passwords and per-read buffer sizes")
	flag.StringVar(&config.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.StringVar(&config.ProtocolLog, "protocol-log", "", "Write TLS protocol events to a CBOR file")
	flag.BoolVar(&config.Direct, "direct", false, "Ignore proxy settings from the environment")
	flag.StringVar(&config.Interface, "iface", "", "Network interface for mDNS lookups")
}

func main() {
	flag.Parse()

	setupLogging(config.LogLevel)

	cases, err := loadCases()
	if err != nil {
		log.Fatalf("Failed to load test cases: %v", err)
	}
	if len(cases) == 0 {
		log.Fatalf("No test cases found in %s", config.TestsDir)
	}

	opts, cleanup, err := buildOptions()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			log.Printf("Received signal: %v", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	if config.Interactive {
		if err := runInteractive(ctx, cases[0], opts); err != nil {
			log.Fatalf("%v", err)
		}
		return
	}

	failed := 0
	for _, tc := range cases {
		if ctx.Err() != nil {
			break
		}
		if !runCase(ctx, tc, opts, os.Stdout) {
			failed++
		}
	}
	if failed > 0 {
		fmt.Printf("%d of %d test cases failed\n", failed, len(cases))
		os.Exit(1)
	}
}

func setupLogging(level string) {
	log.SetFlags(log.Ltime | log.Lmicroseconds)

	switch level {
	case "debug":
		log.SetFlags(log.Ltime | log.Lmicroseconds | log.Lshortfile)
	case "warn", "error":
		log.SetFlags(log.Ltime)
	}
}

// slogLevel maps the -log-level flag onto slog.
func slogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func loadCases() ([]*testcase.TestCase, error) {
	if config.CaseFile != "" {
		tc, err := testcase.LoadTestCase(config.CaseFile)
		if err != nil {
			return nil, err
		}
		return []*testcase.TestCase{tc}, nil
	}
	return testcase.LoadDirectory(config.TestsDir)
}

// buildOptions creates the loggers, dialer and mDNS browser shared by
// all test cases.
func buildOptions() (connectOptions, func(), error) {
	logger := slog.New(slog.NewTextHandler(log.Writer(), &slog.HandlerOptions{
		Level: slogLevel(config.LogLevel),
	}))

	dial := transport.DefaultDialConfig()
	dial.Direct = config.Direct

	browserCfg := discovery.DefaultBrowserConfig()
	browserCfg.Interface = config.Interface
	browser, err := discovery.NewMDNSBrowser(browserCfg)
	if err != nil {
		return connectOptions{}, nil, err
	}

	opts := connectOptions{
		dial:    dial,
		browser: browser,
		logger:  logger,
	}
	cleanup := browser.Stop

	var loggers []protolog.Logger
	if config.LogLevel == "debug" {
		loggers = append(loggers, protolog.NewSlogAdapter(logger))
	}
	if config.ProtocolLog != "" {
		fl, err := protolog.NewFileLogger(config.ProtocolLog)
		if err != nil {
			browser.Stop()
			return connectOptions{}, nil, fmt.Errorf("protocol log: %w", err)
		}
		loggers = append(loggers, fl)
		cleanup = func() {
			browser.Stop()
			if err := fl.Close(); err != nil {
				log.Printf("Error closing protocol log (%d events dropped): %v", fl.Dropped(), err)
			}
		}
	}
	opts.protocol = protolog.NewMultiLogger(loggers...)

	return opts, cleanup, nil
}

// runCase runs one test case and reports whether it completed before
// its timeout.
func runCase(ctx context.Context, tc *testcase.TestCase, opts connectOptions, out io.Writer) bool {
	fmt.Fprintf(out, "\nTest: %s\n", tc.DisplayName())

	timeout, err := tc.TimeoutDuration()
	if err != nil {
		fmt.Fprintf(out, "(error) %v\n", err)
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	printf := func(format string, args ...any) {
		fmt.Fprintf(out, format+"\n", args...)
	}

	conn, err := connect(ctx, tc, opts, printf)
	if err != nil {
		return report(out, err)
	}
	defer conn.Close()

	sess := &session{conn: conn, out: out, showDetails: config.ShowDetails}
	return report(out, sess.execute(ctx, tc.Password, tc.Commands))
}

// report prints the outcome of a test case.
func report(out io.Writer, err error) bool {
	switch {
	case err == nil:
		fmt.Fprintln(out, "(complete)")
		return true
	case errors.Is(err, context.DeadlineExceeded):
		fmt.Fprintln(out, "(timeout)")
	default:
		fmt.Fprintf(out, "(error) %v\n", err)
	}
	return false
}

// runInteractive connects to tc and hands the connection to a prompt.
func runInteractive(ctx context.Context, tc *testcase.TestCase, opts connectOptions) error {
	r, err := newREPL("tlspipe")
	if err != nil {
		return err
	}
	defer r.Close()

	// Redirect log output through readline so it doesn't clobber the prompt.
	log.SetOutput(r.Stdout())

	printf := func(format string, args ...any) {
		fmt.Fprintf(r.Stdout(), format+"\n", args...)
	}

	timeout, err := tc.TimeoutDuration()
	if err != nil {
		return err
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	conn, err := connect(cctx, tc, opts, printf)
	cancel()
	if err != nil {
		return fmt.Errorf("connect %s: %w", tc.DisplayName(), err)
	}
	defer conn.Close()

	r.conn = conn
	r.sess = &session{conn: conn, out: r.Stdout(), showDetails: config.ShowDetails}

	if tc.Password != "" {
		actx, cancel := context.WithTimeout(ctx, replyTimeout)
		reply, err := r.sess.call(actx, "AUTH", tc.Password)
		cancel()
		if err != nil {
			return fmt.Errorf("auth: %w", err)
		}
		fmt.Fprintln(r.Stdout(), reply.String())
	}

	r.Run(ctx)
	return nil
}
