// Command coolpanelctl sends control requests to a running coolpanel.
//
// Usage:
//
//	coolpanelctl [flags] [command [args]]
//
// Commands:
//
//	monitor              show the telemetry dashboard
//	media <path>         show an image or video
//	brightness <0-100>   set brightness in percent
//	status               print the current mode
//
// Without a command, coolpanelctl starts an interactive prompt.
//
// Flags:
//
//	-socket string     control socket path (default $COOLPANEL_CONTROL_SOCKET or /tmp/coolpanel.sock)
//	-timeout duration  per-request timeout (default 5s)
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/nerrad567/coolpanel/internal/control"
)

const defaultSocketPath = "/tmp/coolpanel.sock"

var (
	// errUsage marks input that should print usage rather than an error.
	errUsage = errors.New("usage")

	// errRejected is returned when coolpanel answers with an error status.
	errRejected = errors.New("request rejected")
)

// sendFunc submits one request. Swapped in tests.
type sendFunc func(ctx context.Context, path string, req control.Request) (control.Response, error)

type client struct {
	socket  string
	timeout time.Duration
	send    sendFunc
	out     io.Writer
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run parses flags and executes one command or the interactive prompt.
// It returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("coolpanelctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	socket := fs.String("socket", defaultSocket(), "control socket path")
	timeout := fs.Duration("timeout", 5*time.Second, "per-request timeout")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	c := &client{socket: *socket, timeout: *timeout, send: control.Send, out: stdout}

	if fs.NArg() == 0 {
		if err := c.interactive(); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}

	if err := c.execute(fs.Args()); err != nil {
		switch {
		case errors.Is(err, errUsage):
			fmt.Fprintln(stderr, err)
			printHelp(stderr)
			return 2
		case errors.Is(err, errRejected):
			return 1
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func defaultSocket() string {
	if v := os.Getenv("COOLPANEL_CONTROL_SOCKET"); v != "" {
		return v
	}
	return defaultSocketPath
}

// parseCommand turns command words into a control request.
func parseCommand(args []string) (control.Request, error) {
	if len(args) == 0 {
		return control.Request{}, fmt.Errorf("%w: missing command", errUsage)
	}

	cmd := strings.ToLower(args[0])
	rest := args[1:]

	switch cmd {
	case control.ActionMonitor, control.ActionStatus:
		if len(rest) != 0 {
			return control.Request{}, fmt.Errorf("%w: %s takes no arguments", errUsage, cmd)
		}
		return control.Request{Action: cmd}, nil

	case control.ActionMedia:
		if len(rest) == 0 {
			return control.Request{}, fmt.Errorf("%w: media <path>", errUsage)
		}
		// Paths may contain spaces in interactive mode.
		path := strings.Join(rest, " ")
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		return control.Request{Action: control.ActionMedia, Path: path}, nil

	case control.ActionBrightness:
		if len(rest) != 1 {
			return control.Request{}, fmt.Errorf("%w: brightness <0-100>", errUsage)
		}
		v, err := strconv.ParseFloat(strings.TrimSuffix(rest[0], "%"), 64)
		if err != nil {
			return control.Request{}, fmt.Errorf("%w: brightness %q is not a number", errUsage, rest[0])
		}
		return control.Request{Action: control.ActionBrightness, Value: &v}, nil

	default:
		return control.Request{}, fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

// execute sends one command and prints the response.
func (c *client) execute(args []string) error {
	req, err := parseCommand(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	resp, err := c.send(ctx, c.socket, req)
	if err != nil {
		return fmt.Errorf("contacting coolpanel at %s: %w", c.socket, err)
	}

	fmt.Fprintln(c.out, formatResponse(resp))
	if !resp.OK() {
		return errRejected
	}
	return nil
}

// formatResponse renders a response for the terminal.
func formatResponse(resp control.Response) string {
	if !resp.OK() {
		return "error: " + resp.Message
	}
	if resp.Mode == "" {
		if resp.Message == "" {
			return "ok"
		}
		return "ok: " + resp.Message
	}

	var b strings.Builder
	fmt.Fprintf(&b, "mode:       %s", resp.Mode)
	if resp.MediaPath != "" {
		fmt.Fprintf(&b, "\nmedia:      %s", resp.MediaPath)
	}
	if resp.Brightness != nil {
		fmt.Fprintf(&b, "\nbrightness: %.0f%%", *resp.Brightness)
	}
	return b.String()
}

// interactive runs a readline prompt until EOF or "exit".
func (c *client) interactive() error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "coolpanel> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete: readline.NewPrefixCompleter(
			readline.PcItem(control.ActionMonitor),
			readline.PcItem(control.ActionMedia),
			readline.PcItem(control.ActionBrightness),
			readline.PcItem(control.ActionStatus),
			readline.PcItem("help"),
			readline.PcItem("exit"),
		),
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	c.out = rl.Stdout()
	printHelp(c.out)

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			return nil
		}
		if c.handleLine(line) {
			return nil
		}
	}
}

// handleLine executes one interactive line and reports whether to quit.
func (c *client) handleLine(line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}

	switch strings.ToLower(parts[0]) {
	case "exit", "quit", "q":
		return true
	case "help", "?":
		printHelp(c.out)
		return false
	}

	if err := c.execute(parts); err != nil && !errors.Is(err, errRejected) {
		fmt.Fprintf(c.out, "error: %v\n", err)
	}
	return false
}

func printHelp(w io.Writer) {
	fmt.Fprintln(w, `Commands:
  monitor              show the telemetry dashboard
  media <path>         show an image or video
  brightness <0-100>   set brightness in percent
  status               print the current mode
  help                 show this help (interactive)
  exit                 leave the prompt (interactive)`)
}
