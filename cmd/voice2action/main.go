package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"voice2action/internal/infra/config"
)

func main() {
	if err := dispatch(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "voice2action: %v\n", err)
		os.Exit(1)
	}
}

// dispatch runs the subcommand named by args[0].
func dispatch(args []string, stdin io.Reader, stdout io.Writer) error {
	if len(args) == 0 {
		showUsage(stdout)
		return nil
	}

	cmd, rest := args[0], args[1:]
	opts, positional, err := parseFlags(rest)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch cmd {
	case "--help", "-h", "help":
		showUsage(stdout)
		return nil
	case "run":
		return runVoice(ctx, opts, positional, stdin, stdout)
	case "serve-utility":
		return runServe(ctx, opts, utilityHost)
	case "serve-office":
		return runServe(ctx, opts, officeHost)
	case "email":
		return runEmail(ctx, opts, positional, stdin, stdout)
	case "encrypt-secret":
		return runEncryptSecret(positional, stdout)
	default:
		return fmt.Errorf("unknown command %q\n\nRun 'voice2action help' for usage information", cmd)
	}
}

func showUsage(w io.Writer) {
	fmt.Fprint(w, `voice2action - turn voice recordings into reminders and emails

USAGE:
    voice2action <COMMAND> [FLAGS] [ARGS]

COMMANDS:
    run [audio...]      Process one or more recordings; prompts for a path
                        when none is given
    serve-utility       Host the transcription and date/time tools over MCP
    serve-office        Host the reminder and email tools over MCP
    email <text|-|file> Screen an incoming message for spam and answer it
                        ("-" reads stdin; an existing file is transcribed
                        as a voice message)
    encrypt-secret <v>  Encrypt a config value with VOICE2ACTION_CONFIG_KEY
    help                Show this help message

FLAGS:
    --config PATH       Config file (default: ./config.yaml or $VOICE2ACTION_CONFIG)
    --parallel N        Recordings processed concurrently by run (default: 1)
    --json              Print run results as JSON instead of a report
    --events PATH       Append every published event to PATH as JSON lines

CONFIGURATION:
    Environment: VOICE2ACTION_* variables override the config file.
    Secrets:     values prefixed with "enc:" are decrypted with
                 VOICE2ACTION_CONFIG_KEY.

EXAMPLES:
    voice2action run ~/memos/monday.mp3
    voice2action run --parallel 4 memos/*.wav
    voice2action serve-office --config prod.yaml
    echo "Hi, can we move lunch?" | voice2action email -
`)
}

// cliOptions holds flags shared by the subcommands.
type cliOptions struct {
	ConfigPath string
	EventsPath string
	Parallel   int
	JSON       bool
}

// parseFlags extracts known flags from args and returns the remaining
// positional arguments in order.
func parseFlags(args []string) (cliOptions, []string, error) {
	opts := cliOptions{Parallel: 1}
	var positional []string
args:
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--config" || arg == "--parallel" || arg == "--events":
			if i+1 >= len(args) {
				return opts, nil, fmt.Errorf("flag %s needs a value", arg)
			}
			if err := opts.set(arg, args[i+1]); err != nil {
				return opts, nil, err
			}
			i++
		case strings.HasPrefix(arg, "--config="), strings.HasPrefix(arg, "--parallel="),
			strings.HasPrefix(arg, "--events="):
			name, value, _ := strings.Cut(arg, "=")
			if err := opts.set(name, value); err != nil {
				return opts, nil, err
			}
		case arg == "--json":
			opts.JSON = true
		case arg == "--":
			positional = append(positional, args[i+1:]...)
			break args
		case strings.HasPrefix(arg, "--"):
			return opts, nil, fmt.Errorf("unknown flag %s", arg)
		default:
			positional = append(positional, arg)
		}
	}
	if opts.ConfigPath == "" {
		opts.ConfigPath = os.Getenv("VOICE2ACTION_CONFIG")
	}
	if opts.ConfigPath == "" {
		opts.ConfigPath = "config.yaml"
	}
	return opts, positional, nil
}

func (o *cliOptions) set(name, value string) error {
	switch name {
	case "--config":
		o.ConfigPath = value
	case "--events":
		o.EventsPath = value
	case "--parallel":
		var n int
		if _, err := fmt.Sscanf(value, "%d", &n); err != nil || n < 1 {
			return fmt.Errorf("--parallel must be a positive integer, got %q", value)
		}
		o.Parallel = n
	}
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// promptForPath asks for an audio path on w and reads one line from r.
func promptForPath(r io.Reader, w io.Writer) (string, error) {
	fmt.Fprint(w, "Path to voice recording: ")
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	path := strings.TrimSpace(line)
	if path == "" {
		return "", errors.New("no recording path given")
	}
	return path, nil
}

func runEncryptSecret(args []string, w io.Writer) error {
	if len(args) != 1 {
		return errors.New("usage: voice2action encrypt-secret <value>")
	}
	passphrase := os.Getenv("VOICE2ACTION_CONFIG_KEY")
	if passphrase == "" {
		return errors.New("VOICE2ACTION_CONFIG_KEY is not set")
	}
	enc, err := config.EncryptValue(args[0], passphrase)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "enc:"+enc)
	return nil
}
