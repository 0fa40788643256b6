// palrcon - Palworld RCON client and server administration service.
//
// Without a subcommand palrcon sends a single command and prints the reply:
//
//	palrcon -h 127.0.0.1 -p 25575 -P secret -c showplayers
//
// Subcommands:
//
//	serve       run the REST API, scheduler, health monitor, ledger and telemetry
//	console     interactive shell against one server
//	init        first-run setup wizard
//	hash-token  create or hash an API token
//	version     print the version
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/energizer-project/palrcon/internal/cli"
	"github.com/energizer-project/palrcon/internal/config"
	"github.com/energizer-project/palrcon/internal/connector"
	"github.com/energizer-project/palrcon/internal/network"
	"github.com/energizer-project/palrcon/internal/util"
)

const (
	AppName    = "palrcon"
	AppVersion = "1.0.0"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	if len(args) > 0 {
		switch args[0] {
		case "serve":
			err = runServe(ctx, args[1:])
		case "console":
			err = runConsole(ctx, args[1:], stdin, stdout)
		case "init":
			err = runInit(args[1:], stdin, stdout)
		case "hash-token":
			err = runHashToken(args[1:], stdout)
		case "version":
			fmt.Fprintf(stdout, "%s v%s\n", AppName, AppVersion)
		default:
			err = runOnce(ctx, args, stdout, stderr)
		}
	} else {
		err = runOnce(ctx, args, stdout, stderr)
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, flag.ErrHelp):
		return 2
	default:
		cli.PrintError(stderr, err)
		return 1
	}
}

// onceFlags mirrors the classic pal_rcon command line.
type onceFlags struct {
	host     string
	port     int
	password string
	command  string
	json     bool
	debug    bool
	async    bool
	version  bool
	attempts int
	timeout  time.Duration
}

func parseOnceFlags(args []string, stderr io.Writer) (*onceFlags, error) {
	f := &onceFlags{}
	fs := flag.NewFlagSet(AppName, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.host, "h", "", "The hostname of the server")
	fs.IntVar(&f.port, "p", 0, "The port of the server")
	fs.StringVar(&f.password, "P", "", "The RCON password (default $"+config.EnvPassword+")")
	fs.StringVar(&f.command, "c", "", "The command to send to the server")
	fs.BoolVar(&f.json, "json", false, "Output as JSON")
	fs.BoolVar(&f.debug, "debug", false, "Enable debug logging")
	fs.BoolVar(&f.async, "a", false, "Use the cooperative transport")
	fs.BoolVar(&f.version, "v", false, "Print the version")
	fs.IntVar(&f.attempts, "attempts", 0, "Maximum attempts (default per command)")
	fs.DurationVar(&f.timeout, "timeout", 30*time.Second, "Overall deadline, 0 for none")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: %s -h host -p port [-P password] -c command [--json] [--debug] [-a]\n", AppName)
		fmt.Fprintf(stderr, "       %s serve|console|init|hash-token|version [flags]\n\n", AppName)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if f.version {
		return f, nil
	}
	if f.host == "" || f.port == 0 || f.command == "" {
		fs.Usage()
		return nil, fmt.Errorf("-h, -p and -c are required")
	}
	if f.password == "" {
		f.password = os.Getenv(config.EnvPassword)
	}
	return f, nil
}

// runOnce connects, sends one command and disconnects.
func runOnce(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	f, err := parseOnceFlags(args, stderr)
	if err != nil {
		return err
	}
	if f.version {
		fmt.Fprintf(stdout, "%s v%s\n", AppName, AppVersion)
		return nil
	}

	logCfg := util.LogConfig{Level: "warn", Console: true, NoColor: f.json}
	if f.debug && !f.json {
		logCfg.Level = "debug"
	}
	if err := util.InitLogger(logCfg); err != nil {
		return err
	}

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	kind := network.KindStream
	if f.async {
		kind = network.KindAsync
	}
	transport, err := network.NewTransport(kind)
	if err != nil {
		return err
	}

	client := connector.NewClient(connector.Options{
		Host:      f.host,
		Port:      f.port,
		Password:  f.password,
		Transport: transport,
	})
	if err := client.Connect(ctx, connector.DefaultConnectAttempts); err != nil {
		return err
	}
	defer func() {
		if err := client.Close(); err != nil {
			log.Debug().Err(err).Msg("disconnect failed")
		}
	}()

	return cli.RunCommand(ctx, client, f.command, f.attempts, f.json, stdout)
}
