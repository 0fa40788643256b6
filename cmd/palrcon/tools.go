package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/energizer-project/palrcon/internal/cli"
	"github.com/energizer-project/palrcon/internal/config"
	"github.com/energizer-project/palrcon/internal/server"
)

// runConsole opens an interactive shell. Flags override the config file.
func runConsole(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("console", flag.ContinueOnError)
	path := fs.String("config", defaultConfigPath(), "Configuration file")
	host := fs.String("h", "", "Override the server host")
	port := fs.Int("p", 0, "Override the RCON port")
	password := fs.String("P", "", "Override the RCON password")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*path)
	if err != nil {
		return err
	}

	rcon := cfg.GetRCON()
	if *host != "" {
		rcon.Host = *host
	}
	if *port != 0 {
		rcon.Port = *port
	}
	if *password != "" {
		rcon.Password = *password
	}

	client, err := server.NewClient(rcon)
	if err != nil {
		return err
	}
	mgr := server.NewManager(client, nil, server.OptionsFromConfig(rcon))
	defer mgr.Close()

	if err := mgr.Connect(ctx); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Connected to %s\n", mgr.Addr())

	return cli.NewConsole(mgr, stdin, stdout, rcon.CommandTimeout()).Run(ctx)
}

// runInit runs the setup wizard against the config file.
func runInit(args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	path := fs.String("config", defaultConfigPath(), "Configuration file to create or update")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*path)
	if err != nil {
		return err
	}
	return config.RunSetupWizard(cfg, stdin, stdout)
}

// runHashToken hashes a given secret, or generates a new one. With -add the
// token is appended to the config file.
func runHashToken(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("hash-token", flag.ContinueOnError)
	name := fs.String("name", "admin", "Token name, recorded as the API actor")
	perm := fs.String("perm", config.PermMonitor, "Permission: monitor, control or configure")
	add := fs.Bool("add", false, "Append the token to the config file")
	path := fs.String("config", defaultConfigPath(), "Configuration file used with -add")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !config.ValidPermission(*perm) {
		return fmt.Errorf("unknown permission %q", *perm)
	}

	var (
		secret string
		token  config.APIToken
		err    error
	)
	if fs.NArg() > 0 {
		secret = fs.Arg(0)
		hash, herr := config.HashToken(secret)
		if herr != nil {
			return herr
		}
		token = config.APIToken{Name: *name, Hash: hash, Permission: *perm}
	} else {
		secret, token, err = config.GenerateToken(*name, *perm)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "secret:     %s\n", secret)
	}
	fmt.Fprintf(stdout, "name:       %s\n", token.Name)
	fmt.Fprintf(stdout, "permission: %s\n", token.Permission)
	fmt.Fprintf(stdout, "hash:       %s\n", token.Hash)

	if !*add {
		return nil
	}
	cfg, err := config.Load(*path)
	if err != nil {
		return err
	}
	cfg.AddToken(token)
	if err := cfg.Save(); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "added to %s\n", cfg.Path())
	return nil
}
