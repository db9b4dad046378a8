package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/biosecret/go-tasks/apperror"
	"github.com/biosecret/go-tasks/cli"
	"github.com/biosecret/go-tasks/client"
	"github.com/biosecret/go-tasks/config"
)

func main() {
	if err := config.LoadENV(); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading .env: %v\n", err)
		os.Exit(1)
	}
	cfg := config.LoadClient()

	api, err := client.New(cfg.Server, client.WithTimeout(cfg.Timeout))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	tokenFile := cfg.TokenFile
	if tokenFile == "" {
		if tokenFile, err = client.DefaultTokenPath(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	root := cli.NewRootCommand(cli.Dependencies{
		API:    api,
		Tokens: client.NewFileTokenStore(tokenFile),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := root.Execute(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", describe(err))
		stop()
		os.Exit(1)
	}
}

// describe prints server errors by their message alone.
func describe(err error) string {
	if appErr, ok := err.(*apperror.Error); ok && appErr.Kind != apperror.KindInternal {
		return appErr.Message
	}
	return err.Error()
}
