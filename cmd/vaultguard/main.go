package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/vault-cli/vaultguard/internal/cli"
	"github.com/vault-cli/vaultguard/internal/secure"
	"github.com/vault-cli/vaultguard/internal/util"
)

func main() {
	os.Exit(run())
}

func run() (code int) {
	defer secure.Purge()
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "Fatal error: %v\n", r)
			code = util.ExitError
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.Execute(ctx); err != nil {
		return util.FormatError(os.Stderr, err, "")
	}
	return util.ExitOK
}
