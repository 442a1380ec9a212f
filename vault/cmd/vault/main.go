package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/telhawk-systems/cardvault/vault/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		if errors.Is(err, cli.ErrRestart) {
			os.Exit(cli.ExitRestart)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
