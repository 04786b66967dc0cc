package main

import (
	"errors"
	"fmt"
	"os"

	"fitQuestAPI/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand(&cli.RootOptions{})
	if err := cmd.Execute(); err != nil {
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
