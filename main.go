package main

import (
	"context"
	"fmt"
	"os"

	"cybersecbot/internal/cli"

	"github.com/rs/zerolog/log"
	"go.uber.org/automaxprocs/maxprocs"
)

func main() {

	// Match GOMAXPROCS to the container CPU quota
	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...interface{}) {
		log.Debug().Msg(fmt.Sprintf(format, args...))
	})); err != nil {
		log.Warn().Err(err).Msg("Could not set GOMAXPROCS")
	}

	if err := cli.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
