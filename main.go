package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/habedi/booksync/cmd"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	_ "time/tzdata"
)

func main() {
	configureLogLevelFromEnv()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stopChan := setupInterruptListener()
	go handleInterrupt(stopChan, cancel, func(msg string) {
		log.Warn().Msg(msg)
	}, os.Exit)

	cmd.Execute(ctx)
}

// configureLogLevelFromEnv enables debug logging on stderr when DEBUG_BOOKSYNC
// is set to anything other than "", "0" or "false".
func configureLogLevelFromEnv() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEBUG_BOOKSYNC"))) {
	case "", "0", "false":
		zerolog.SetGlobalLevel(zerolog.Disabled)
	default:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

func setupInterruptListener() chan os.Signal {
	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, os.Interrupt, syscall.SIGTERM)
	return stopChan
}

// handleInterrupt cancels the running command on the first signal so token
// writes and open files are finished cleanly. A second signal exits at once.
func handleInterrupt(stopChan chan os.Signal, cancel context.CancelFunc, logFn func(string), exit func(int)) {
	<-stopChan
	logFn("Interrupt signal received. Exiting...")
	cancel()
	<-stopChan
	exit(130)
}
