package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"loom/weft/cmd"
)

func main() {
	level := zerolog.WarnLevel
	if os.Getenv("WEFT_DEBUG") != "" {
		level = zerolog.DebugLevel
	}
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).
		With().
		Timestamp().
		Logger()

	cmd.Execute()
}
