package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"

	"github.com/username/trackfolio/backend/src/config"
	"github.com/username/trackfolio/backend/src/logger"
)

func main() {
	config.LoadConfig()
	logger.InitLoggerWithWriter(config.Cfg.LogLevel, os.Stderr)

	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.CommandsCommand(), "")

	for _, c := range Commands {
		commander.Register(c, "")
	}

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}
