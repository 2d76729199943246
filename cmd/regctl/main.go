package main

import (
	"context"
	"log"
	"os"

	"kompetisi/internal/competition"
	"kompetisi/internal/config"
	"kompetisi/internal/store"
)

func main() {
	logger := log.New(os.Stderr, "REGCTL : ", log.LstdFlags)
	cfg := config.Load()

	db, err := store.Open(cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal(err)
	}

	cli := commandLine{
		db:    db,
		comps: competition.NewService(competition.NewRepository(db)),
		cfg:   cfg,
		out:   os.Stdout,
	}
	err = cli.run(context.Background(), os.Args)
	db.Close()
	if err != nil {
		if err != errHelp {
			logger.Printf("error: %s", err)
		}
		os.Exit(1)
	}
}
