package main

import (
	"context"
	"flag"
	"os"

	"github.com/safar/go-food-delivery/internal/config"
	"github.com/safar/go-food-delivery/internal/database"
	"github.com/safar/go-food-delivery/internal/logging"
)

func main() {
	dir := flag.String("dir", "migrations", "directory holding *.up.sql and *.down.sql")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.New(config.LogConfig{}, "migrate").WithError(err).Fatal("load config")
	}
	log := logging.New(cfg.Log, "migrate")

	if flag.NArg() != 1 {
		log.Fatal("usage: migrate [-dir migrations] up|down")
	}
	direction := flag.Arg(0)

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		log.WithError(err).Fatal("connect to database")
	}
	defer db.Close()

	applied, err := database.Migrate(context.Background(), db, *dir, direction, log)
	if err != nil {
		log.WithError(err).Error("migration failed")
		db.Close()
		os.Exit(1)
	}
	log.WithField("applied", applied).Info("migrations completed")
}
