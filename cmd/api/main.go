package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/safar/go-food-delivery/internal/api"
	"github.com/safar/go-food-delivery/internal/cache"
	"github.com/safar/go-food-delivery/internal/cart"
	"github.com/safar/go-food-delivery/internal/config"
	"github.com/safar/go-food-delivery/internal/database"
	"github.com/safar/go-food-delivery/internal/events"
	"github.com/safar/go-food-delivery/internal/lifecycle"
	"github.com/safar/go-food-delivery/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New(config.LogConfig{}, "api").WithError(err).Fatal("load config")
	}

	log := logging.New(cfg.Log, "api")

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		log.WithError(err).Fatal("connect to database")
	}
	defer db.Close()

	log.WithField("driver", cfg.Database.Driver).Info("connected to database")

	broker := events.NewBroker()
	publishers := events.Fanout{broker}

	if cfg.Kafka.Enabled() {
		kafkaPub := events.NewKafkaPublisher(events.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.OrderTopic))
		defer kafkaPub.Close()
		publishers = append(publishers, kafkaPub)
		log.WithField("topic", cfg.Kafka.OrderTopic).Info("publishing order events to kafka")
	}

	if cfg.AMQP.Enabled() {
		amqpPub, err := events.DialAMQP(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			log.WithError(err).Fatal("connect to rabbitmq")
		}
		defer amqpPub.Close()
		publishers = append(publishers, amqpPub)
		log.WithField("exchange", cfg.AMQP.Exchange).Info("publishing order events to rabbitmq")
	}

	opts := []lifecycle.Option{
		lifecycle.WithPublisher(publishers),
		lifecycle.WithLogger(log),
	}

	if cfg.Redis.Enabled() {
		client := cache.NewClient(cfg.Redis)
		defer client.Close()

		redisCache := cache.NewRedisCache(client, cfg.Redis.DashboardTTL)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := redisCache.Ping(ctx)
		cancel()
		if err != nil {
			log.WithError(err).Warn("redis unreachable, running without cache")
		} else {
			opts = append(opts, lifecycle.WithCache(redisCache))
			log.WithField("addr", cfg.Redis.Addr).Info("connected to redis")
		}
	}

	manager := lifecycle.NewManager(db, lifecycle.PricingFromConfig(cfg.Pricing), opts...)
	handler := api.NewHandler(manager, cart.NewSessions(), log)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      api.NewRouter(cfg, handler, broker),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.WithField("port", cfg.Server.Port).Info("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Error("shutdown")
	}
}
