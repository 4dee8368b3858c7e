package main

import (
	"log"

	"github.com/rikuduo/rikuduo/internal/config"
	"github.com/rikuduo/rikuduo/internal/db"
	"github.com/rikuduo/rikuduo/internal/httpapi"
	"github.com/rikuduo/rikuduo/internal/store/rabbitmq"
	"github.com/rikuduo/rikuduo/internal/store/redisstore"
)

func main() {
	cfg := config.Load()

	gdb := db.Connect(cfg.DBDSN)
	if err := db.Migrate(gdb); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	cache := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.CacheTTL)
	defer cache.Close()

	pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		// async replies degrade gracefully; sync and streaming turns still work
		log.Printf("rabbit dial failed, async replies disabled: %v", err)
		pub = nil
	} else {
		defer pub.Close()
	}

	r := httpapi.NewRouter(gdb, cfg, cache, pub)

	log.Printf("listening on %s", cfg.HTTPAddr)
	if err := r.Run(cfg.HTTPAddr); err != nil {
		log.Fatalf("server: %v", err)
	}
}
