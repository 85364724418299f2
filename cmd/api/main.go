package main

import (
	"log"
	"net/http"

	"groundflow/internal/api"
	"groundflow/internal/config"
	"groundflow/internal/logging"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load(".env")
	cfg := config.Load()
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	s := api.NewServer(cfg, logger)
	defer s.Close()

	logger.Infow("groundflow api listening",
		"addr", cfg.APIAddr,
		"llm_providers", cfg.LLMProviders,
		"embed_providers", cfg.EmbedProviders)
	if err := http.ListenAndServe(cfg.APIAddr, s.Routes()); err != nil {
		logger.Fatal(err)
	}
}
