package main

import (
	"flag"
	"os"

	"github.com/yigit/classsetup/internal/pkg/logger"
	"github.com/yigit/classsetup/internal/server"
)

// @title Class Setup API
// @version 1.0
// @description Multiple class setup of instructional offering configurations
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML configuration file")
	flag.Parse()

	srv, err := server.NewServer(*configPath)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize server")
		os.Exit(1)
	}

	if err := srv.Run(); err != nil {
		logger.Error().Err(err).Msg("Server stopped with error")
		os.Exit(1)
	}
}
