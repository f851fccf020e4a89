package main

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/grvram01/person-service-repo/api"
	"github.com/grvram01/person-service-repo/config"
	"github.com/grvram01/person-service-repo/domain"
	"github.com/grvram01/person-service-repo/storage"
)

func main() {
	_ = godotenv.Load()
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}

	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	personsTable := os.Getenv("PERSONS_TABLE")
	changesTable := os.Getenv("CHANGES_TABLE")
	if connStr == "" || personsTable == "" || changesTable == "" {
		log.Fatal("missing storage config")
	}

	store, err := storage.New(connStr, storage.Config{
		PersonsTable: personsTable,
		ChangesTable: changesTable,
	})
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	logger := log.New()
	svc := domain.NewPersonService(store, store, logger)

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
	}))
	api.Register(e, svc, logger)

	listenAddr := config.String("LISTEN_ADDR", ":8080")
	if val, ok := os.LookupEnv("FUNCTIONS_CUSTOMHANDLER_PORT"); ok {
		listenAddr = ":" + val
	}

	e.Logger.Fatal(e.Start(listenAddr))
}
