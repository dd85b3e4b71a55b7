package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/sandeepkv93/product-catalog-api/internal/di"
)

//go:generate go run github.com/swaggo/swag/cmd/swag@v1.16.4 init --dir ../.. --generalInfo cmd/api/main.go --output ../../internal/docs --outputTypes go --parseInternal

// @title        Product Catalog API
// @version      1.0
// @description  CRUD service for the products resource.
// @BasePath     /
func main() {
	_ = godotenv.Load()

	a, err := di.InitializeApp()
	if err != nil {
		log.Fatal(err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- a.ListenAndServe() }()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sig:
		a.Logger.Info("shutdown signal received", "signal", s.String())
	case err := <-errCh:
		if err != nil {
			a.Logger.Error("server stopped", "error", err)
		}
	}
	a.Shutdown(context.Background())
}
