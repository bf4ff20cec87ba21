package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"chainvend.com/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	vendApp, err := app.New("vend-service")
	if err != nil {
		log.Fatalf("init vend-service error: %v", err)
	}
	cleanUp, err := vendApp.StartService(ctx)
	if err != nil {
		log.Fatalf("start vend-service error: %v", err)
	}
	defer cleanUp()

	srv := vendApp.StartHttp()
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("vend-service ListenAndServe error: %v", err)
		}
	}()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("vend-service shutdown error: %v", err)
	}
	log.Println("vend-service exit")
}
