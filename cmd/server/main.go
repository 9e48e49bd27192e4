package main

import (
	"context"
	"log"

	"github.com/dmitrijs2005/gophblog/internal/server"
	"github.com/dmitrijs2005/gophblog/internal/server/config"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()
	app, err := server.NewApp(ctx, cfg)

	if err != nil {
		log.Printf("%v", err)
		return
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Printf("close: %v", err)
		}
	}()

	if err := app.Run(ctx); err != nil {
		log.Printf("%v", err)
	}

}
