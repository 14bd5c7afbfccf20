package main

import (
	"context"
	"log"

	"github.com/avelichko/casevault/internal/app"
	"github.com/avelichko/casevault/internal/config"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()
	a, err := app.NewApp(cfg)

	if err != nil {
		log.Printf("%v", err)
		return
	}

	a.Run(ctx)

}
