package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/dmitrijs2005/objidx/internal/server"
	"github.com/dmitrijs2005/objidx/internal/server/auth"
	"github.com/dmitrijs2005/objidx/internal/server/config"
)

const tokenValidity = 30 * 24 * time.Hour

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()

	// "server token <user>" prints a bearer token signed with the configured secret.
	if len(os.Args) > 2 && os.Args[1] == "token" {
		if cfg.SecretKey == "" {
			log.Fatal("no secret key configured (-s)")
		}
		tok, err := auth.GenerateToken(os.Args[2], []byte(cfg.SecretKey), tokenValidity)
		if err != nil {
			log.Fatalf("%v", err)
		}
		fmt.Println(tok)
		return
	}

	app, err := server.NewApp(ctx, cfg)

	if err != nil {
		log.Printf("%v", err)
		return
	}

	app.Run(ctx)

}
