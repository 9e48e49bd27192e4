package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dmitrijs2005/gophblog/internal/admin"
	"github.com/dmitrijs2005/gophblog/internal/server"
	"github.com/dmitrijs2005/gophblog/internal/server/config"
)

func main() {
	if len(os.Args) < 2 || os.Args[1] == "help" || os.Args[1] == "-h" {
		fmt.Fprint(os.Stderr, admin.Usage)
		os.Exit(2)
	}
	command, args := os.Args[1], os.Args[2:]

	ctx := context.Background()
	cfg := config.LoadConfig()

	app, err := server.NewApp(ctx, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	err = admin.New(app.Auth(), app.Cleanup(), app, os.Stdin, os.Stdout).Run(ctx, command, args)
	_ = app.Close()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
