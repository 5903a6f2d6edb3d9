package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/goliatone/go-query/internal/cmd/querykey"
)

func main() {
	cfg, args, err := querykey.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetFlags(0)
	log.SetPrefix("querykey: ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = querykey.Run(ctx, cfg, args, querykey.IO{In: os.Stdin, Out: os.Stdout, Err: os.Stderr})
	if errors.Is(err, querykey.ErrUsage) {
		flag.Usage()
	}
	if err != nil {
		log.Fatal(err)
	}
}
