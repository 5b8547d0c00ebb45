package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	jsoniter "github.com/json-iterator/go"
	"github.com/milkywaybrain/bitfeeds/internal/config"
	"github.com/milkywaybrain/bitfeeds/internal/initializer"
)

func main() {
	cfgPath := flag.String("config", "./config.json", "path of the JSON config file")
	flag.Parse()

	cfgFile, err := os.Open(*cfgPath)
	if err != nil {
		fmt.Println("not able to find config file :", *cfgPath)
		os.Exit(1)
	}
	var cfg config.Config
	if err = jsoniter.NewDecoder(cfgFile).Decode(&cfg); err != nil {
		cfgFile.Close()
		fmt.Println("not able to parse JSON from config file :", *cfgPath)
		os.Exit(1)
	}
	cfgFile.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err = initializer.Start(ctx, &cfg); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
