package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"synapseguard/presentation"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	configPath := os.Args[1]

	appCtx, appCtxCancel := context.WithCancel(context.Background())
	defer appCtxCancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		<-sigChan
		fmt.Println("interrupt received, shutting down")
		appCtxCancel()
	}()

	if err := presentation.StartClient(appCtx, configPath); err != nil {
		fmt.Fprintf(os.Stderr, "tunnel failed: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf(`Usage: %s <config.json>

The config file is a JSON TunnelConfig: private key, peer public key,
endpoint, tunnel addresses and allowed IPs.
`, os.Args[0])
}
