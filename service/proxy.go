package service

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"biostar/proxy"
)

// HandleProxyCommand runs the proxy subcommands and returns an exit code.
func HandleProxyCommand(args []string) int {
	if len(args) < 1 {
		printProxyHelp()
		return 1
	}

	rest, configPath, ok := popFlag(args[1:], "--config")
	switch args[0] {
	case "serve", "check":
		if !ok {
			fmt.Println("Error: --config <file> is required")
			return 1
		}
		if len(rest) > 0 {
			fmt.Printf("Unexpected arguments: %v\n", rest)
			return 1
		}
	case "help":
		printProxyHelp()
		return 0
	default:
		fmt.Printf("Unknown proxy command: %s\n\n", args[0])
		printProxyHelp()
		return 1
	}

	cfg, err := proxy.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return 1
	}
	if args[0] == "check" {
		fmt.Printf("configuration file %s test is successful\n", configPath)
		return 0
	}
	return runProxy(cfg)
}

func runProxy(cfg *proxy.Config) int {
	srv, err := proxy.New(cfg)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return 1
	}
	defer srv.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := srv.ListenAndServe(ctx); err != nil {
		log.Printf("Proxy error: %v", err)
		return 1
	}
	return 0
}

func printProxyHelp() {
	helpText := `Usage: biostar proxy <command> --config <file>

Commands:
  serve --config <file>    Run the reverse proxy
  check --config <file>    Test the configuration file and exit
  help                     Display this help message
`
	fmt.Println(helpText)
}
