package main

import (
	"fmt"
	"os"
	"strings"

	"biostar/service"
)

// CliVersion is reported by the version command.
const CliVersion = "1.0.0"

var exit = os.Exit

func main() {
	RealMain()
}

// RealMain dispatches os.Args to the app and proxy command groups.
func RealMain() {
	if len(os.Args) < 2 {
		printHelp()
		exit(1)
		return
	}

	cmd := strings.ToLower(os.Args[1])
	switch cmd {
	case "help":
		printHelp()
	case "version":
		fmt.Printf("biostar version %s\n", CliVersion)
	case "app":
		exit(service.HandleCommand(os.Args[2:]))
	case "proxy":
		exit(service.HandleProxyCommand(os.Args[2:]))
	default:
		fmt.Printf("Unknown command: %s\n\n", os.Args[1])
		printHelp()
		exit(1)
	}
}

func printHelp() {
	helpText := `Usage: biostar <command> [options]
Commands:
  help                           Display this help message.
  version                        Show version information.
  app <command> [--config f]     Run or administer the forum application.
                                 Commands: serve, init, clean, backup, restore <file>,
                                 createuser <name> <email> <password> [--moderator]
  proxy <command> --config f     Run the reverse proxy (serve) or test its config (check).
`
	fmt.Println(helpText)
}
