package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/felixgeelhaar/ndole/internal/config"
)

// Version is set at build time via ldflags
var Version = "dev"

const (
	pidFile = "ndoled.pid"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	args := os.Args[2:]

	var err error
	switch os.Args[1] {
	case "init":
		err = cmdInit()
	case "start":
		err = cmdStart()
	case "stop":
		err = cmdStop()
	case "status":
		err = cmdStatus()
	case "logs":
		err = cmdLogs()
	case "doctor":
		err = cmdDoctor()
	case "config":
		err = cmdConfig()
	case "progress":
		err = cmdProgress(args)
	case "complete":
		err = cmdComplete(args)
	case "catalog":
		err = cmdCatalog(args)
	case "achievements":
		err = cmdAchievements()
	case "notifications":
		err = cmdNotifications(args)
	case "enqueue":
		err = cmdEnqueue(args)
	case "mcp":
		err = cmdMCP()
	case "help", "-h", "--help":
		printUsage()
	case "version", "-v", "--version":
		fmt.Printf("ndole %s\n", Version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Ndolé - Recipe-learning progression engine

Usage:
  ndole <command> [arguments]

Setup Commands:
  init            Create ~/.ndole and a default configuration
  doctor          Check storage, cache and queue connectivity
  config          Show current configuration

Daemon Commands:
  start           Start the ndoled daemon
  stop            Stop the ndoled daemon
  status          Show daemon status
  logs            View daemon logs

Progression Commands:
  progress <user>                          Show XP, level, streak and achievements
  complete <user> <lesson> <stage> [score] Record a completed stage (intro, steps, quiz, recipe)
  catalog [user]                           List levels and lessons, with unlock state for a user
  achievements                             List achievements
  notifications <user>                     Show a user's notifications

Queue Commands:
  enqueue <user> <lesson> <stage> [score]  Publish a completion to RabbitMQ and wait for the result

Integration Commands:
  mcp             Start MCP server on stdio

Other:
  help            Show this help message
  version         Show version information

Examples:
  ndole start                       # Start daemon
  ndole complete amara 102 recipe   # Finish Poulet DG
  ndole complete amara 101 quiz 90  # Pass the Ndolé quiz
  ndole catalog amara               # What can Amara cook next?`)
}

// daemonAddr returns the daemon base URL from the local configuration
func daemonAddr() string {
	cfg, err := loadConfig()
	if err != nil {
		cfg = config.DefaultLocalConfig()
	}

	host := cfg.Daemon.Bind
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s:%d", host, cfg.Daemon.Port)
}

// renderProgressBar creates a visual progress bar; value is 0..1
func renderProgressBar(value float64, width int) string {
	filled := int(value * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	empty := width - filled

	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", empty) + "]"
}
