package main

import (
	"flag"
	"fmt"
	"os"
)

const version = "0.1.0"

func printHelp() {
	fmt.Print(`ctlpanel is an SSH control panel for managing panel accounts.

Usage: ctlpanel [global options] <subcommand> [args]

Available commands:
  help     Show this help output
  version  Show the current ctlpanel version
  serve    Run the SSH server
  console  Open a root session on this terminal
  keygen   Generate the SSH host key
  config   Print the effective configuration
`)
}

func main() {
	flag.Usage = printHelp
	flagHelp := flag.Bool("help", false, "Show help")
	flag.Parse()

	args := flag.Args()

	if *flagHelp || len(args) == 0 || args[0] == "help" {
		printHelp()
		os.Exit(0)
	}

	var err error
	switch args[0] {
	case "version":
		fmt.Println("ctlpanel", version)
	case "serve":
		err = serveCmd(args[1:])
	case "console":
		err = consoleCmd(args[1:])
	case "keygen":
		err = keygenCmd(args[1:])
	case "config":
		err = configCmd(args[1:])
	default:
		fmt.Fprintln(os.Stderr, "Unknown command:", args[0])
		printHelp()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(2)
	}
}
