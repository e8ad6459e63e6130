package main

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"

	"github.com/hismailbulut/vimim/pkg/logger"
)

const (
	NAME    = "vimim"
	WEBPAGE = "github.com/hismailbulut/vimim"
	LICENSE = "GPLv3"
)

var VERSION = logger.Version{
	Major: 0,
	Minor: 1,
	Patch: 0,
}

const usageText = `vimim switches the input method of the system when a modal editor changes mode.

Usage:
  vimim <command> [flags]

Commands:
  daemon    run the switcher
  send      send a mode or key to a running daemon
  status    show the state of a running daemon
  history   show the last commands run by the daemon
  config    show or edit the configuration
  version   print version
  help      show help

Daemon flags:
  --config <path>     configuration file
  --listen <addr>     signal server address, "-" disables it
  --address <addr>    neovim address to attach to (defaults to $NVIM)
  --stdio             serve neovim through stdin and stdout
  --log-file <path>   also write logs to this file
  --verbose           debug logs and command statistics on exit

Examples:
  vimim daemon --address /tmp/nvim.sock
  vimim send mode insert
  vimim send key '<Esc>'
  vimim history -n 20
  vimim config set switchCmd 'im-select {im}'
  vimim config import ~/vault/.obsidian/plugins/obsidian-vim-im-switch-plugin/data.json

From neovim:
  call jobstart(['vimim', 'daemon', '--stdio'], {'rpc': v:true})
`

func printUsage() {
	fmt.Fprint(os.Stderr, usageText)
}

func main() {
	color := isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	logger.Init(NAME, VERSION, color)
	defer logger.Shutdown()

	args := os.Args[1:]
	if len(args) == 0 {
		printUsage()
		return
	}

	wiring := defaultCommandWiring(os.Stdout, os.Stderr)
	commands := buildCommands(wiring)

	switch args[0] {
	case "-h", "--help", "help":
		printUsage()
		return
	case "-v", "--version", "version":
		fmt.Fprintln(os.Stdout, NAME, VERSION)
		return
	}

	runner, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		os.Exit(2)
	}
	exitOnErr(args[0], runner.Run(args[1:]), wiring.stderr)
}
