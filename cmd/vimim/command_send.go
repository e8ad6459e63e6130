package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"

	"github.com/hismailbulut/vimim/internal/ipc"
	"github.com/hismailbulut/vimim/internal/types"
)

type SendCommand struct {
	stdout    io.Writer
	stderr    io.Writer
	newClient clientFactory
}

func NewSendCommand(stdout, stderr io.Writer, newClient clientFactory) *SendCommand {
	return &SendCommand{
		stdout:    stdout,
		stderr:    stderr,
		newClient: newClient,
	}
}

func (c *SendCommand) Run(args []string) error {
	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	configPath := fs.String("config", "", "configuration file")
	address := fs.String("addr", "", "daemon address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return errors.New("send requires mode or key")
	}

	var signal string
	var signalArgs []string
	switch fs.Arg(0) {
	case "mode":
		signal = ipc.SignalMode
		if fs.NArg() > 1 {
			signalArgs = []string{fs.Arg(1)}
		}
	case "key":
		if fs.NArg() < 2 {
			return errors.New("send key requires a key")
		}
		signal = ipc.SignalKey
		signalArgs = []string{fs.Arg(1)}
	default:
		return fmt.Errorf("unknown send target: %s", fs.Arg(0))
	}

	client, err := connect(c.newClient, *configPath, *address)
	if err != nil {
		return err
	}
	defer client.Close()
	_, err = client.Send(signal, signalArgs...)
	return err
}

type StatusCommand struct {
	stdout    io.Writer
	stderr    io.Writer
	newClient clientFactory
}

func NewStatusCommand(stdout, stderr io.Writer, newClient clientFactory) *StatusCommand {
	return &StatusCommand{
		stdout:    stdout,
		stderr:    stderr,
		newClient: newClient,
	}
}

func (c *StatusCommand) Run(args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	configPath := fs.String("config", "", "configuration file")
	address := fs.String("addr", "", "daemon address")
	asJSON := fs.Bool("json", false, "print the raw status")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := connect(c.newClient, *configPath, *address)
	if err != nil {
		return err
	}
	defer client.Close()
	payload, err := client.Send(ipc.SignalStatus)
	if err != nil {
		return err
	}
	if *asJSON {
		_, err := fmt.Fprintln(c.stdout, payload)
		return err
	}
	var status statusPayload
	if err := json.Unmarshal([]byte(payload), &status); err != nil {
		return fmt.Errorf("decode status: %w", err)
	}
	printStatus(c.stdout, status)
	return nil
}

type HistoryCommand struct {
	stdout    io.Writer
	stderr    io.Writer
	newClient clientFactory
}

func NewHistoryCommand(stdout, stderr io.Writer, newClient clientFactory) *HistoryCommand {
	return &HistoryCommand{
		stdout:    stdout,
		stderr:    stderr,
		newClient: newClient,
	}
}

func (c *HistoryCommand) Run(args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	configPath := fs.String("config", "", "configuration file")
	address := fs.String("addr", "", "daemon address")
	count := fs.Int("n", defaultHistoryCount, "number of commands, 0 for all")
	asJSON := fs.Bool("json", false, "print the raw history")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := connect(c.newClient, *configPath, *address)
	if err != nil {
		return err
	}
	defer client.Close()
	payload, err := client.Send(ipc.SignalHistory, strconv.Itoa(*count))
	if err != nil {
		return err
	}
	if *asJSON {
		_, err := fmt.Fprintln(c.stdout, payload)
		return err
	}
	var records []types.CommandRecord
	if err := json.Unmarshal([]byte(payload), &records); err != nil {
		return fmt.Errorf("decode history: %w", err)
	}
	printHistory(c.stdout, records)
	return nil
}

func connect(newClient clientFactory, configPath, address string) (signalClient, error) {
	address, err := daemonAddress(configPath, address)
	if err != nil {
		return nil, err
	}
	return newClient(address)
}
