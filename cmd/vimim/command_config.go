package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/hismailbulut/vimim/internal/config"
)

type ConfigCommand struct {
	stdout io.Writer
	stderr io.Writer
}

func NewConfigCommand(stdout, stderr io.Writer) *ConfigCommand {
	return &ConfigCommand{
		stdout: stdout,
		stderr: stderr,
	}
}

func (c *ConfigCommand) Run(args []string) error {
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	configPath := fs.String("config", "", "configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	path, err := config.ResolvePath(*configPath)
	if err != nil {
		return err
	}
	action := "show"
	rest := fs.Args()
	if len(rest) > 0 {
		action, rest = rest[0], rest[1:]
	}

	switch action {
	case "path":
		_, err := fmt.Fprintln(c.stdout, path)
		return err
	case "show":
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		data, err := toml.Marshal(cfg)
		if err != nil {
			return err
		}
		_, err = c.stdout.Write(data)
		return err
	case "get":
		if len(rest) != 1 {
			return errors.New("config get requires a key")
		}
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		value, err := cfg.Get(rest[0])
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(c.stdout, value)
		return err
	case "set":
		if len(rest) < 1 {
			return errors.New("config set requires a key and a value")
		}
		key, value := rest[0], strings.Join(rest[1:], " ")
		return c.update(path, func(cfg *config.Config) error {
			return cfg.Set(key, value)
		})
	case "import":
		if len(rest) != 1 {
			return errors.New("config import requires a data.json path")
		}
		data, err := os.ReadFile(rest[0])
		if err != nil {
			return err
		}
		return c.update(path, func(cfg *config.Config) error {
			imported, err := config.ImportLegacy(*cfg, data)
			if err != nil {
				return err
			}
			*cfg = imported
			return nil
		})
	case "export":
		if len(rest) != 1 {
			return errors.New("config export requires a data.json path")
		}
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		existing, err := os.ReadFile(rest[0])
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		data, err := config.ExportLegacy(cfg, existing)
		if err != nil {
			return err
		}
		return os.WriteFile(rest[0], data, 0o644)
	case "keys":
		for _, key := range config.Keys() {
			fmt.Fprintln(c.stdout, key)
		}
		return nil
	}
	return fmt.Errorf("unknown config action: %s", action)
}

func (c *ConfigCommand) update(path string, fn func(cfg *config.Config) error) error {
	store, err := config.Open(path)
	if err != nil {
		return err
	}
	return store.Update(fn)
}
