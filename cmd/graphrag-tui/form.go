// ABOUTME: Interactive connection and mode forms built on huh
// ABOUTME: Collects the graph database connection and the assistant mode

package main

import (
	"errors"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/2389/graphrag-assistant/internal/settings"
)

type configureResult struct {
	Connection settings.ConnectionConfig
	Mode       string
}

// runConfigureForm asks for the connection parameters and, when modes are
// offered, the assistant mode. Current values are prefilled.
func runConfigureForm(current settings.ConnectionConfig, modes []string, currentMode string) (configureResult, error) {
	res := configureResult{Connection: current, Mode: currentMode}
	if res.Connection.Username == "" {
		res.Connection.Username = settings.DefaultUsername
	}
	if res.Connection.IndexName == "" {
		res.Connection.IndexName = settings.DefaultIndexName
	}

	fields := []huh.Field{
		huh.NewInput().
			Title("Database URL").
			Placeholder("bolt://localhost:7687").
			Value(&res.Connection.URL).
			Validate(required("database URL")),
		huh.NewInput().
			Title("Username").
			Placeholder(settings.DefaultUsername).
			Value(&res.Connection.Username),
		huh.NewInput().
			Title("Password").
			EchoMode(huh.EchoModePassword).
			Value(&res.Connection.Password).
			Validate(func(s string) error {
				if s == "" {
					return errors.New("password is required")
				}
				return nil
			}),
		huh.NewInput().
			Title("Index name").
			Placeholder(settings.DefaultIndexName).
			Value(&res.Connection.IndexName),
	}

	groups := []*huh.Group{huh.NewGroup(fields...).Title("Graph database")}
	if len(modes) > 0 {
		groups = append(groups, huh.NewGroup(modeSelect(modes, &res.Mode)).Title("Assistant"))
	}

	if err := huh.NewForm(groups...).WithShowHelp(true).Run(); err != nil {
		return configureResult{}, err
	}

	res.Connection.URL = strings.TrimSpace(res.Connection.URL)
	if strings.TrimSpace(res.Connection.Username) == "" {
		res.Connection.Username = settings.DefaultUsername
	}
	if strings.TrimSpace(res.Connection.IndexName) == "" {
		res.Connection.IndexName = settings.DefaultIndexName
	}
	return res, nil
}

// runModeForm asks for an assistant mode only.
func runModeForm(modes []string, currentMode string) (string, error) {
	mode := currentMode
	if err := huh.NewForm(huh.NewGroup(modeSelect(modes, &mode))).WithShowHelp(true).Run(); err != nil {
		return "", err
	}
	return mode, nil
}

func modeSelect(modes []string, value *string) *huh.Select[string] {
	opts := make([]huh.Option[string], len(modes))
	for i, m := range modes {
		opts[i] = huh.NewOption(m, m).Selected(m == *value)
	}
	return huh.NewSelect[string]().
		Title("Assistant mode").
		Options(opts...).
		Value(value)
}

func required(name string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return errors.New(name + " is required")
		}
		return nil
	}
}
