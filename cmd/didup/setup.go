package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/raine/didup-famiglia/internal/config"
)

func required(name string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", name)
		}
		return nil
	}
}

// runSetupWizard asks for the missing credentials, sets them in the process
// environment and optionally saves them to config.env.
func runSetupWizard() error {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("99")).
		MarginBottom(1)

	fmt.Println()
	fmt.Println(titleStyle.Render("didUP Famiglia - Login"))

	values := map[string]string{}
	for _, key := range config.RequiredEnvVars {
		values[key] = os.Getenv(key)
	}
	schoolCode := values[config.EnvSchoolCode]
	username := values[config.EnvUsername]
	password := values[config.EnvPassword]
	mobileClientID := values[config.EnvMobileClientID]
	save := true

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("School code").
				Description("The code your school gave you, e.g. SC12345").
				Value(&schoolCode).
				Validate(required("school code")),
			huh.NewInput().
				Title("Username").
				Value(&username).
				Validate(required("username")),
			huh.NewInput().
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Value(&password).
				Validate(required("password")),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Mobile client ID").
				Description("Client id of the didUP Famiglia app").
				Value(&mobileClientID).
				Validate(required("mobile client ID")),
			huh.NewConfirm().
				Title("Save to config file?").
				Description("The password is stored in plain text, readable only by you").
				Value(&save),
		),
	).WithTheme(huh.ThemeBase16())

	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return errors.New("setup cancelled")
		}
		return err
	}

	values = map[string]string{
		config.EnvSchoolCode:     strings.TrimSpace(schoolCode),
		config.EnvUsername:       strings.TrimSpace(username),
		config.EnvPassword:       password,
		config.EnvMobileClientID: strings.TrimSpace(mobileClientID),
	}
	for k, v := range values {
		os.Setenv(k, v)
	}

	if !save {
		return nil
	}
	configPath, err := config.WriteEnvFile(values)
	if err != nil {
		return fmt.Errorf("error saving configuration: %w", err)
	}

	successStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("42")).
		Bold(true)
	pathStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("245"))

	fmt.Println(successStyle.Render("✓ Configuration saved"))
	fmt.Println(pathStyle.Render("  " + configPath))
	fmt.Println()
	return nil
}
