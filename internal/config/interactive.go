package config

import (
	"errors"
	"strings"

	"github.com/charmbracelet/huh"
)

// Answers are collected by Prompt.
type Answers struct {
	IssuerID   string
	KeyID      string
	PrivateKey string
	BundleID   string
	Name       string
}

// Config turns the answers into a config ready for Encode.
func (a *Answers) Config() *Config {
	return &Config{
		API: API{
			IssuerID:   strings.TrimSpace(a.IssuerID),
			KeyID:      strings.TrimSpace(a.KeyID),
			PrivateKey: strings.TrimSpace(a.PrivateKey),
		},
		Apps: []App{{
			BundleID: strings.TrimSpace(a.BundleID),
			Name:     strings.TrimSpace(a.Name),
		}},
	}
}

func required(s string) error {
	if strings.TrimSpace(s) == "" {
		return errors.New("required")
	}
	return nil
}

// Prompt asks for credentials and the first app on the terminal.
func Prompt() (*Answers, error) {
	a := &Answers{}
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("App Store Connect API key").
				Description("Create one at https://appstoreconnect.apple.com/access/integrations/api"),
			huh.NewInput().Title("Issuer ID").Value(&a.IssuerID).Validate(required),
			huh.NewInput().Title("Key ID").Value(&a.KeyID).Validate(required),
			huh.NewInput().
				Title("Private key").
				Description("Path to the AuthKey_XXXXXXXX.p8 file, relative to the data directory or absolute").
				Value(&a.PrivateKey).
				Validate(required),
		),
		huh.NewGroup(
			huh.NewInput().Title("Bundle ID").Placeholder("com.example.myapp").Value(&a.BundleID).Validate(required),
			huh.NewInput().Title("Name (optional)").Value(&a.Name),
		),
	)
	if err := form.Run(); err != nil {
		return nil, err
	}
	return a, nil
}
