// Copyright (c) 2025 BVK Chaitanya

package setup

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/bvk/sigbot/server"
	"golang.org/x/term"
)

// loadSecrets reads the secrets file. A missing file gives empty secrets.
func loadSecrets(fpath string) (*server.Secrets, error) {
	secrets, err := server.SecretsFromFile(fpath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		secrets = new(server.Secrets)
	}
	return secrets, nil
}

func saveSecrets(fpath string, secrets *server.Secrets) error {
	if err := secrets.Check(); err != nil {
		return err
	}
	js, err := json.MarshalIndent(secrets, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(fpath, js, os.FileMode(0600)); err != nil {
		return err
	}
	return nil
}

// readSecret prompts for a value on the terminal without echo.
func readSecret(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("%s is required; standard input is not a terminal", prompt)
	}
	fmt.Printf("%s: ", prompt)
	data, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("could not read %s: %w", prompt, err)
	}
	return string(data), nil
}
