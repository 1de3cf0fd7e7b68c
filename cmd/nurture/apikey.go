package main

import (
	"fmt"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"

	"github.com/fernwell/nurture/internal/repository"
)

// apiKeyHashSetting stores the bcrypt hash checked by the API auth
// middleware. It can only be set from the CLI.
const apiKeyHashSetting = "api_key_hash"

var apikeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "API key management commands",
}

var apikeySetCmd = &cobra.Command{
	Use:   "set",
	Short: "Set the management API key",
	RunE:  runAPIKeySet,
}

var apikeyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the stored API key hash",
	RunE:  runAPIKeyClear,
}

func init() {
	apikeyCmd.AddCommand(apikeySetCmd, apikeyClearCmd)
}

func runAPIKeySet(cmd *cobra.Command, args []string) error {
	fmt.Print("Enter API key: ")
	keyBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return fmt.Errorf("failed to read key: %w", err)
	}
	fmt.Println()

	fmt.Print("Confirm API key: ")
	keyBytes2, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return fmt.Errorf("failed to read key: %w", err)
	}
	fmt.Println()

	key := string(keyBytes)
	if key != string(keyBytes2) {
		return fmt.Errorf("keys do not match")
	}
	if len(key) < 16 {
		return fmt.Errorf("API key must be at least 16 characters")
	}

	hash, err := bcrypt.GenerateFromPassword(keyBytes, bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash key: %w", err)
	}

	database, err := openDatabase()
	if err != nil {
		return err
	}
	defer database.Close()

	settings := repository.NewSettingsRepository(database.DB)
	if err := settings.SetSetting(apiKeyHashSetting, string(hash)); err != nil {
		return err
	}

	fmt.Println("API key updated")
	return nil
}

func runAPIKeyClear(cmd *cobra.Command, args []string) error {
	database, err := openDatabase()
	if err != nil {
		return err
	}
	defer database.Close()

	settings := repository.NewSettingsRepository(database.DB)
	if err := settings.DeleteSetting(apiKeyHashSetting); err != nil {
		return err
	}

	fmt.Println("API key hash removed")
	return nil
}
