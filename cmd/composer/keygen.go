package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/datakettle/dp-composer/internal/auth"
)

var keygenCount int

var keygenCmd = &cobra.Command{
	Use:   "keygen [existing-key...]",
	Short: "Generate API keys for serve-mode authentication",
	Long: `keygen generates API keys and the SHA-256 hashes the server checks
against. Hand the key to the client; only the hash goes in config.yaml.

With existing keys as arguments, prints their hashes instead of generating
new ones.`,
	RunE: runKeygen,
}

func init() {
	keygenCmd.Flags().IntVar(&keygenCount, "count", 1, "number of keys to generate")
}

func runKeygen(cmd *cobra.Command, args []string) error {
	keys := args
	if len(keys) == 0 {
		if keygenCount < 1 {
			return fmt.Errorf("count must be at least 1")
		}
		for i := 0; i < keygenCount; i++ {
			key, err := auth.GenerateAPIKey()
			if err != nil {
				return fmt.Errorf("generate key: %w", err)
			}
			keys = append(keys, key)
		}
	}

	hashes := make([]string, len(keys))
	for i, key := range keys {
		hashes[i] = auth.HashAPIKey(key)
		fmt.Printf("API key:  %s\n", key)
		fmt.Printf("SHA-256:  %s\n\n", hashes[i])
	}

	fmt.Println("Add this to your config.yaml:")
	fmt.Println("server:")
	fmt.Println("  auth:")
	fmt.Println("    enabled: true")
	fmt.Println("    api_keys:")
	for _, hash := range hashes {
		fmt.Printf("      - \"%s\"\n", hash)
	}
	return nil
}
