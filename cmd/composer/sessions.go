package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/datakettle/dp-composer/internal/runtime"
	"github.com/datakettle/dp-composer/internal/store"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect and manage stored sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored sessions",
	RunE:  runSessionsList,
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "Delete a session's stored record",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsDelete,
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)
}

// openRegistry opens the configured store without building a full composer;
// the session commands need no provider credentials.
func openRegistry() (*store.Registry, func() error, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	st, err := runtime.OpenStore(cfg.Storage)
	if err != nil {
		return nil, nil, err
	}
	return store.NewRegistry(st), st.Close, nil
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	registry, closeStore, err := openRegistry()
	if err != nil {
		return err
	}
	defer closeStore()

	infos, err := registry.Sessions(context.Background())
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Println("no stored sessions")
		return nil
	}

	for _, info := range infos {
		line := fmt.Sprintf("%s  %s", info.SessionID, info.LastUpdated.Format("2006-01-02 15:04"))
		if info.Summary != "" {
			line += "  " + info.Summary
		}
		fmt.Println(line)
	}
	return nil
}

func runSessionsDelete(cmd *cobra.Command, args []string) error {
	registry, closeStore, err := openRegistry()
	if err != nil {
		return err
	}
	defer closeStore()

	id := args[0]
	deleted, err := registry.Delete(context.Background(), id)
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("session %q not found", id)
	}
	fmt.Printf("deleted session %s\n", id)
	return nil
}
