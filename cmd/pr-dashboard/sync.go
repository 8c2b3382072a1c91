package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync now and print a summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSync(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

func runSync(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	store, closeStore, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := seedStore(ctx, store, cfg); err != nil {
		return err
	}

	syncer, _ := buildServices(cfg, store, log)
	result, err := syncer.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("fetched %d pull requests, %d total in collection\n",
		result.Fetched, len(result.PullRequests))
	for _, provErr := range result.Errors {
		fmt.Printf("provider error: %s\n", provErr)
	}

	if len(result.Errors) > 0 && result.Fetched == 0 {
		return fmt.Errorf("all configured providers failed")
	}

	if result.Fetched == 0 {
		fmt.Println("nothing fetched, collection unchanged")
	}
	return nil
}
