package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vilaca/pr-dashboard/internal/service"
)

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear the persisted collection and sync checkpoints",
	Long: `Clear removes the stored pull requests and every provider's sync
checkpoint. The next sync run starts from scratch. Credentials, the
Bitbucket whitelist and reviewer lists are kept.`,
	RunE: func(cmd *cobra.Command, args []string) error {
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

		if err := service.NewSyncer(store, log).Reset(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("collection and checkpoints cleared")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(clearCmd)
}
