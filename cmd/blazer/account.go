package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func accountCmd(configDir *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage player accounts",
	}
	cmd.AddCommand(accountAddCmd(configDir), accountListCmd(configDir))
	return cmd
}

func accountAddCmd(configDir *string) *cobra.Command {
	var email, persona, password string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configDir)
			if err != nil {
				return err
			}
			ctx := context.Background()
			database, store, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer database.Close()

			account, err := store.CreateAccount(ctx, email, persona, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created account %d (%s, %s)\n", account.ID, account.Email, account.Persona)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "login email")
	cmd.Flags().StringVar(&persona, "persona", "", "display name")
	cmd.Flags().StringVar(&password, "password", "", "login password")
	for _, f := range []string{"email", "persona", "password"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func accountListCmd(configDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configDir)
			if err != nil {
				return err
			}
			ctx := context.Background()
			database, store, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer database.Close()

			accounts, err := store.ListAccounts(ctx)
			if err != nil {
				return err
			}

			tw := tablewriter.NewWriter(cmd.OutOrStdout())
			tw.SetHeader([]string{"ID", "Email", "Persona", "Created"})
			tw.SetBorder(true)
			for _, a := range accounts {
				tw.Append([]string{
					strconv.FormatUint(uint64(a.ID), 10),
					a.Email,
					a.Persona,
					a.CreatedAt.Format(time.DateTime),
				})
			}
			tw.Render()
			return nil
		},
	}
}
