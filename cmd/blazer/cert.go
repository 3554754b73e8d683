package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/energizer-project/blazer/internal/util"
)

func certCmd(configDir *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cert",
		Short: "Manage listener TLS material",
	}
	cmd.AddCommand(certGenerateCmd(configDir))
	return cmd
}

// certGenerateCmd writes a self-signed localhost pair for development. It
// writes to the configured paths unless --cert and --key are given.
func certGenerateCmd(configDir *string) *cobra.Command {
	var certFile, keyFile string
	var force bool

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a self-signed development certificate",
		RunE: func(cmd *cobra.Command, args []string) error {
			if certFile == "" || keyFile == "" {
				cfg, err := readConfig(*configDir)
				if err != nil {
					return err
				}
				srv := cfg.GetServer()
				if certFile == "" {
					certFile = srv.TLSCertFile
				}
				if keyFile == "" {
					keyFile = srv.TLSKeyFile
				}
			}
			if certFile == "" || keyFile == "" {
				return fmt.Errorf("no certificate or key path configured, pass --cert and --key")
			}
			if !force && (util.FileExists(certFile) || util.FileExists(keyFile)) {
				return fmt.Errorf("%s or %s already exists, pass --force to overwrite", certFile, keyFile)
			}

			if err := util.GenerateSelfSignedCert(certFile, keyFile); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s and %s\n", certFile, keyFile)
			return nil
		},
	}
	cmd.Flags().StringVar(&certFile, "cert", "", "certificate path (default from config)")
	cmd.Flags().StringVar(&keyFile, "key", "", "private key path (default from config)")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing files")
	return cmd
}
