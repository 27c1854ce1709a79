package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	jwttoken "certverify/internal/jwt_token"
	"certverify/internal/platform/config"
)

type globalFlags struct {
	server     string
	configPath string
	verifier   string
	output     string
	timeout    time.Duration
}

type commandContext struct {
	flags *globalFlags
	cfg   *config.Config
}

func (c *commandContext) client() (*apiClient, error) {
	client := newAPIClient(c.flags.server, c.flags.timeout)
	verifier := strings.TrimSpace(c.flags.verifier)
	if verifier == "" {
		return client, nil
	}
	if key := c.cfg.Auth.JWTSigningKey; key != "" {
		token, err := jwttoken.NewJWTService(key, c.cfg.Auth.Issuer, c.cfg.Auth.Audience).
			GenerateVerifierToken(verifier, verifier, 15*time.Minute)
		if err != nil {
			return nil, fmt.Errorf("sign verifier token: %w", err)
		}
		client.token = token
		return client, nil
	}
	client.verifier = verifier
	return client, nil
}

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}
	ctx := &commandContext{flags: flags}

	rootCmd := &cobra.Command{
		Use:           "verifyctl",
		Short:         "Command line client for the certverify API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flags.configPath)
			if err != nil {
				return err
			}
			ctx.cfg = cfg
			switch flags.output {
			case outputAuto, outputTable, outputJSON:
			default:
				return fmt.Errorf("unknown output format %q", flags.output)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	server := os.Getenv("CERTVERIFY_URL")
	if server == "" {
		server = "http://localhost:8080"
	}
	rootCmd.PersistentFlags().StringVar(&flags.server, "server", server, "certverify base URL")
	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&flags.verifier, "verifier", os.Getenv("CERTVERIFY_VERIFIER"), "Verifier identity for queue commands")
	rootCmd.PersistentFlags().StringVarP(&flags.output, "output", "o", outputAuto, "Output format: auto, table or json")
	rootCmd.PersistentFlags().DurationVar(&flags.timeout, "timeout", 30*time.Second, "Per-request timeout")

	rootCmd.AddCommand(newUploadCommand(ctx))
	rootCmd.AddCommand(newStatusCommand(ctx))
	rootCmd.AddCommand(newWaitCommand(ctx))
	rootCmd.AddCommand(newMatchCommand(ctx))
	rootCmd.AddCommand(newVerificationCommand(ctx))
	rootCmd.AddCommand(newQueueCommand(ctx))

	return rootCmd
}
