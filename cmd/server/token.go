package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"notebookrag/internal/config"
	"notebookrag/internal/pkg/jwtutil"
)

var tokenSubject string

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print a bearer token for the API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cfg.Auth.JWTSecret == "" {
			return errors.New("auth.jwt_secret is empty; the API accepts requests without a token")
		}
		token, err := jwtutil.GenerateToken(cfg.Auth.JWTSecret, tokenSubject, time.Duration(cfg.Auth.JWTExpireMinute)*time.Minute)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "cli", "token subject")
}
