package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/ideaforge/internal/server"
)

var tokenSubject string

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for the API",
	Long:  `Signs a token with the configured JWT secret. Automation clients send it as "Authorization: Bearer <token>" on submit, resume and cancel.`,
	RunE:  runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "automation", "Subject the token is issued to")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.JWT.Enabled() {
		return errors.New("jwt.secret (or JWT_SECRET) must be set to issue tokens")
	}

	token, err := server.NewJWTService(&cfg.JWT).GenerateToken(tokenSubject)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
	return err
}
