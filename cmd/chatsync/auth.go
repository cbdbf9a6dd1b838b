package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/npezzotti/chatsync/internal/session"
)

// readSecret returns value, or a line read from stdin when value is empty.
func readSecret(prompt, value string) (string, error) {
	if value != "" {
		return value, nil
	}
	fmt.Fprint(os.Stderr, prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", errors.Wrap(err, "read password")
	}
	return strings.TrimSpace(line), nil
}

func (a *app) loginCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and persist the credential",
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := readSecret("password: ", password)
			if err != nil {
				return err
			}
			token, err := a.client.Login(cmd.Context(), email, pw)
			if err != nil {
				return errors.Wrap(err, "login")
			}
			ident, err := a.session.Authenticate(token)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s (%d)\n", ident.Username, ident.Id)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password, read from stdin when empty")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (a *app) registerCmd() *cobra.Command {
	var username, email, password string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := readSecret("password: ", password)
			if err != nil {
				return err
			}
			if err := a.client.Register(cmd.Context(), username, email, pw); err != nil {
				return errors.Wrap(err, "register")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registered %s, run `chatsync login --email %s` to sign in\n", username, email)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "account username")
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password, read from stdin when empty")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (a *app) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the persisted credential",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.session.Logout()
		},
	}
}

func (a *app) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Print the identity of the persisted credential",
		RunE: func(cmd *cobra.Command, args []string) error {
			ident, err := a.session.Restore()
			if errors.Is(err, session.ErrNoCredential) {
				fmt.Fprintln(cmd.OutOrStdout(), "not logged in")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%d) %s\n", ident.Username, ident.Id, ident.Status)
			return nil
		},
	}
}
