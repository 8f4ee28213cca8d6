package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/studycompanion/studycompanion/internal/repository"
	"github.com/studycompanion/studycompanion/internal/service"
)

func userCmd(a *app) *cobra.Command {
	c := &cobra.Command{
		Use:   "user",
		Short: "Manage accounts",
	}
	c.AddCommand(userCreateCmd(a))
	return c
}

func userCreateCmd(a *app) *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an account; the password is read from stdin",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.requireDatabase(); err != nil {
				return err
			}
			password, err := readSecret(cmd.InOrStdin())
			if err != nil {
				return err
			}

			repo, err := repository.New(cmd.Context(), a.dbURL)
			if err != nil {
				return err
			}
			defer repo.Close()

			// Registration never touches sessions.
			accounts := service.NewAccounts(repo, nil, nil, a.logger, nil)
			user, err := accounts.Register(cmd.Context(), email, password)
			if err != nil {
				var verr *service.ValidationError
				if errors.As(err, &verr) {
					return fmt.Errorf("%s: %s", verr.Field, verr.Message)
				}
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "created user %s (%s)\n", user.ID, user.Email)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "account email")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

// readSecret returns the first line of r without its line ending.
func readSecret(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("password must be provided on stdin")
	}
	return line, nil
}
