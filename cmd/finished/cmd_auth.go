package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"finished/api/internal/finished"
)

var (
	authEmail    string
	authPassword string
	authName     string
)

var stdin = bufio.NewReader(os.Stdin)

// prompt returns value when set, otherwise reads one line from stdin.
func prompt(label, value string) (string, error) {
	if value != "" {
		return value, nil
	}
	fmt.Fprintf(os.Stderr, "%s: ", label)
	line, err := stdin.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read %s: %w", strings.ToLower(label), err)
	}
	return strings.TrimSpace(line), nil
}

func credentials() (string, string, error) {
	email, err := prompt("Email", authEmail)
	if err != nil {
		return "", "", err
	}
	password, err := prompt("Password", authPassword)
	if err != nil {
		return "", "", err
	}
	return email, password, nil
}

// switchTo moves the list to id and reports how it went.
func switchTo(cmd *cobra.Command, id finished.Identity) error {
	if err := current.service.SetIdentity(cmd.Context(), id); err != nil {
		return fmt.Errorf("signed in, but the local list was kept: %w", err)
	}
	if user, ok := id.(finished.Authenticated); ok {
		success(fmt.Sprintf("signed in as %s (%d items)", user.DisplayName, len(current.service.List())))
	}
	return nil
}

var signupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create an account and move the local list into it",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := current.requireServer(); err != nil {
			return err
		}
		email, password, err := credentials()
		if err != nil {
			return err
		}
		name, err := prompt("Display name", authName)
		if err != nil {
			return err
		}
		id, err := current.auth.SignUp(cmd.Context(), email, password, name)
		if err != nil {
			return err
		}
		return switchTo(cmd, id)
	},
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and move the local list into the account",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := current.requireServer(); err != nil {
			return err
		}
		email, password, err := credentials()
		if err != nil {
			return err
		}
		id, err := current.auth.SignIn(cmd.Context(), email, password)
		if err != nil {
			return err
		}
		return switchTo(cmd, id)
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and go back to the list kept on this machine",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := current.requireServer(); err != nil {
			return err
		}
		if err := current.auth.SignOut(cmd.Context()); err != nil {
			return err
		}
		if err := current.service.SetIdentity(cmd.Context(), finished.Anonymous{}); err != nil {
			return err
		}
		success("signed out")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show who the list belongs to",
	RunE: func(*cobra.Command, []string) error {
		switch id := current.service.Identity().(type) {
		case finished.Authenticated:
			fmt.Printf("%s %s\n", id.DisplayName, mutedStyle.Render("("+id.ID+")"))
		default:
			fmt.Println(mutedStyle.Render("not signed in; the list is kept on this machine"))
		}
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{signupCmd, loginCmd} {
		c.Flags().StringVar(&authEmail, "email", "", "account email")
		c.Flags().StringVar(&authPassword, "password", "", "account password")
	}
	signupCmd.Flags().StringVar(&authName, "name", "", "display name")
	rootCmd.AddCommand(signupCmd, loginCmd, logoutCmd, whoamiCmd)
}
