// Command genpassword prints the deletion secret that matches an admin
// password: its client digest, which is what ADMIN_PASSWORD holders send, and
// the stored PBKDF2 form of that digest.
package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/kaede/services/comments/internal/credential"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:          "genpassword",
		Short:        "Derive the admin deletion secret from a password",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("password") {
				fmt.Fprint(cmd.OutOrStdout(), "Please enter your new admin password: ")
				line, err := readLine(cmd.InOrStdin())
				if err != nil {
					return err
				}
				password = line
			}
			return generate(cmd.OutOrStdout(), credential.Hasher{}, password)
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "admin password (prompted when omitted)")
	return cmd
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read password: %w", err)
	}
	return line, nil
}

func generate(out io.Writer, h credential.Hasher, password string) error {
	password = strings.TrimSpace(password)
	if password == "" {
		return errors.New("password must not be empty")
	}
	digest := credential.ClientDigest(password)
	stored, err := h.Hash(digest)
	if err != nil {
		return err
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Password you have entered:")
	fmt.Fprintln(out, password)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Client digest (send as the deletion password):")
	fmt.Fprintln(out, digest)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Your password hashed:")
	fmt.Fprintln(out, stored)
	return nil
}
