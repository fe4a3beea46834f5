package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"pushbridge/internal/credentials"
)

func encryptCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "encrypt <value>",
		Short: "Encrypt a value with the system secret (for seeding enc_ attributes)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSecret(cmd, flags, func(secret string) string {
				return credentials.Encrypt(secret, args[0])
			})
		},
	}
}

func decryptCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "decrypt <value>",
		Short: "Decrypt a stored enc_ value with the system secret",
		Long:  "Decrypt a stored enc_ value. A double-quoted Go string literal (as printed by encrypt) is unquoted first.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value := args[0]
			if strings.HasPrefix(value, `"`) {
				unq, err := strconv.Unquote(value)
				if err != nil {
					return fmt.Errorf("decrypt: %w", err)
				}
				value = unq
			}
			return withSecret(cmd, flags, func(secret string) string {
				return credentials.Decrypt(secret, value)
			})
		},
	}
}

// withSecret prints fn(secret) quoted, since XOR output may hold control bytes.
func withSecret(cmd *cobra.Command, flags *rootFlags, fn func(secret string) string) error {
	a, err := openApp(cmd.Context(), flags)
	if err != nil {
		return err
	}
	defer a.Close()

	secret, err := a.SystemSecret(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%q\n", fn(secret))
	return nil
}
