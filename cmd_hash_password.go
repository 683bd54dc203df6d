package main

import (
	"bufio"
	"fmt"
	"strings"

	"pairsurvey/internal/utils"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password",
	Short: "Print a bcrypt hash for admin.password_hash",
	Long: `Read the admin password from standard input and print its bcrypt hash, to be
placed in admin.password_hash or PAIRSURVEY_ADMIN_PASSWORD_HASH.`,
	Args: cobra.NoArgs,
	RunE: runHashPassword,
}

func runHashPassword(cmd *cobra.Command, args []string) error {
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return fmt.Errorf("read password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if err := utils.CheckAdminPassword(password); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(hash))
	return nil
}
