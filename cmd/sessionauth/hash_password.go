// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bufio"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/sessionauth/internal/auth"
)

// NewHashPasswordCmd creates the hash-password subcommand.
func NewHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password",
		Short: "Hash a password read from stdin",
		Long: `Read one password line from stdin and print the value to store in
users.password_hash for the algorithm chosen by --password-algorithm
(default sha256).`,
		Args: cobra.NoArgs,
		RunE: runHashPassword,
	}
}

func runHashPassword(cmd *cobra.Command, _ []string) error {
	algorithm, err := cmd.Flags().GetString("password-algorithm")
	if err != nil {
		return oops.Code("CONFIG_INVALID").Wrap(err)
	}
	if algorithm == "" {
		algorithm = auth.AlgorithmSHA256
	}

	hasher, err := auth.NewPasswordHasher(algorithm)
	if err != nil {
		return err
	}

	reader := bufio.NewReader(cmd.InOrStdin())
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return oops.Code("PASSWORD_READ_FAILED").Wrap(err)
	}
	password := strings.TrimRight(line, "\r\n")

	hash, err := hasher.Hash(password)
	if err != nil {
		return err
	}
	cmd.Println(hash)
	return nil
}
