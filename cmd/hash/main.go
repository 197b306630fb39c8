// Package main is a utility for generating bcrypt hashes of staff passwords.
// Only hashes are stored in users.password_hash, so this tool is used when
// seeding the first Super Admin or resetting a password by hand without
// running the full server. The password is read from the first argument or,
// when absent, from one line of stdin.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/netimobiliaria/admin-core/internal/auth"
)

func main() {
	password, err := readPassword()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(hash)
}

func readPassword() (string, error) {
	if len(os.Args) > 1 {
		return os.Args[1], nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("usage: hash <password> (or pipe it on stdin)")
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", fmt.Errorf("password must not be empty")
	}
	return password, nil
}
