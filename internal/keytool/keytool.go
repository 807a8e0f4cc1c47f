// Package keytool implements the operator commands around the master key:
// generating a new key, checking that a key opens a stored wrapped-key
// record, and minting development access tokens.
package keytool

import (
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophtalk/internal/common"
	"github.com/dmitrijs2005/gophtalk/internal/cryptox"
	"github.com/dmitrijs2005/gophtalk/internal/keyvault"
	"github.com/dmitrijs2005/gophtalk/internal/server/auth"
	"github.com/dmitrijs2005/gophtalk/internal/server/models"
	"golang.org/x/term"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

const usage = `usage: keytool <command> [flags]

commands:
  generate               print a new random master key (hex)
  check -record <rec>    prompt for a master key and verify it opens rec
  token -user <id> -org <id> [-secret <key>] [-ttl <duration>]
                         mint an access token`

// ErrUsage is returned for an unknown command or bad flags.
var ErrUsage = errors.New("invalid usage")

// Run executes the command named by args[0], writing results to out.
func Run(args []string, out io.Writer) error {
	if len(args) == 0 {
		fmt.Fprintln(out, usage)
		return ErrUsage
	}

	switch args[0] {
	case "generate":
		return generate(out)
	case "check":
		return check(args[1:], out)
	case "token":
		return token(args[1:], out)
	case "help", "-h", "--help":
		fmt.Fprintln(out, usage)
		return nil
	default:
		fmt.Fprintln(out, usage)
		return fmt.Errorf("%w: unknown command %q", ErrUsage, args[0])
	}
}

func generate(out io.Writer) error {
	key := cryptox.GenerateKey()
	defer common.WipeByteArray(key)

	_, err := fmt.Fprintln(out, hex.EncodeToString(key))
	return err
}

func check(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(out)
	record := fs.String("record", "", "wrapped key record (iv:authTag:wrappedKey)")
	alg := fs.String("alg", string(cryptox.AlgorithmAESGCM), "cipher algorithm")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if *record == "" {
		return fmt.Errorf("%w: -record is required", ErrUsage)
	}

	algorithm, err := cryptox.ParseAlgorithm(*alg)
	if err != nil {
		return err
	}

	fmt.Fprint(out, "Enter master key: ")
	input, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(out)
	if err != nil {
		return fmt.Errorf("read master key: %w", err)
	}
	defer common.WipeByteArray(input)

	vault, err := keyvault.NewFromHex(algorithm, strings.TrimSpace(string(input)))
	if err != nil {
		return err
	}

	dataKey, err := vault.UnwrapString(*record)
	if err != nil {
		return fmt.Errorf("master key does not open record: %w", err)
	}
	common.WipeByteArray(dataKey)

	_, err = fmt.Fprintln(out, "OK")
	return err
}

func token(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(out)
	user := fs.String("user", "", "user id")
	org := fs.String("org", "", "organization id")
	secret := fs.String("secret", os.Getenv("SECRET_KEY"), "HMAC secret (defaults to $SECRET_KEY)")
	ttl := fs.Duration("ttl", 15*time.Minute, "token validity")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if *user == "" || *org == "" || *secret == "" {
		return fmt.Errorf("%w: -user, -org and a secret are required", ErrUsage)
	}

	tok, err := auth.GenerateToken(models.Actor{UserID: *user, OrgID: *org}, []byte(*secret), *ttl)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(out, tok)
	return err
}
