package main

// Seals credentials read from stdin as JSON into the envelope accepted by the
// API, or opens an envelope with -d.

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/alexflint/go-arg"
	"github.com/sirupsen/logrus"

	"github.com/denysvitali/comprobantes-backend/pkg/cli"
	"github.com/denysvitali/comprobantes-backend/pkg/crypt"
	"github.com/denysvitali/comprobantes-backend/pkg/models"
)

var args struct {
	Decrypt    bool   `arg:"-d,--decrypt" help:"Open an envelope instead of sealing credentials"`
	Passphrase string `arg:"env:PASSPHRASE" help:"May be keychain:<element>"`
}

var log = logrus.StandardLogger()

func main() {
	arg.MustParse(&args)
	if err := cli.FillKeychainValues(&args); err != nil {
		log.Fatalf("fill keychain values: %v", err)
	}

	if args.Passphrase == "" {
		log.Fatalf("passphrase cannot be empty")
	}

	c, err := crypt.New(args.Passphrase)
	if err != nil {
		log.Fatalf("unable to create crypt: %v", err)
	}

	input, err := io.ReadAll(os.Stdin)
	if err != nil {
		log.Fatalf("unable to read stdin: %v", err)
	}

	if args.Decrypt {
		creds, err := c.Open(string(input))
		if err != nil {
			log.Fatalf("unable to decrypt: %v", err)
		}
		if err := json.NewEncoder(os.Stdout).Encode(creds); err != nil {
			log.Fatalf("unable to encode: %v", err)
		}
		return
	}

	var creds models.Credentials
	if err := json.Unmarshal(input, &creds); err != nil {
		log.Fatalf("unable to decode credentials: %v", err)
	}
	envelope, err := c.Seal(creds)
	if err != nil {
		log.Fatalf("unable to encrypt: %v", err)
	}
	fmt.Println(envelope)
}
