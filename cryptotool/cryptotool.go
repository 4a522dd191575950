// Copyright 2018 The Prometheus Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command cryptotool produces the aesgcm: secrets accepted in the
// snmp_ifpoller configuration file.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alecthomas/kingpin/v2"

	"github.com/prometheus/snmp_ifpoller/config"
)

func run(args []string, out io.Writer) error {
	app := kingpin.New("cryptotool", "Encrypt and decrypt snmp_ifpoller configuration secrets.")
	app.Terminate(nil)
	app.Writer(out)

	encrypt := app.Command("encrypt", "Encrypt a secret.")
	encPassphrase := encrypt.Arg("passphrase", "Passphrase the key is derived from.").Required().String()
	encData := encrypt.Arg("data", "Plaintext to encrypt.").Required().String()

	decrypt := app.Command("decrypt", "Decrypt a secret.")
	decPassphrase := decrypt.Arg("passphrase", "Passphrase the key is derived from.").Required().String()
	decData := decrypt.Arg("data", "Secret to decrypt, with or without the aesgcm: prefix.").Required().String()

	cmd, err := app.Parse(args)
	if err != nil {
		return err
	}
	switch cmd {
	case encrypt.FullCommand():
		secret, err := config.EncryptSecret(*encData, *encPassphrase)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(secret))
	case decrypt.FullCommand():
		data := *decData
		if !strings.HasPrefix(data, config.EncryptedPrefix) {
			data = config.EncryptedPrefix + data
		}
		plaintext, err := config.Secret(data).Reveal(*decPassphrase)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, plaintext)
	}
	return nil
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "cryptotool: %s\n", err)
		os.Exit(1)
	}
}
