package cmd

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/encodeous/lattice/state"
	"github.com/spf13/cobra"
)

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Generates a new Lattice identity. Outputs the private keys to stdout, the public fingerprint to stderr.",
	RunE: func(cmd *cobra.Command, args []string) error {
		bits, _ := cmd.Flags().GetInt("bits")
		id, err := state.GenerateIdentity("key", bits)
		if err != nil {
			return err
		}
		signing, err := state.SigningPrivateKey{PrivateKey: id.SigningKey}.MarshalText()
		if err != nil {
			return err
		}
		session, err := state.SessionPrivateKey{PrivateKey: id.SessionKey}.MarshalText()
		if err != nil {
			return err
		}
		fmt.Printf("%sSessionKey=%s\n", signing, session)

		fp, err := fingerprint(id.Node())
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(os.Stderr, "Fingerprint=%s\n", fp)
		return err
	},
	GroupID: "init",
}

// fingerprint is a short digest of a node's public keys, for comparing out of band.
func fingerprint(n state.Node) (string, error) {
	signing, err := state.MarshalSigningKey(n.SigningKey)
	if err != nil {
		return "", err
	}
	session, err := state.MarshalSessionKey(n.SessionKey)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write(signing)
	h.Write(session)
	return hex.EncodeToString(h.Sum(nil)[:16]), nil
}

func init() {
	rootCmd.AddCommand(keyCmd)
	keyCmd.Flags().Int("bits", state.SigningKeyBits, "RSA signing key size")
}
