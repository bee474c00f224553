package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/formthefog/formation-sub001/pkg/identity"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a node identity and seal it to operator_key_path",
	Long: `keygen generates a fresh secp256k1 key pair and seals it under a
passphrase-derived AES-256-GCM key at the given path, the same envelope
pkg/node.New's OpenOrGenerate reads on first boot.`,
	RunE: runKeygen,
}

func init() {
	keygenCmd.Flags().StringP("out", "o", "", "Path to write the sealed operator key (required)")
	keygenCmd.Flags().String("passphrase", "", "Passphrase to encrypt the key with (falls back to FORMATION_OPERATOR_PASSPHRASE, then a built-in default)")
	_ = keygenCmd.MarkFlagRequired("out")
}

func runKeygen(cmd *cobra.Command, args []string) error {
	out, _ := cmd.Flags().GetString("out")
	passphrase, _ := cmd.Flags().GetString("passphrase")
	if passphrase == "" {
		passphrase = os.Getenv("FORMATION_OPERATOR_PASSPHRASE")
	}
	if passphrase == "" {
		passphrase = "formation-default-operator-passphrase"
	}

	if _, err := os.Stat(out); err == nil {
		return fmt.Errorf("%s already exists; remove it first if you want to rotate identity", out)
	}

	ks, err := identity.NewKeystoreFromPassphrase(passphrase)
	if err != nil {
		return fmt.Errorf("build keystore: %w", err)
	}
	kp, err := identity.GenerateKeyPair()
	if err != nil {
		return fmt.Errorf("generate key pair: %w", err)
	}
	if err := ks.Seal(kp, out); err != nil {
		return fmt.Errorf("seal key pair: %w", err)
	}

	fmt.Printf("Generated node identity %s\nSealed to %s\n", kp.Address, out)
	return nil
}
