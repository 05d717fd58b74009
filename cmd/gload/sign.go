package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bamsammich/gload/internal/secure"
)

// signKeyEnv supplies the signing seed when --key is not given.
const signKeyEnv = "GLOAD_SIGN_KEY"

func newSignCmd(g *globalFlags) *cobra.Command {
	var (
		keyHex   string
		outPath  string
		generate bool
	)
	cmd := &cobra.Command{
		Use:   "sign [--key SEED] [-o OUT] FILE",
		Short: "Append a signature trailer for --securecheck loads",
		Long: `Sign appends the trailer checked by "load --securecheck": an 8-byte magic
followed by an ed25519 signature over the BLAKE3 digest of FILE.

The key is the hex-encoded 32-byte ed25519 seed from --key or $` + signKeyEnv + `.
With --generate a new seed and its public key are printed instead; put the
public key in [transfer].public_key.`,
		Args: func(cmd *cobra.Command, argv []string) error {
			if generate {
				return cobra.NoArgs(cmd, argv)
			}
			return cobra.ExactArgs(1)(cmd, argv)
		},
		RunE: func(_ *cobra.Command, argv []string) error {
			if generate {
				pub, priv, err := ed25519.GenerateKey(rand.Reader)
				if err != nil {
					return fmt.Errorf("generate key: %w", err)
				}
				fmt.Fprintf(os.Stdout, "seed       %s\npublic_key %s\n", hex.EncodeToString(priv.Seed()), hex.EncodeToString(pub))
				return nil
			}

			if keyHex == "" {
				keyHex = os.Getenv(signKeyEnv)
			}
			if keyHex == "" {
				return &exitError{code: 2, err: errors.New("no signing key: use --key or $" + signKeyEnv)}
			}
			key, err := secure.ParsePrivateKey(keyHex)
			if err != nil {
				return &exitError{code: 2, err: err}
			}

			in := argv[0]
			body, err := os.ReadFile(in)
			if err != nil {
				return &exitError{code: 1, err: err}
			}
			if outPath == "" {
				outPath = in + ".signed"
			}
			if err := os.WriteFile(outPath, secure.Sign(body, key), 0o644); err != nil { //nolint:gosec // G306: images are not secret
				return &exitError{code: 1, err: err}
			}
			fmt.Fprintf(stdout(g), "%s  blake3 %x\n", outPath, secure.Digest(body))
			return nil
		},
	}
	cmd.Flags().StringVar(&keyHex, "key", "", "hex-encoded ed25519 seed")
	cmd.Flags().StringVarP(&outPath, "output", "o", "", "output file (default: FILE.signed)")
	cmd.Flags().BoolVar(&generate, "generate", false, "generate a new key pair and exit")
	return cmd
}
