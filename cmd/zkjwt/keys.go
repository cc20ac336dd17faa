package main

import (
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/zkjwt/go-zkjwt-auth/types"
)

// keyFile is the output of keygen. Pubkey, salt and expiry are the values
// prove takes.
type keyFile struct {
	PrivateKey hexutil.Bytes `json:"private_key"`
	Pubkey     string        `json:"pubkey"`
	Salt       string        `json:"salt"`
	Expiry     string        `json:"expiry"`
}

func newKeygenCmd() *cobra.Command {
	var (
		ttl time.Duration
		out string
	)
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an ephemeral key",
		Long:  `Generate a BabyJubJub ephemeral key with a fresh salt. The private key signs messages; the pubkey, salt and expiry go into the token nonce.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := types.GenerateEphemeralKey(time.Now().Add(ttl))
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(keyFile{
				PrivateKey: key.PrivateKey[:],
				Pubkey:     key.PublicKey.String(),
				Salt:       key.Salt.String(),
				Expiry:     key.Expiry.UTC().Format(time.RFC3339Nano),
			}, "", "  ")
			if err != nil {
				return errors.WithStack(err)
			}
			data = append(data, '\n')
			if out == "" {
				_, err = cmd.OutOrStdout().Write(data)
				return errors.WithStack(err)
			}
			return errors.Wrapf(os.WriteFile(out, data, 0o600), "write %s", out)
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Time until the key expires")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Write the key to this file instead of stdout")
	return cmd
}

func newSignCmd() *cobra.Command {
	var (
		keyPath  string
		msg      types.SignedMessage
		internal bool
	)
	cmd := &cobra.Command{
		Use:     "sign",
		Short:   "Sign a message with an ephemeral key",
		Long:    `Sign a message for POST /v1/messages with a key written by keygen.`,
		Example: `  zkjwt sign --key-file key.json --group example.com --text "hello"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := readKey(keyPath)
			if err != nil {
				return err
			}
			msg.Internal = internal
			signed, err := key.SignMessage(msg)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return errors.WithStack(enc.Encode(signed))
		},
	}
	cmd.Flags().StringVarP(&keyPath, "key-file", "k", "", "Key file written by keygen")
	cmd.Flags().StringVar(&msg.AnonGroupID, "group", "", "Group (domain) the message is posted to")
	cmd.Flags().StringVar(&msg.Text, "text", "", "Message text")
	cmd.Flags().BoolVar(&internal, "internal", false, "Only visible to members of the group")
	_ = cmd.MarkFlagRequired("key-file")
	_ = cmd.MarkFlagRequired("text")
	return cmd
}

func readKey(path string) (*types.EphemeralKeyPair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	var kf keyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, errors.Wrapf(err, "decode %s", path)
	}
	eph, err := types.ParseEphemeralKey(kf.Pubkey, kf.Salt, kf.Expiry)
	if err != nil {
		return nil, err
	}
	key := &types.EphemeralKeyPair{EphemeralKey: eph}
	if len(kf.PrivateKey) != len(key.PrivateKey) {
		return nil, errors.Errorf("%s: private key has %d bytes", path, len(kf.PrivateKey))
	}
	copy(key.PrivateKey[:], kf.PrivateKey)

	pub, err := types.EphemeralPubkey(key.PrivateKey.Public())
	if err != nil {
		return nil, err
	}
	if pub.Cmp(eph.PublicKey) != 0 {
		return nil, errors.Errorf("%s: pubkey does not belong to the private key", path)
	}
	return key, nil
}
