package custodyd

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/certusone/wormhole/custody/pkg/common"
	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"
)

var KeygenCmd = &cobra.Command{
	Use:   "keygen [KEYFILE]",
	Short: "Create an ed25519 signing key at the specified path, in solana-keygen format",
	Run:   runKeygen,
	Args:  cobra.ExactArgs(1),
}

func runKeygen(cmd *cobra.Command, args []string) {
	common.LockMemory()
	common.SetRestrictiveUmask()

	log.Print("Creating new key at ", args[0])

	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		log.Fatalf("failed to generate key: %v", err)
	}

	if err := writeKeyFile(args[0], key); err != nil {
		log.Fatalf("failed to write key: %v", err)
	}
	fmt.Println(key.PublicKey())
}

// writeKeyFile stores key as a JSON array of its 64 bytes, which is what solana-keygen writes and
// solana.PrivateKeyFromSolanaKeygenFile reads. Existing files are never overwritten.
func writeKeyFile(path string, key solana.PrivateKey) error {
	raw := make([]uint16, len(key))
	for i, b := range key {
		raw[i] = uint16(b)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
