package custodyd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/certusone/wormhole/custody/pkg/config"
	"github.com/certusone/wormhole/custody/pkg/instruction"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
)

var (
	clientAPIURL  *string
	clientKeyFile *string
	clientMint    *string
	clientTimeout *time.Duration

	initDestinationChainID *uint64
	initDestinationBridge  *string
	initRelayer            *string

	lockAmount      *uint64
	lockDestination *string

	unlockSrcChainID *uint64
	unlockNonce      *uint64
	unlockAmount     *uint64
	unlockRecipient  *string

	airdropOwner  *string
	airdropAmount *uint64
)

func init() {
	clientAPIURL = ClientCmd.PersistentFlags().String("api", "http://localhost:8080", "Base URL of the custodyd API")
	clientKeyFile = ClientCmd.PersistentFlags().String("key", "", "Signing key in solana-keygen format")
	clientMint = ClientCmd.PersistentFlags().String("mint", "", "Token mint selecting the bridge")
	clientTimeout = ClientCmd.PersistentFlags().Duration("timeout", 30*time.Second, "Request timeout including retries")

	initDestinationChainID = initializeCmd.Flags().Uint64("destinationChainId", 0, "EVM chain ID of the destination bridge")
	initDestinationBridge = initializeCmd.Flags().String("destinationBridge", "", "Destination bridge contract address (0x...)")
	initRelayer = initializeCmd.Flags().String("relayer", "", "Public key of the only account allowed to unlock")

	lockAmount = lockCmd.Flags().Uint64("amount", 0, "Amount to lock")
	lockDestination = lockCmd.Flags().String("destinationAddress", "", "Recipient on the destination chain (0x...)")

	unlockSrcChainID = unlockCmd.Flags().Uint64("srcChainId", 0, "Source chain ID of the inbound message")
	unlockNonce = unlockCmd.Flags().Uint64("nonce", 0, "Source chain nonce of the inbound message")
	unlockAmount = unlockCmd.Flags().Uint64("amount", 0, "Amount to release")
	unlockRecipient = unlockCmd.Flags().String("recipient", "", "Owner of the token account receiving the release")

	airdropOwner = airdropCmd.Flags().String("owner", "", "Owner of the token account to fund")
	airdropAmount = airdropCmd.Flags().Uint64("amount", 0, "Amount to mint")

	ClientCmd.AddCommand(initializeCmd, lockCmd, unlockCmd, pauseCmd, resumeCmd, airdropCmd, showCmd)
}

var ClientCmd = &cobra.Command{
	Use:   "client",
	Short: "Sign and submit bridge instructions to a custodyd node",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return config.InitFileConfig(cmd, config.Options{FilePath: ConfigFile, EnvPrefix: EnvPrefix})
	},
}

var initializeCmd = &cobra.Command{
	Use:   "initialize",
	Short: "Create the bridge for --mint with the signer as admin",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		relayer := mustPublicKey("relayer", *initRelayer)
		data, err := instruction.Encode(instruction.Initialize, &instruction.InitializeArgs{
			DestinationChainID: *initDestinationChainID,
			DestinationBridge:  mustEvmAddress("destinationBridge", *initDestinationBridge),
			Relayer:            relayer,
		})
		if err != nil {
			log.Fatalf("failed to encode instruction: %v", err)
		}
		submit(cmd.Context(), data, solana.PublicKey{})
	},
}

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Lock tokens from the signer's account into the vault",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		data, err := instruction.Encode(instruction.LockTokens, &instruction.LockTokensArgs{
			Amount:             *lockAmount,
			DestinationAddress: mustEvmAddress("destinationAddress", *lockDestination),
		})
		if err != nil {
			log.Fatalf("failed to encode instruction: %v", err)
		}
		submit(cmd.Context(), data, solana.PublicKey{})
	},
}

var unlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Release tokens from the vault for an inbound message (relayer only)",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		recipient := mustPublicKey("recipient", *unlockRecipient)
		data, err := instruction.Encode(instruction.UnlockFromEvm, &instruction.UnlockFromEvmArgs{
			SrcChainID: *unlockSrcChainID,
			Nonce:      *unlockNonce,
			Amount:     *unlockAmount,
		})
		if err != nil {
			log.Fatalf("failed to encode instruction: %v", err)
		}
		submit(cmd.Context(), data, recipient)
	},
}

var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause the bridge (admin only)",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		data, err := instruction.Encode(instruction.PauseBridge, nil)
		if err != nil {
			log.Fatalf("failed to encode instruction: %v", err)
		}
		submit(cmd.Context(), data, solana.PublicKey{})
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume a paused bridge (admin only)",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		data, err := instruction.Encode(instruction.ResumeBridge, nil)
		if err != nil {
			log.Fatalf("failed to encode instruction: %v", err)
		}
		submit(cmd.Context(), data, solana.PublicKey{})
	},
}

var airdropCmd = &cobra.Command{
	Use:   "airdrop",
	Short: "Mint test tokens on a devnet node",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		mint := mustPublicKey("mint", *clientMint)
		owner := mustPublicKey("owner", *airdropOwner)
		body, err := json.Marshal(map[string]interface{}{
			"mint":   mint.String(),
			"owner":  owner.String(),
			"amount": *airdropAmount,
		})
		if err != nil {
			log.Fatalf("failed to encode request: %v", err)
		}
		printResponse(doRequest(cmd.Context(), http.MethodPost, "/v1/devnet/airdrop", body))
	},
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the bridge config and custody audit for --mint",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		mint := mustPublicKey("mint", *clientMint)
		printResponse(doRequest(cmd.Context(), http.MethodGet, "/v1/bridges/"+mint.String(), nil))
		printResponse(doRequest(cmd.Context(), http.MethodGet, "/v1/bridges/"+mint.String()+"/audit", nil))
	},
}

func mustPublicKey(name, value string) solana.PublicKey {
	key, err := solana.PublicKeyFromBase58(value)
	if err != nil {
		log.Fatalf("invalid --%s %q: %v", name, value, err)
	}
	return key
}

func mustEvmAddress(name, value string) [20]byte {
	if !ethcommon.IsHexAddress(value) {
		log.Fatalf("invalid --%s %q: not an EVM address", name, value)
	}
	return ethcommon.HexToAddress(value)
}

func loadSigner() solana.PrivateKey {
	if *clientKeyFile == "" {
		log.Fatal("--key is required")
	}
	key, err := solana.PrivateKeyFromSolanaKeygenFile(*clientKeyFile)
	if err != nil {
		log.Fatalf("failed to load key: %v", err)
	}
	return key
}

// signTransaction wraps data into a transaction for mint stamped with now and signs it with key.
func signTransaction(key solana.PrivateKey, mint, recipient solana.PublicKey, data []byte, now time.Time) ([]byte, error) {
	signed, err := instruction.NewTransaction(key.PublicKey(), mint, recipient, data, now).Sign(key)
	if err != nil {
		return nil, err
	}
	message, signature := signed.Encode()
	return json.Marshal(map[string]string{
		"transaction": message,
		"signature":   signature,
	})
}

func submit(ctx context.Context, data []byte, recipient solana.PublicKey) {
	key := loadSigner()
	mint := mustPublicKey("mint", *clientMint)
	body, err := signTransaction(key, mint, recipient, data, time.Now())
	if err != nil {
		log.Fatalf("failed to sign transaction: %v", err)
	}
	printResponse(doRequest(ctx, http.MethodPost, "/v1/transactions", body))
}

type response struct {
	status int
	body   []byte
}

// doRequest performs a single API call. Transport failures and overload responses are retried with backoff
// until --timeout. A resubmitted transaction that already committed fails with DuplicateTransaction.
func doRequest(ctx context.Context, method, path string, body []byte) *response {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, *clientTimeout)
	defer cancel()

	var resp *response
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, method, *clientAPIURL+path, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		res, err := http.DefaultClient.Do(req)
		if err != nil {
			return err
		}
		defer res.Body.Close()
		b, err := io.ReadAll(res.Body)
		if err != nil {
			return err
		}
		resp = &response{status: res.StatusCode, body: b}
		if retryable(res.StatusCode) {
			return fmt.Errorf("%s %s: %s", method, path, res.Status)
		}
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(backoff.NewExponentialBackOff(), ctx)); err != nil && resp == nil {
		log.Fatalf("request failed: %v", err)
	}
	return resp
}

func retryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func printResponse(resp *response) {
	var out bytes.Buffer
	if err := json.Indent(&out, resp.body, "", "  "); err != nil {
		out.Reset()
		out.Write(resp.body)
	}
	fmt.Println(out.String())
	if resp.status >= 300 {
		log.Fatalf("request failed with status %d: %s", resp.status, errorName(resp.body))
	}
}

// errorName extracts the bridge error name from an API error body, e.g. "BridgePaused".
func errorName(body []byte) string {
	if name := gjson.GetBytes(body, "error.name"); name.Exists() {
		return name.String()
	}
	return "unknown error"
}
