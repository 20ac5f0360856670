package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"instahelp/internal/device/hmacauth"
	"instahelp/internal/device/models"
	"instahelp/internal/envelope"
	jwttoken "instahelp/internal/jwt_token"
	id "instahelp/pkg/domain"
)

const (
	privateKeyFile = "master_private.pem"
	publicKeyFile  = "master_public.pem"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "instahelpctl",
		Short:        "Operator tooling for the instahelp server",
		SilenceUsage: true,
	}
	root.AddCommand(newKeygenCmd(), newDeviceCmd(), newTokenCmd())
	return root
}

func newKeygenCmd() *cobra.Command {
	var (
		outDir string
		bits   int
		force  bool
	)
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate the RSA master key pair that wraps record keys",
		Long: `Writes master_private.pem and master_public.pem to the output directory.
Point INSTAHELP_MASTER_KEY_PRIVATE_PATH and INSTAHELP_MASTER_KEY_PUBLIC_PATH at them.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			privPath := filepath.Join(outDir, privateKeyFile)
			pubPath := filepath.Join(outDir, publicKeyFile)
			if !force {
				for _, p := range []string{privPath, pubPath} {
					if _, err := os.Stat(p); err == nil {
						return fmt.Errorf("%s already exists, pass --force to overwrite", p)
					}
				}
			}

			key, err := envelope.GenerateMasterKey(bits)
			if err != nil {
				return err
			}
			privPEM, err := envelope.MarshalPrivateKeyPEM(key)
			if err != nil {
				return err
			}
			pubPEM, err := envelope.MarshalPublicKeyPEM(&key.PublicKey)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(outDir, 0o700); err != nil {
				return fmt.Errorf("create output directory: %w", err)
			}
			if err := os.WriteFile(privPath, privPEM, 0o600); err != nil {
				return fmt.Errorf("write private key: %w", err)
			}
			if err := os.WriteFile(pubPath, pubPEM, 0o644); err != nil {
				return fmt.Errorf("write public key: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s and %s\n", privPath, pubPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&outDir, "out-dir", ".", "directory for the PEM files")
	cmd.Flags().IntVar(&bits, "bits", 4096, "RSA modulus size")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing files")
	return cmd
}

func newDeviceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "device",
		Short: "Provision device keys and sign telemetry",
	}
	cmd.AddCommand(newProvisionCmd(), newSignCmd())
	return cmd
}

// deviceKeyFlags resolves the signing key from either an explicit hex key
// or the fleet secret plus device secret.
type deviceKeyFlags struct {
	keyHex       string
	fleetSecret  string
	deviceSecret string
	legacyFleet  bool
}

func (f *deviceKeyFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.keyHex, "key", "", "hex device key from 'device provision'")
	cmd.Flags().StringVar(&f.fleetSecret, "fleet-secret", os.Getenv("INSTAHELP_DEVICE_HMAC_SECRET"), "server fleet secret")
	cmd.Flags().StringVar(&f.deviceSecret, "device-secret", "", "secret the device was registered with")
	cmd.Flags().BoolVar(&f.legacyFleet, "fleet", false, "sign with the fleet secret directly (fleet auth mode)")
}

func (f *deviceKeyFlags) resolve(deviceID id.DeviceID) ([]byte, error) {
	switch {
	case f.keyHex != "":
		key, err := hex.DecodeString(f.keyHex)
		if err != nil {
			return nil, fmt.Errorf("decode --key: %w", err)
		}
		return key, nil
	case f.legacyFleet:
		if f.fleetSecret == "" {
			return nil, fmt.Errorf("--fleet requires --fleet-secret")
		}
		return []byte(f.fleetSecret), nil
	case f.fleetSecret != "" && f.deviceSecret != "":
		return hmacauth.ProvisionDeviceKey([]byte(f.fleetSecret), f.deviceSecret, deviceID)
	}
	return nil, fmt.Errorf("pass --key, --fleet, or --fleet-secret with --device-secret")
}

func newProvisionCmd() *cobra.Command {
	var (
		deviceID string
		keys     deviceKeyFlags
	)
	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Derive the per-device signing key to flash onto a device",
		RunE: func(cmd *cobra.Command, _ []string) error {
			did, err := id.ParseDeviceID(deviceID)
			if err != nil {
				return err
			}
			if keys.fleetSecret == "" || keys.deviceSecret == "" {
				return fmt.Errorf("--fleet-secret and --device-secret are required")
			}
			key, err := hmacauth.ProvisionDeviceKey([]byte(keys.fleetSecret), keys.deviceSecret, did)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(key))
			return nil
		},
	}
	cmd.Flags().StringVar(&deviceID, "device-id", "", "device identifier")
	cmd.Flags().StringVar(&keys.fleetSecret, "fleet-secret", os.Getenv("INSTAHELP_DEVICE_HMAC_SECRET"), "server fleet secret")
	cmd.Flags().StringVar(&keys.deviceSecret, "device-secret", "", "secret the device is registered with")
	_ = cmd.MarkFlagRequired("device-id")
	return cmd
}

func newSignCmd() *cobra.Command {
	var (
		file  string
		stamp bool
		keys  deviceKeyFlags
	)
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Sign a telemetry payload and print it ready to post",
		Long:  "Reads a JSON payload from --file or stdin. The payload's device_id selects the derived key.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				raw []byte
				err error
			)
			if file == "" || file == "-" {
				raw, err = io.ReadAll(cmd.InOrStdin())
			} else {
				raw, err = os.ReadFile(file)
			}
			if err != nil {
				return fmt.Errorf("read payload: %w", err)
			}

			p, err := models.ParsePayload(raw)
			if err != nil {
				return err
			}
			if stamp {
				p["timestamp"] = time.Now().UTC().Format(time.RFC3339)
			}
			did, err := id.ParseDeviceID(p.String("device_id"))
			if err != nil {
				return fmt.Errorf("payload device_id: %w", err)
			}
			key, err := keys.resolve(did)
			if err != nil {
				return err
			}
			sig, err := hmacauth.Sign(p, key)
			if err != nil {
				return err
			}
			p[models.SignatureField] = sig

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetEscapeHTML(false)
			return enc.Encode(p)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "payload file, - or empty for stdin")
	cmd.Flags().BoolVar(&stamp, "stamp", false, "set timestamp to now before signing")
	keys.register(cmd)
	return cmd
}

func newTokenCmd() *cobra.Command {
	var (
		userID     string
		role       string
		ttl        time.Duration
		signingKey string
		issuer     string
		audience   string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development bearer token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			uid := id.NewUserID()
			if userID != "" {
				parsed, err := id.ParseUserID(userID)
				if err != nil {
					return err
				}
				uid = parsed
			}
			r, err := id.ParseRole(role)
			if err != nil {
				return err
			}
			tok, err := jwttoken.NewJWTService(signingKey, issuer, audience).GenerateAccessToken(uid, r, ttl)
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user-id", "", "user ID, random when empty")
	cmd.Flags().StringVar(&role, "role", "owner", "owner or clinician")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	cmd.Flags().StringVar(&signingKey, "signing-key", envOr("INSTAHELP_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"), "HMAC signing key")
	cmd.Flags().StringVar(&issuer, "issuer", envOr("INSTAHELP_JWT_ISSUER", "instahelp"), "token issuer")
	cmd.Flags().StringVar(&audience, "audience", envOr("INSTAHELP_JWT_AUDIENCE", "instahelp-api"), "token audience")
	return cmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
