// Package main is the entrypoint for the Skillgate admin CLI.
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/skillgate/skillgate/internal/auth"
	"github.com/skillgate/skillgate/internal/crypto"
	"github.com/skillgate/skillgate/internal/db"
	"github.com/skillgate/skillgate/internal/models"
)

// Build-time variables set via ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "skillgate-admin",
		Short:        "Skillgate administration tool",
		Long:         `Administrative commands for the Skillgate gateway: secrets, licenses, API keys, and development tokens.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newGenkeyCmd(),
		newLicenseCmd(),
		newAPIKeyCmd(),
		newUserCmd(),
		newSignTokenCmd(),
	)

	return rootCmd
}

// connect opens the database from DATABASE_URL. The caller must Close it.
func connect(ctx context.Context) (*db.DB, error) {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger().Level(zerolog.WarnLevel)
	return db.New(ctx, db.DefaultConfig(databaseURL), logger)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Skillgate Admin %s\n", Version)
			fmt.Printf("  Commit:     %s\n", Commit)
			fmt.Printf("  Built:      %s\n", BuildDate)
			fmt.Printf("  Go version: %s\n", runtime.Version())
		},
	}
}

func newGenkeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "genkey",
		Short: "Generate server secrets",
		Long:  "Generates a hex-encoded AES-256 master key and random secrets for TOKEN_SECRET and WEBHOOK_SECRET.",
		RunE: func(cmd *cobra.Command, args []string) error {
			masterKey, err := crypto.GenerateMasterKey()
			if err != nil {
				return fmt.Errorf("generate master key: %w", err)
			}
			tokenSecret, err := crypto.GenerateToken()
			if err != nil {
				return fmt.Errorf("generate token secret: %w", err)
			}
			webhookSecret, err := crypto.GenerateToken()
			if err != nil {
				return fmt.Errorf("generate webhook secret: %w", err)
			}

			fmt.Printf("ENCRYPTION_KEY=%s\n", hex.EncodeToString(masterKey))
			fmt.Printf("TOKEN_SECRET=%s\n", tokenSecret)
			fmt.Printf("WEBHOOK_SECRET=%s\n", webhookSecret)
			return nil
		},
	}
}

func newLicenseCmd() *cobra.Command {
	licenseCmd := &cobra.Command{
		Use:   "license",
		Short: "Manage licenses",
	}
	licenseCmd.AddCommand(newLicenseCreateCmd(), newLicenseStatusCmd())
	return licenseCmd
}

func newLicenseCreateCmd() *cobra.Command {
	var (
		key      string
		plan     string
		products []string
		timezone string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create or update a license",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !models.ValidPlan(models.Plan(plan)) {
				return fmt.Errorf("invalid plan %q", plan)
			}

			ctx := cmd.Context()
			database, err := connect(ctx)
			if err != nil {
				return err
			}
			defer database.Close()

			now := time.Now()
			lic := &models.License{
				Key:             key,
				Status:          models.LicenseStatusActive,
				Plan:            models.Plan(plan),
				Products:        products,
				BillingTimezone: timezone,
				CreatedAt:       now,
				UpdatedAt:       now,
			}
			if err := database.UpsertLicense(ctx, lic); err != nil {
				return err
			}
			fmt.Printf("License %s created (plan %s, products %s)\n", key, plan, strings.Join(products, ","))
			return nil
		},
	}

	cmd.Flags().StringVar(&key, "key", "", "license key (required)")
	cmd.Flags().StringVar(&plan, "plan", "free", "plan: free, starter, professional, enterprise")
	cmd.Flags().StringSliceVar(&products, "products", []string{"skills"}, "entitled products")
	cmd.Flags().StringVar(&timezone, "timezone", "", "IANA billing timezone (default UTC)")
	_ = cmd.MarkFlagRequired("key")

	return cmd
}

func newLicenseStatusCmd() *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "status <license-key>",
		Short: "Set a license's status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			database, err := connect(ctx)
			if err != nil {
				return err
			}
			defer database.Close()

			if err := database.SetLicenseStatus(ctx, args[0], models.LicenseStatus(status)); err != nil {
				return err
			}
			fmt.Printf("License %s set to %s\n", args[0], status)
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "set", "active", "status: active, pending, suspended, canceled")
	return cmd
}

func newAPIKeyCmd() *cobra.Command {
	apikeyCmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys",
	}
	apikeyCmd.AddCommand(newAPIKeyCreateCmd(), newAPIKeyRevokeCmd())
	return apikeyCmd
}

func newAPIKeyCreateCmd() *cobra.Command {
	var (
		licenseKey string
		expiresIn  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Mint an API key for a license",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			database, err := connect(ctx)
			if err != nil {
				return err
			}
			defer database.Close()

			license, err := database.GetLicense(ctx, licenseKey)
			if err != nil {
				return err
			}
			if license == nil {
				return fmt.Errorf("license %q not found", licenseKey)
			}

			token, err := crypto.GenerateToken()
			if err != nil {
				return fmt.Errorf("generate key: %w", err)
			}

			rec := &models.APIKey{
				Key:        auth.APIKeyPrefix + token,
				LicenseKey: licenseKey,
				Status:     models.APIKeyStatusActive,
				CreatedAt:  time.Now(),
			}
			if expiresIn > 0 {
				expiresAt := time.Now().Add(expiresIn)
				rec.ExpiresAt = &expiresAt
			}
			if err := database.CreateAPIKey(ctx, rec); err != nil {
				return err
			}

			// The full key is shown once; only its row is stored.
			fmt.Printf("API key for %s:\n%s\n", licenseKey, rec.Key)
			if rec.ExpiresAt != nil {
				fmt.Printf("Expires: %s\n", rec.ExpiresAt.Format(time.RFC3339))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&licenseKey, "license", "", "license key (required)")
	cmd.Flags().DurationVar(&expiresIn, "expires-in", 0, "key lifetime (0 = never expires)")
	_ = cmd.MarkFlagRequired("license")

	return cmd
}

func newAPIKeyRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <key>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			database, err := connect(ctx)
			if err != nil {
				return err
			}
			defer database.Close()

			if err := database.RevokeAPIKey(ctx, args[0]); err != nil {
				return err
			}
			fmt.Println("API key revoked")
			return nil
		},
	}
}

func newUserCmd() *cobra.Command {
	userCmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}
	userCmd.AddCommand(newUserCreateCmd())
	return userCmd
}

func newUserCreateCmd() *cobra.Command {
	var (
		email      string
		password   string
		licenseKey string
		role       string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user under a license",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			database, err := connect(ctx)
			if err != nil {
				return err
			}
			defer database.Close()

			license, err := database.GetLicense(ctx, licenseKey)
			if err != nil {
				return err
			}
			if license == nil {
				return fmt.Errorf("license %q not found", licenseKey)
			}

			hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
			if err != nil {
				return fmt.Errorf("hash password: %w", err)
			}

			user := &models.User{
				ID:           uuid.New(),
				LicenseKey:   licenseKey,
				Email:        email,
				Role:         role,
				PasswordHash: string(hash),
				CreatedAt:    time.Now(),
			}
			if err := database.CreateUser(ctx, user); err != nil {
				return err
			}
			fmt.Printf("User %s created (%s)\n", email, user.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "user email (required)")
	cmd.Flags().StringVar(&password, "password", "", "user password (required)")
	cmd.Flags().StringVar(&licenseKey, "license", "", "license key (required)")
	cmd.Flags().StringVar(&role, "role", "member", "user role")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	_ = cmd.MarkFlagRequired("license")

	return cmd
}

func newSignTokenCmd() *cobra.Command {
	var (
		userID     string
		licenseKey string
		role       string
		ttl        time.Duration
	)

	cmd := &cobra.Command{
		Use:   "sign-token",
		Short: "Mint a signed session token (development only)",
		Long:  "Signs a session token with TOKEN_SECRET. The token is only honored if a matching session row exists, so this is for development and testing.",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := os.Getenv("TOKEN_SECRET")
			if secret == "" {
				return fmt.Errorf("TOKEN_SECRET environment variable is required")
			}
			codec, err := auth.NewTokenCodec([]byte(secret))
			if err != nil {
				return err
			}

			uid, err := uuid.Parse(userID)
			if err != nil {
				return fmt.Errorf("invalid user id: %w", err)
			}

			now := time.Now()
			token, err := codec.Sign(auth.TokenClaims{
				UserID:     uid,
				LicenseKey: licenseKey,
				Role:       role,
				IssuedAt:   now.Unix(),
				ExpiresAt:  now.Add(ttl).Unix(),
			})
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user-id", "", "user UUID (required)")
	cmd.Flags().StringVar(&licenseKey, "license", "", "license key (required)")
	cmd.Flags().StringVar(&role, "role", "member", "token role")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user-id")
	_ = cmd.MarkFlagRequired("license")

	return cmd
}
