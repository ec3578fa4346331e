package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"
)

// apiClaims is the payload carried by tokens this utility mints. Roles are
// opaque strings the admin HTTP surface's callers are expected to check
// against their own authorization policy; the control plane itself doesn't
// interpret them beyond propagating the subject and role list.
type apiClaims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

var (
	flagRoles  string
	flagUser   string
	flagSecret string
	flagTTL    time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "issue-api-token",
	Short: "Mint a signed API token for the control plane's admin HTTP surface",
	Long: `issue-api-token is an operator utility, not a network service: it signs
a JWT locally using the shared CONTROL_PLANE_TOKEN secret and prints it to
stdout. It never talks to the control plane or the auth service.`,
	RunE: runIssue,
}

func init() {
	rootCmd.Flags().StringVar(&flagRoles, "roles", "", "comma-separated role list (required)")
	rootCmd.Flags().StringVar(&flagUser, "user", "", "token subject / user name (required)")
	rootCmd.Flags().StringVar(&flagSecret, "secret", "", "HMAC signing secret, must match CONTROL_PLANE_TOKEN (required)")
	rootCmd.Flags().DurationVar(&flagTTL, "ttl", 24*time.Hour, "token lifetime")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runIssue(cmd *cobra.Command, args []string) error {
	signed, err := issueToken(flagUser, flagSecret, flagRoles, flagTTL)
	if err != nil {
		return err
	}
	fmt.Println(signed)
	return nil
}

// issueToken builds and signs the token; split out from runIssue so tests
// can assert on the signed value without capturing stdout.
func issueToken(user, secret, rolesCSV string, ttl time.Duration) (string, error) {
	if user == "" || secret == "" || rolesCSV == "" {
		return "", fmt.Errorf("--user, --secret and --roles are all required")
	}

	roles := splitAndTrim(rolesCSV)
	if len(roles) == 0 {
		return "", fmt.Errorf("--roles must name at least one role")
	}

	now := time.Now()
	claims := &apiClaims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user,
			Issuer:    "stormstack-control-plane",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
