// Command devtoken mints a signed access token for local development and
// testing. Production tokens come from the identity provider; this tool only
// exists so the API can be exercised without one.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"backend/internal/middleware"
	"backend/internal/model"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func main() {
	var (
		sub    = flag.String("sub", "", "subject user id (default: random UUID)")
		email  = flag.String("email", "dev@example.com", "email claim")
		name   = flag.String("name", "Dev User", "name claim")
		role   = flag.String("role", string(model.RoleStaff), "role claim (staff, approver-level-1, approver-level-2, finance)")
		ttl    = flag.Duration("ttl", 24*time.Hour, "token lifetime")
		secret = flag.String("secret", "", "signing secret (default: JWT_SECRET env, then the dev default)")
	)
	flag.Parse()

	if !model.Role(*role).Valid() {
		fmt.Fprintf(os.Stderr, "unknown role %q\n", *role)
		os.Exit(1)
	}

	userID := *sub
	if userID == "" {
		userID = uuid.New().String()
	} else if _, err := uuid.Parse(userID); err != nil {
		fmt.Fprintf(os.Stderr, "sub must be a UUID: %v\n", err)
		os.Exit(1)
	}

	key := []byte(*secret)
	if len(key) == 0 {
		key = middleware.GetJWTSecret()
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   userID,
		"email": *email,
		"name":  *name,
		"role":  *role,
		"iat":   now.Unix(),
		"exp":   now.Add(*ttl).Unix(),
	})

	signed, err := token.SignedString(key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to sign token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(signed)
}
