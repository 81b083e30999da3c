package main

import (
	"fmt"
	"os"

	"github.com/technosupport/ts-license/internal/tokens"
)

// Dev helper: prints an admin token signed with JWT_SIGNING_KEY (or the
// dev fallback) for poking the admin API with curl.
func main() {
	key := os.Getenv("JWT_SIGNING_KEY")
	if key == "" {
		key = "dev-secret-do-not-use-in-prod"
	}
	mgr := tokens.NewManager(key)

	token, err := mgr.GenerateAdminToken("admin")
	if err != nil {
		panic(err)
	}
	fmt.Println(token)
}
