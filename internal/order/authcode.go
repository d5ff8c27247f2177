package order

import (
	"fmt"
	"math/rand"
)

// GenerateAuthCode returns the 6-digit code a customer types at the machine
// to start their wash. The code only authenticates a human standing in
// front of the machine, so plain pseudo-randomness is enough; collisions
// with pending orders are caught at insert time and retried.
func GenerateAuthCode() string {
	return fmt.Sprintf("%06d", rand.Intn(1_000_000))
}
