//go:build race

package auth

import "golang.org/x/crypto/bcrypt"

// passwordHashCost drops to the library default under the race detector
// so the suite fits inside strict test timeouts.
func passwordHashCost() int {
	return bcrypt.DefaultCost
}
