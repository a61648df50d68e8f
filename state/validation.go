package state

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

var usernamePattern = regexp.MustCompile(`^[\p{L}\p{M}\p{N}\p{S}._' -]+$`)

// UsernameValidator enforces the display-name policy for names propagated
// through the mesh.
func UsernameValidator(s string) error {
	if !utf8.ValidString(s) {
		return errors.New("username is not valid utf-8")
	}
	if strings.TrimSpace(s) != s || s == "" {
		return fmt.Errorf("%q is not a valid username, must not be blank or padded", s)
	}
	if n := utf8.RuneCountInString(s); n > MaxUsernameLength {
		return fmt.Errorf("len(%q) = %d > %d is too long", s, n, MaxUsernameLength)
	}
	if !usernamePattern.MatchString(s) {
		return fmt.Errorf("%q is not a valid username, must match pattern %s", s, usernamePattern.String())
	}
	return nil
}

func NodeConfigValidator(node *LocalCfg) error {
	if node.Id <= 0 {
		return fmt.Errorf("node.Id must be positive, got %d", node.Id)
	}
	err := UsernameValidator(node.Username)
	if err != nil {
		return err
	}
	if node.SigningKey.PrivateKey == nil {
		return errors.New("node.SigningKey is missing")
	}
	if node.SessionKey.PrivateKey == nil {
		return errors.New("node.SessionKey is missing")
	}
	for _, pfx := range node.Allow {
		if !pfx.IsValid() {
			return fmt.Errorf("allowed prefix %s is invalid", pfx)
		}
	}
	for _, peer := range node.Peers {
		if !peer.IsValid() {
			return fmt.Errorf("peer %s is invalid", peer)
		}
	}
	return nil
}
