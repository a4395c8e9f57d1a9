package authcore

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// backupAlphabet avoids characters users confuse when reading codes off
// paper: no 0/O, 1/I/L.
const backupAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func generateBackupCodes(count, length int) ([]string, error) {
	codes := make([]string, count)
	buf := make([]byte, length)
	for i := range codes {
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("authcore: generate backup codes: %w", err)
		}
		b := make([]byte, length)
		for j, v := range buf {
			b[j] = backupAlphabet[int(v)%len(backupAlphabet)]
		}
		codes[i] = string(b)
	}
	return codes, nil
}

// canonicalizeBackupCode normalizes user input before hashing: uppercase,
// with spaces and dashes stripped.
func canonicalizeBackupCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	code = strings.ReplaceAll(code, "-", "")
	code = strings.ReplaceAll(code, " ", "")
	return code
}

func hashBackupCode(code string) string {
	sum := sha256.Sum256([]byte(canonicalizeBackupCode(code)))
	return hex.EncodeToString(sum[:])
}

func hashBackupCodes(codes []string) []string {
	hashes := make([]string, len(codes))
	for i, c := range codes {
		hashes[i] = hashBackupCode(c)
	}
	return hashes
}
