package database

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/karaoke-session-system/pkg/apperrors"
)

const (
	SessionCodeLength    = 8
	InvitationCodeLength = 10
	codeAttempts         = 5

	// No 0/O or 1/I so codes survive being read aloud.
	codeCharset = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

func randomCode(length int) (string, error) {
	max := big.NewInt(int64(len(codeCharset)))
	code := make([]byte, length)
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate code: %w", err)
		}
		code[i] = codeCharset[n.Int64()]
	}
	return string(code), nil
}

// UniqueCode draws codes until taken reports one as free.
func UniqueCode(ctx context.Context, length int, taken func(context.Context, string) (bool, error)) (string, error) {
	for i := 0; i < codeAttempts; i++ {
		code, err := randomCode(length)
		if err != nil {
			return "", err
		}
		used, err := taken(ctx, code)
		if err != nil {
			return "", err
		}
		if !used {
			return code, nil
		}
	}
	return "", apperrors.Wrap(apperrors.ErrConflict, "could not generate a unique code after %d attempts", codeAttempts)
}
