package internal

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"math/big"
	"strings"
)

// captchaAlphabet leaves out characters that are easy to confuse when rendered.
const captchaAlphabet = "23456789abcdefghjkmnpqrstuvwxyzABCDEFGHJKMNPQRSTUVWXYZ"

// NewNumericCode returns a uniformly random decimal code of the given length.
func NewNumericCode(digits int) (string, error) {
	if digits < 4 || digits > 10 {
		return "", errors.New("invalid code length")
	}
	return randomFrom("0123456789", digits)
}

// NewCaptchaText returns a random captcha answer.
func NewCaptchaText(length int) (string, error) {
	if length < 1 {
		return "", errors.New("invalid captcha length")
	}
	return randomFrom(captchaAlphabet, length)
}

// NewState returns an unguessable OAuth state value.
func NewState() (string, error) {
	var raw [24]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

func randomFrom(alphabet string, n int) (string, error) {
	var b strings.Builder
	b.Grow(n)
	max := big.NewInt(int64(len(alphabet)))
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(alphabet[idx.Int64()])
	}
	return b.String(), nil
}
