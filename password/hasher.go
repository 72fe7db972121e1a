package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

const (
	minMemoryKB   uint32 = 8 * 1024
	minSaltLength uint32 = 16
	minKeyLength  uint32 = 16
	maxPassBytes         = 1024
	algorithmID          = "argon2id"
)

var (
	// ErrUnknownFormat is returned for stored values that are not a supported hash.
	ErrUnknownFormat = errors.New("unsupported password hash format")
	// ErrTooLong guards the hash functions against oversized input.
	ErrTooLong = errors.New("password too long")
)

// Config holds Argon2id cost parameters.
type Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultConfig returns the cost parameters used for new hashes.
func DefaultConfig() Config {
	return Config{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Hasher creates Argon2id hashes and verifies Argon2id or bcrypt hashes.
type Hasher struct {
	config Config
}

// NewHasher validates cfg and returns a Hasher.
func NewHasher(cfg Config) (*Hasher, error) {
	switch {
	case cfg.Memory < minMemoryKB:
		return nil, errors.New("password memory must be >= 8192 KB")
	case cfg.Time < 1:
		return nil, errors.New("password time must be >= 1")
	case cfg.Parallelism < 1:
		return nil, errors.New("password parallelism must be >= 1")
	case cfg.SaltLength < minSaltLength:
		return nil, errors.New("password salt length must be >= 16")
	case cfg.KeyLength < minKeyLength:
		return nil, errors.New("password key length must be >= 16")
	}
	return &Hasher{config: cfg}, nil
}

// Hash returns the PHC encoding of an Argon2id hash of plain.
func (h *Hasher) Hash(plain string) (string, error) {
	if len(plain) > maxPassBytes {
		return "", ErrTooLong
	}

	salt := make([]byte, h.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}
	key := argon2.IDKey([]byte(plain), salt, h.config.Time, h.config.Memory, h.config.Parallelism, h.config.KeyLength)

	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		h.config.Memory,
		h.config.Time,
		h.config.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether plain matches encoded. A malformed or unsupported
// encoding is an error, a mismatch is (false, nil).
func (h *Hasher) Verify(plain, encoded string) (bool, error) {
	if len(plain) > maxPassBytes {
		return false, ErrTooLong
	}
	switch {
	case strings.HasPrefix(encoded, "$"+algorithmID+"$"):
		return verifyArgon2(plain, encoded)
	case isBcrypt(encoded):
		err := bcrypt.CompareHashAndPassword([]byte(encoded), []byte(plain))
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return true, nil
	default:
		return false, ErrUnknownFormat
	}
}

// NeedsRehash reports whether encoded should be replaced with a hash using the
// current parameters, either because it is bcrypt or because its Argon2id
// costs are weaker.
func (h *Hasher) NeedsRehash(encoded string) bool {
	if isBcrypt(encoded) {
		return true
	}
	p, err := parseArgon2(encoded)
	if err != nil {
		return true
	}
	return p.memory < h.config.Memory ||
		p.time < h.config.Time ||
		p.parallelism < h.config.Parallelism ||
		uint32(len(p.key)) != h.config.KeyLength
}

func isBcrypt(encoded string) bool {
	return strings.HasPrefix(encoded, "$2a$") ||
		strings.HasPrefix(encoded, "$2b$") ||
		strings.HasPrefix(encoded, "$2y$")
}

type argon2Params struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func verifyArgon2(plain, encoded string) (bool, error) {
	p, err := parseArgon2(encoded)
	if err != nil {
		return false, err
	}
	computed := argon2.IDKey([]byte(plain), p.salt, p.time, p.memory, p.parallelism, uint32(len(p.key)))
	return subtle.ConstantTimeCompare(computed, p.key) == 1, nil
}

func parseArgon2(encoded string) (*argon2Params, error) {
	// "", "argon2id", "v=19", "m=..,t=..,p=..", salt, key
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != algorithmID {
		return nil, ErrUnknownFormat
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return nil, errors.New("unsupported argon2 version")
	}

	p := &argon2Params{}
	for _, kv := range strings.Split(parts[3], ",") {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, errors.New("invalid argon2 parameter")
		}
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil || n == 0 {
			return nil, fmt.Errorf("invalid argon2 parameter %q", name)
		}
		switch name {
		case "m":
			p.memory = uint32(n)
		case "t":
			p.time = uint32(n)
		case "p":
			if n > 255 {
				return nil, errors.New("invalid argon2 parallelism")
			}
			p.parallelism = uint8(n)
		default:
			return nil, fmt.Errorf("unsupported argon2 parameter %q", name)
		}
	}
	if p.memory < minMemoryKB || p.time == 0 || p.parallelism == 0 {
		return nil, errors.New("missing argon2 parameters")
	}

	var err error
	if p.salt, err = decodeB64(parts[4]); err != nil || len(p.salt) < int(minSaltLength) {
		return nil, errors.New("invalid argon2 salt")
	}
	if p.key, err = decodeB64(parts[5]); err != nil || len(p.key) == 0 {
		return nil, errors.New("invalid argon2 hash")
	}
	return p, nil
}

// decodeB64 accepts padded and unpadded standard base64, both of which
// appear in PHC strings written by other libraries.
func decodeB64(s string) ([]byte, error) {
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}
