// Package idgen generates the identifiers visedit hands out: notice IDs
// returned to API clients and per-request trace IDs.
//
// Generators are plain functions so constructors can take one as an option
// and tests can substitute a deterministic sequence.
package idgen

import (
	"crypto/rand"
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator of RFC 9562 UUID v7 strings. They sort by
// creation time.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Short returns a Generator of n random base-36 characters.
func Short(n int) Generator {
	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	return func() string {
		buf := make([]byte, n)
		if _, err := rand.Read(buf); err != nil {
			panic("idgen: crypto/rand failed: " + err.Error())
		}
		for i := range buf {
			buf[i] = alphabet[int(buf[i])%len(alphabet)]
		}
		return string(buf)
	}
}

// Sequence returns a Generator of "1", "2", ... for tests.
func Sequence() Generator {
	var n atomic.Int64
	return func() string {
		return strconv.FormatInt(n.Add(1), 10)
	}
}

// Prefixed prepends prefix to every ID of gen.
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Notice is the generator of user notice IDs ("ntc_<uuidv7>").
var Notice = Prefixed("ntc_", UUIDv7())

// Trace is the generator of request trace IDs ("trc_<8 chars>").
var Trace = Prefixed("trc_", Short(8))

// Parse validates a UUID string and returns its canonical form.
func Parse(s string) (string, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("idgen: invalid UUID: %w", err)
	}
	return u.String(), nil
}
