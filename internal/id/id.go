package id

import (
	"io"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	// Length is the number of characters in every generated key.
	Length = 8
	// Alphabet holds the 62 symbols keys are drawn from.
	Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// bytes at or above this value are rejected so each symbol stays equally likely.
const rejectAbove = 256 - 256%len(Alphabet)

// Generator produces short, URL-safe identifiers.
type Generator struct {
	source io.Reader
}

// Option configures a Generator.
type Option func(*Generator)

// WithSource makes the generator draw uniform bytes from r instead of the
// process-wide random source.
func WithSource(r io.Reader) Option {
	return func(g *Generator) {
		g.source = r
	}
}

// New returns a Generator.
func New(opts ...Option) *Generator {
	g := &Generator{}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate returns a new identifier.
func (g *Generator) Generate() string {
	if g == nil || g.source == nil {
		return gonanoid.MustGenerate(Alphabet, Length)
	}
	return g.fromSource()
}

func (g *Generator) fromSource() string {
	out := make([]byte, 0, Length)
	buf := make([]byte, Length)
	for len(out) < Length {
		n, err := io.ReadFull(g.source, buf)
		for _, b := range buf[:n] {
			if int(b) >= rejectAbove {
				continue
			}
			out = append(out, Alphabet[int(b)%len(Alphabet)])
			if len(out) == Length {
				break
			}
		}
		if err != nil && len(out) < Length {
			// An exhausted source falls back to the default generator.
			return string(out) + gonanoid.MustGenerate(Alphabet, Length-len(out))
		}
	}
	return string(out)
}

// Valid reports whether key has the shape produced by Generate.
func Valid(key string) bool {
	if len(key) != Length {
		return false
	}
	for i := 0; i < len(key); i++ {
		c := key[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		default:
			return false
		}
	}
	return true
}
