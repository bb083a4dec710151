package testutil

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/c360/semcache/errors"
)

// ErrInvalidLetter is returned by AlphabetLoader for keys that are not a
// single ASCII letter. It wraps errors.ErrInvalidKey.
var ErrInvalidLetter = fmt.Errorf("key must be a single letter between 'a' and 'Z': %w", errors.ErrInvalidKey)

// Letter is an ungrouped payload keyed by its character.
type Letter struct {
	Char rune `json:"char"`
}

// CacheKey returns the letter as a string.
func (l *Letter) CacheKey() string { return string(l.Char) }

// AlphabetLoader loads single letters. FetchAll returns the lower-case
// alphabet; FetchEntity also accepts upper-case letters.
type AlphabetLoader struct {
	// Delay is applied to every fetch.
	Delay time.Duration

	entityCalls atomic.Int64
	allCalls    atomic.Int64
}

// NewAlphabetLoader creates a loader without delay.
func NewAlphabetLoader() *AlphabetLoader {
	return &AlphabetLoader{}
}

// FetchEntity returns the Letter for key, or ErrInvalidLetter.
func (l *AlphabetLoader) FetchEntity(ctx context.Context, key string) (*Letter, bool, error) {
	l.entityCalls.Add(1)
	if err := l.wait(ctx); err != nil {
		return nil, false, err
	}

	r, size := utf8.DecodeRuneInString(key)
	if size != len(key) || !isLetter(r) {
		return nil, false, fmt.Errorf("%q: %w", key, ErrInvalidLetter)
	}
	return &Letter{Char: r}, true, nil
}

// FetchAll returns 'a' through 'z'.
func (l *AlphabetLoader) FetchAll(ctx context.Context) ([]*Letter, error) {
	l.allCalls.Add(1)
	if err := l.wait(ctx); err != nil {
		return nil, err
	}

	out := make([]*Letter, 0, 26)
	for r := 'a'; r <= 'z'; r++ {
		out = append(out, &Letter{Char: r})
	}
	return out, nil
}

// EntityCalls returns how many times FetchEntity ran.
func (l *AlphabetLoader) EntityCalls() int64 { return l.entityCalls.Load() }

// AllCalls returns how many times FetchAll ran.
func (l *AlphabetLoader) AllCalls() int64 { return l.allCalls.Load() }

func (l *AlphabetLoader) wait(ctx context.Context) error {
	if l.Delay <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(l.Delay):
		return nil
	}
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
