// Package reference mints the short booking reference (PNR) handed to
// passengers.
package reference

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Domenick1991/flightsim/internal/random"
	"github.com/bwmarrin/snowflake"
)

const (
	Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	DefaultLength      = 8
	DefaultAttempts    = 5
	DefaultFastMaxLen  = 12
	fallbackPrefix     = "PNR"
	StrategyChecked    = "checked"
	StrategyFast       = "fast"
	defaultSnowflakeID = 1
)

// Lookup reports whether a reference is already taken.
type Lookup func(ctx context.Context, code string) (bool, error)

type Generator interface {
	Generate(ctx context.Context, exists Lookup) (string, error)
}

type Config struct {
	Strategy   string
	Length     int
	Attempts   int
	FastMaxLen int
	// NodeID distinguishes processes in fallback codes.
	NodeID int64
}

// New builds the generator selected by cfg.Strategy.
func New(cfg Config, rnd random.Source) (Generator, error) {
	if rnd == nil {
		rnd = random.Default
	}
	if cfg.Length <= 0 {
		cfg.Length = DefaultLength
	}
	switch strings.ToLower(cfg.Strategy) {
	case "", StrategyChecked:
		return NewChecked(rnd, cfg.Length, cfg.Attempts, cfg.NodeID)
	case StrategyFast:
		return NewFast(rnd, cfg.Length, cfg.FastMaxLen), nil
	default:
		return nil, fmt.Errorf("unknown reference strategy %q", cfg.Strategy)
	}
}

func randomCode(rnd random.Source, n int) string {
	var sb strings.Builder
	sb.Grow(n)
	for i := 0; i < n; i++ {
		sb.WriteByte(Alphabet[rnd.IntN(len(Alphabet))])
	}
	return sb.String()
}

// Checked draws random codes and asks the store whether they are free.
// After the configured attempts it falls back to a time-based code.
type Checked struct {
	rnd      random.Source
	length   int
	attempts int

	mu   sync.Mutex
	node *snowflake.Node
}

func NewChecked(rnd random.Source, length, attempts int, nodeID int64) (*Checked, error) {
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	if nodeID <= 0 {
		nodeID = defaultSnowflakeID
	}
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("create snowflake node: %w", err)
	}
	return &Checked{rnd: rnd, length: length, attempts: attempts, node: node}, nil
}

func (g *Checked) Generate(ctx context.Context, exists Lookup) (string, error) {
	for i := 0; i < g.attempts; i++ {
		code := randomCode(g.rnd, g.length)
		if exists == nil {
			return code, nil
		}
		taken, err := exists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("check reference: %w", err)
		}
		if !taken {
			return code, nil
		}
	}
	return g.fallback(), nil
}

func (g *Checked) fallback() string {
	g.mu.Lock()
	id := g.node.Generate()
	g.mu.Unlock()
	return fallbackPrefix + strings.ToUpper(id.Base36())
}

// Fast appends a base-36 millisecond timestamp to a random prefix and never
// consults the store.
type Fast struct {
	rnd    random.Source
	length int
	maxLen int
	now    func() time.Time
}

func NewFast(rnd random.Source, length, maxLen int) *Fast {
	if maxLen <= 0 {
		maxLen = DefaultFastMaxLen
	}
	return &Fast{rnd: rnd, length: length, maxLen: maxLen, now: time.Now}
}

// Generate keeps the whole timestamp and shortens the random prefix so the
// code fits in maxLen.
func (g *Fast) Generate(_ context.Context, _ Lookup) (string, error) {
	ts := strings.ToUpper(strconv.FormatInt(g.now().UnixMilli(), 36))
	n := min(g.length, g.maxLen-len(ts))
	if n < 1 {
		n = 1
	}
	code := randomCode(g.rnd, n) + ts
	if len(code) > g.maxLen {
		code = code[:g.maxLen]
	}
	return code, nil
}
