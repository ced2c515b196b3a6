// Package pattern resolves the step-name classification expressions used to
// recognise QC and approval passes.
package pattern

import (
	"context"
	"regexp"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/keying-qc/internal/db"
)

// Setting keys holding the expressions.
const (
	KeyQC  = "QC_PATTERN"
	KeyAQC = "AQC_PATTERN"
)

// Fallback expressions used when the configuration source is unavailable.
const (
	DefaultQC  = `(?i)qc`
	DefaultAQC = `(?i)(aqc|approv)`
)

// Patterns holds the compiled classification expressions.
type Patterns struct {
	QC  *regexp.Regexp
	AQC *regexp.Regexp
}

// Defaults returns the compiled fallback patterns.
func Defaults() Patterns {
	return Patterns{
		QC:  regexp.MustCompile(DefaultQC),
		AQC: regexp.MustCompile(DefaultAQC),
	}
}

// IsQC reports whether a step name denotes a QC pass.
func (p Patterns) IsQC(step string) bool {
	return p.QC != nil && p.QC.MatchString(step)
}

// IsApproval reports whether a step name denotes an approval (AQC) pass.
func (p Patterns) IsApproval(step string) bool {
	return p.AQC != nil && p.AQC.MatchString(step)
}

// Source supplies raw pattern expressions keyed by setting name.
type Source interface {
	Patterns(ctx context.Context) (map[string]string, error)
}

// PostgresSource reads patterns from the qc.settings table.
type PostgresSource struct {
	pool db.Pool
}

// NewPostgresSource creates a Source backed by qc.settings.
func NewPostgresSource(pool db.Pool) *PostgresSource {
	return &PostgresSource{pool: pool}
}

// Patterns implements Source.
func (s *PostgresSource) Patterns(ctx context.Context) (map[string]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT key, value FROM qc.settings WHERE key = ANY($1)`,
		[]string{KeyQC, KeyAQC},
	)
	if err != nil {
		return nil, eris.Wrap(err, "pattern: query settings")
	}
	defer rows.Close()

	out := make(map[string]string, 2)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, eris.Wrap(err, "pattern: scan setting")
		}
		out[k] = v
	}
	return out, eris.Wrap(rows.Err(), "pattern: iterate settings")
}

// Resolver caches compiled patterns for a bounded interval.
type Resolver struct {
	src Source
	ttl time.Duration
	now func() time.Time

	mu        sync.Mutex
	value     *Patterns
	fetchedAt time.Time
}

// NewResolver creates a Resolver. A non-positive ttl disables caching.
func NewResolver(src Source, ttl time.Duration) *Resolver {
	return &Resolver{src: src, ttl: ttl, now: time.Now}
}

// Get returns the current patterns. It never fails: any problem with the
// source yields the fallback expression for the affected pattern.
func (r *Resolver) Get(ctx context.Context) Patterns {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.value != nil && r.ttl > 0 && r.now().Sub(r.fetchedAt) < r.ttl {
		return *r.value
	}

	p := r.load(ctx)
	r.value = &p
	r.fetchedAt = r.now()
	return p
}

// Invalidate drops the cached value so the next Get refetches.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	r.value = nil
	r.mu.Unlock()
}

func (r *Resolver) load(ctx context.Context) Patterns {
	log := zap.L().With(zap.String("component", "pattern.resolver"))
	p := Defaults()

	if r.src == nil {
		return p
	}
	raw, err := r.src.Patterns(ctx)
	if err != nil {
		log.Warn("pattern source unavailable, using defaults", zap.Error(err))
		return p
	}

	if re := compile(raw, KeyQC, log); re != nil {
		p.QC = re
	}
	if re := compile(raw, KeyAQC, log); re != nil {
		p.AQC = re
	}
	return p
}

func compile(raw map[string]string, key string, log *zap.Logger) *regexp.Regexp {
	expr, ok := raw[key]
	if !ok || expr == "" {
		log.Warn("pattern not configured, using default", zap.String("key", key))
		return nil
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		log.Warn("invalid pattern, using default", zap.String("key", key), zap.Error(err))
		return nil
	}
	return re
}
