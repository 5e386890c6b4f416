package marketdata

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// knownAliases maps folded company names and common shorthand to tickers.
// This covers the names queries actually use; anything else has to arrive as
// an explicit symbol.
var knownAliases = map[string]string{
	"apple":             "AAPL",
	"microsoft":         "MSFT",
	"google":            "GOOGL",
	"alphabet":          "GOOGL",
	"amazon":            "AMZN",
	"meta":              "META",
	"facebook":          "META",
	"tesla":             "TSLA",
	"nvidia":            "NVDA",
	"netflix":           "NFLX",
	"intel":             "INTC",
	"amd":               "AMD",
	"berkshire":         "BRK-B",
	"jpmorgan":          "JPM",
	"jp morgan":         "JPM",
	"goldman sachs":     "GS",
	"bank of america":   "BAC",
	"coca cola":         "KO",
	"coca-cola":         "KO",
	"disney":            "DIS",
	"walmart":           "WMT",
	"exxon":             "XOM",
	"johnson & johnson": "JNJ",
	"visa":              "V",
	"mastercard":        "MA",
	"salesforce":        "CRM",
	"oracle":            "ORCL",
	"ibm":               "IBM",
	"boeing":            "BA",
	"broadcom":          "AVGO",
	"palantir":          "PLTR",
	"uber":              "UBER",
	"airbnb":            "ABNB",
}

var tickerPattern = regexp.MustCompile(`^[A-Z]{1,5}(-[A-Z])?$`)

// Resolver maps free-text company references to ticker symbols. Lookups fold
// case with the Unicode caser so "Apple", "APPLE" and "apple" all resolve,
// and successful resolutions are cached in redis for a day.
type Resolver struct {
	rdb    *redis.Client
	caser  cases.Caser
	logger *zap.Logger
}

// NewResolver creates a resolver. rdb may be nil, which disables the lookup
// cache.
func NewResolver(rdb *redis.Client, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		rdb:    rdb,
		caser:  cases.Fold(),
		logger: logger,
	}
}

const resolverCacheTTL = 24 * time.Hour

// Resolve returns the ticker for a company reference, or false when the
// reference is unknown. An input that already looks like a ticker symbol is
// returned uppercased as-is.
func (r *Resolver) Resolve(ctx context.Context, reference string) (string, bool) {
	ref := strings.TrimSpace(reference)
	if ref == "" {
		return "", false
	}

	if upper := strings.ToUpper(ref); tickerPattern.MatchString(upper) && upper == ref {
		return upper, true
	}

	folded := r.caser.String(ref)
	folded = strings.Join(strings.Fields(folded), " ")

	if r.rdb != nil {
		cached, err := r.rdb.Get(ctx, "resolver:"+folded).Result()
		if err == nil {
			return cached, true
		}
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn("resolver cache read failed", zap.Error(err))
		}
	}

	ticker, ok := knownAliases[folded]
	if !ok {
		return "", false
	}
	if r.rdb != nil {
		if err := r.rdb.Set(ctx, "resolver:"+folded, ticker, resolverCacheTTL).Err(); err != nil {
			r.logger.Warn("resolver cache write failed", zap.Error(err))
		}
	}
	return ticker, true
}

// Title returns the display-cased form of a company reference, used when
// echoing unresolved names back in reports.
func (r *Resolver) Title(reference string) string {
	return cases.Title(language.English).String(strings.TrimSpace(reference))
}
