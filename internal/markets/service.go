package markets

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/canalenergetico/canal-web/internal/logging"
	"github.com/canalenergetico/canal-web/internal/metrics"
	"github.com/canalenergetico/canal-web/internal/publisher"
	"github.com/canalenergetico/canal-web/internal/store"
	"github.com/canalenergetico/canal-web/internal/telemetry"
)

// NoteKey identifies the markets commentary in site notes.
const NoteKey = "markets"

// InitialNote is shown until an editor publishes the first commentary.
const InitialNote = "Sin comentario aún. (Usa el botón “Nuevo comentario mercados” para publicar el primero.)"

// ErrEmptyNote rejects a blank commentary.
var ErrEmptyNote = errors.New("markets: empty note")

// Fetcher downloads recent closes of a series.
type Fetcher interface {
	LastN(ctx context.Context, series string, n int) ([]Point, error)
}

// Repository is the slice of the store the markets service needs.
type Repository interface {
	store.MarketRepository
	store.NoteRepository
}

// Options tune the service.
type Options struct {
	// Symbols refreshed when none are given.
	Symbols    []string
	Unit       string
	WindowSize int
	// Concurrency bounds parallel symbol refreshes.
	Concurrency int
	// CacheTTL keeps dashboard payloads; zero disables the cache.
	CacheTTL time.Duration
	// MaxAge makes Dashboard refresh a symbol whose latest quote is older;
	// zero only refreshes symbols with nothing stored.
	MaxAge time.Duration
	// Topic receives markets.refreshed events; empty disables them.
	Topic string
	Now   func() time.Time
}

// Service refreshes the stored price windows and builds the dashboard.
type Service struct {
	repo    Repository
	fetcher Fetcher
	events  publisher.Publisher
	cache   *cache.Cache
	opts    Options
	logger  *zap.Logger

	// inflight serialises refreshes of one symbol.
	inflight sync.Map
}

// NewService wires the markets service.
func NewService(repo Repository, fetcher Fetcher, events publisher.Publisher, opts Options, logger *zap.Logger) *Service {
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.WindowSize <= 0 {
		opts.WindowSize = 30
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 2
	}
	if len(opts.Symbols) == 0 {
		opts.Symbols = SplitSymbols(DefaultSymbols)
	}
	if opts.Unit == "" {
		opts.Unit = "USD/bbl"
	}
	if events == nil {
		events = publisher.Noop{}
	}
	return &Service{
		repo:    repo,
		fetcher: fetcher,
		events:  events,
		cache:   cache.New(opts.CacheTTL, 2*opts.CacheTTL+time.Minute),
		opts:    opts,
		logger:  logging.OrNop(logger).Named("markets"),
	}
}

// SymbolResult is the outcome of one series refresh.
type SymbolResult struct {
	Symbol  string
	Points  int
	Evicted int
	Latest  float64
	// Stale is set when no data arrived and the stored quote was flagged.
	Stale bool
	Err   error
}

// RefreshReport summarises a refresh run in input order.
type RefreshReport struct {
	Results []SymbolResult
}

// Failed lists the symbols that did not refresh.
func (r RefreshReport) Failed() []string {
	var out []string
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res.Symbol)
		}
	}
	return out
}

// Err joins the per-symbol errors.
func (r RefreshReport) Err() error {
	var errs []error
	for _, res := range r.Results {
		if res.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", res.Symbol, res.Err))
		}
	}
	return errors.Join(errs...)
}

// Refresh downloads the window of each symbol (the configured ones when
// empty) and stores it. Per-symbol failures land in the report; the returned
// error is only set when ctx ends.
func (s *Service) Refresh(ctx context.Context, symbols []string) (RefreshReport, error) {
	ids := s.normalize(symbols)
	report := RefreshReport{Results: make([]SymbolResult, len(ids))}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for i, id := range ids {
		g.Go(func() error {
			report.Results[i] = s.refreshOne(gctx, id)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("refresh markets: %w", err)
	}

	s.cache.Flush()
	ok := len(ids) - len(report.Failed())
	s.logger.Info("Markets refreshed", zap.Int("symbols", len(ids)), zap.Int("ok", ok))
	if s.opts.Topic != "" {
		ev := publisher.NewEvent(publisher.MarketsRefreshed, s.opts.Now(), map[string]string{
			"symbols": strings.Join(ids, ","),
			"failed":  strings.Join(report.Failed(), ","),
		})
		if _, err := s.events.Publish(ctx, s.opts.Topic, ev); err != nil {
			s.logger.Warn("Event publish failed", zap.String("type", publisher.MarketsRefreshed), zap.Error(err))
		}
	}
	return report, nil
}

func (s *Service) normalize(symbols []string) []string {
	if len(symbols) == 0 {
		symbols = s.opts.Symbols
	}
	seen := make(map[string]struct{}, len(symbols))
	ids := make([]string, 0, len(symbols))
	for _, raw := range symbols {
		id := NormalizeSeriesID(raw)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

func (s *Service) lock(id string) func() {
	mu, _ := s.inflight.LoadOrStore(id, &sync.Mutex{})
	m := mu.(*sync.Mutex)
	m.Lock()
	return m.Unlock
}

func (s *Service) refreshOne(ctx context.Context, id string) SymbolResult {
	ctx, span := telemetry.Tracer("markets").Start(ctx, "markets.refresh")
	span.SetAttributes(attribute.String("markets.series", id))
	defer span.End()
	defer s.lock(id)()

	res := SymbolResult{Symbol: id}
	points, err := s.fetcher.LastN(ctx, id, s.opts.WindowSize)
	if err == nil && len(points) == 0 {
		err = ErrNoData
	}
	if err != nil {
		res.Err = err
		span.RecordError(err)
		span.SetStatus(codes.Error, "no data")
		if ctx.Err() != nil {
			return res
		}
		if staleErr := s.repo.MarkStale(ctx, id); staleErr != nil {
			s.logger.Error("Mark stale failed", zap.String("series", id), zap.Error(staleErr))
		} else {
			res.Stale = true
		}
		metrics.ObserveMarketRefresh(id, "stale")
		s.logger.Warn("Series refresh returned no data", zap.String("series", id), zap.Error(err))
		return res
	}

	closes := dedupeNewestFirst(id, points)
	evicted, err := s.repo.UpsertDaily(ctx, id, closes, s.opts.WindowSize)
	if err != nil {
		res.Err = fmt.Errorf("store closes: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "store failed")
		metrics.ObserveMarketRefresh(id, "error")
		return res
	}
	latest := closes[0]
	if err := s.repo.UpsertLatest(ctx, store.Quote{
		Symbol: id,
		Value:  latest.Close,
		Unit:   s.opts.Unit,
		AsOf:   s.opts.Now(),
	}); err != nil {
		res.Err = fmt.Errorf("store latest: %w", err)
		metrics.ObserveMarketRefresh(id, "error")
		return res
	}

	res.Points = len(closes)
	res.Evicted = evicted
	res.Latest = latest.Close
	metrics.ObserveMarketRefresh(id, "ok")
	metrics.ObserveMarketWindow(id, evicted, latest.Close)
	s.logger.Debug("Series refreshed",
		zap.String("series", id),
		zap.Int("points", res.Points),
		zap.Int("evicted", evicted),
		zap.String("latest_date", latest.Date),
	)
	return res
}

// dedupeNewestFirst keeps the last close seen per date and sorts newest first.
func dedupeNewestFirst(symbol string, points []Point) []store.DailyClose {
	index := make(map[string]int, len(points))
	out := make([]store.DailyClose, 0, len(points))
	for _, p := range points {
		if i, dup := index[p.Date]; dup {
			out[i].Close = p.Close
			continue
		}
		index[p.Date] = len(out)
		out = append(out, store.DailyClose{Symbol: symbol, Date: p.Date, Close: p.Close})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	return out
}

// Dashboard is the JSON payload of /mercados/dashboard.json.
type Dashboard struct {
	Prices map[string]Price  `json:"prices"`
	Series map[string]Series `json:"series"`
}

// Dashboard returns the stored prices and windows of each comma separated
// symbol, keyed by the caller's raw spelling. Symbols without stored data, or
// whose quote is older than MaxAge, are refreshed live first.
func (s *Service) Dashboard(ctx context.Context, csv string) (Dashboard, error) {
	csv = strings.TrimSpace(csv)
	if csv == "" {
		csv = DefaultSymbols
	}
	if cached, ok := s.cache.Get(csv); ok {
		return cached.(Dashboard), nil
	}

	dash := Dashboard{Prices: map[string]Price{}, Series: map[string]Series{}}
	for _, raw := range SplitSymbols(csv) {
		id := NormalizeSeriesID(raw)
		if id == "" {
			dash.Prices[raw] = Price{}
			dash.Series[raw] = Series{Values: []Point{}}
			continue
		}
		closes, quote, err := s.stored(ctx, id)
		if err != nil {
			return Dashboard{}, err
		}
		if len(closes) == 0 || s.expired(quote) {
			s.refreshOne(ctx, id)
			if closes, quote, err = s.stored(ctx, id); err != nil {
				return Dashboard{}, err
			}
		}
		values := make([]Point, 0, len(closes))
		for _, c := range closes {
			values = append(values, Point{Date: c.Date, Close: c.Close})
		}
		dash.Series[raw] = Series{Values: values}
		if quote != nil {
			dash.Prices[raw] = Price{Price: FormatPrice(quote.Value)}
		} else {
			dash.Prices[raw] = Price{}
		}
	}
	if s.opts.CacheTTL > 0 {
		s.cache.SetDefault(csv, dash)
	}
	return dash, nil
}

// stored reads the window and latest quote of id; quote is nil when none exists.
func (s *Service) stored(ctx context.Context, id string) ([]store.DailyClose, *store.Quote, error) {
	closes, err := s.repo.ListDaily(ctx, id, s.opts.WindowSize)
	if err != nil {
		return nil, nil, fmt.Errorf("list closes %s: %w", id, err)
	}
	quote, err := s.repo.GetLatest(ctx, id)
	switch {
	case err == nil:
		return closes, &quote, nil
	case errors.Is(err, store.ErrNotFound):
		return closes, nil, nil
	default:
		return nil, nil, fmt.Errorf("latest quote %s: %w", id, err)
	}
}

func (s *Service) expired(q *store.Quote) bool {
	if s.opts.MaxAge <= 0 {
		return false
	}
	return q == nil || s.opts.Now().Sub(q.AsOf) > s.opts.MaxAge
}

// Note returns the markets commentary, creating the placeholder on first use.
func (s *Service) Note(ctx context.Context) (store.Note, error) {
	n, err := s.repo.EnsureNote(ctx, store.Note{Key: NoteKey, Content: InitialNote, UpdatedAt: s.opts.Now()})
	if err != nil {
		return store.Note{}, fmt.Errorf("load markets note: %w", err)
	}
	return n, nil
}

// UpdateNote replaces the commentary. Authorisation is the caller's concern.
func (s *Service) UpdateNote(ctx context.Context, author *store.User, content string) (store.Note, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return store.Note{}, ErrEmptyNote
	}
	n := store.Note{Key: NoteKey, Content: content, UpdatedAt: s.opts.Now()}
	if author != nil {
		id := author.ID
		n.AuthorID = &id
	}
	if err := s.repo.SaveNote(ctx, n); err != nil {
		return store.Note{}, fmt.Errorf("save markets note: %w", err)
	}
	s.logger.Info("Markets note updated", zap.Int64p("author_id", n.AuthorID))
	return n, nil
}
