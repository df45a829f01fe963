package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	ytdlp "github.com/lrstanley/go-ytdlp"
	"golang.org/x/time/rate"

	"github.com/sonroyaalmerol/cuebot/internal/cache"
	"github.com/sonroyaalmerol/cuebot/internal/faults"
	"github.com/sonroyaalmerol/cuebot/internal/logging"
)

// SearchFanout is how many results a search returns.
const SearchFanout = 5

// Runner performs the metadata lookups. Both methods return yt-dlp's stdout.
type Runner interface {
	DumpVideo(ctx context.Context, ref string) ([]byte, error)
	DumpSearch(ctx context.Context, target string) ([]byte, error)
}

// TrackLookup turns a reference to a third-party catalog entry into search
// text. ok is false when ref is not such a reference.
type TrackLookup interface {
	TrackQuery(ctx context.Context, ref string) (query string, ok bool, err error)
}

type Options struct {
	Executable string
	Timeout    time.Duration
	// Rate is lookups per second; zero disables throttling.
	Rate   float64
	Burst  int
	Tracks TrackLookup
	Runner Runner
	Logger *slog.Logger
	// CacheTTL keeps successful lookups for reuse; zero disables caching.
	CacheTTL  time.Duration
	CacheSize int
}

type Resolver struct {
	run     Runner
	limiter *rate.Limiter
	timeout time.Duration
	tracks  TrackLookup
	log     *slog.Logger

	videos   *cache.TTL[Video]
	searches *cache.TTL[[]Video]
}

func New(opts Options) *Resolver {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	run := opts.Runner
	if run == nil {
		run = &ytdlpRunner{exe: opts.Executable, log: log}
	}
	lim := rate.NewLimiter(rate.Inf, 1)
	if opts.Rate > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(opts.Rate), burst)
	}
	r := &Resolver{
		run:     run,
		limiter: lim,
		timeout: opts.Timeout,
		tracks:  opts.Tracks,
		log:     log,
	}
	if opts.CacheTTL > 0 {
		r.videos = cache.New[Video](opts.CacheTTL, opts.CacheSize)
		r.searches = cache.New[[]Video](opts.CacheTTL, opts.CacheSize)
	}
	return r
}

// ResolveByURL resolves a single playable item. Catalog references known to
// the TrackLookup are translated into a search and the top hit is used.
func (r *Resolver) ResolveByURL(ctx context.Context, ref string) (*Video, error) {
	if err := ValidateReference(ref); err != nil {
		return nil, err
	}
	if r.videos != nil {
		if v, ok := r.videos.Get(ref); ok {
			r.log.Debug("resolved from cache", "ref", ref)
			return &v, nil
		}
	}

	if r.tracks != nil {
		query, ok, err := r.tracks.TrackQuery(ctx, ref)
		if err != nil {
			return nil, faults.Wrap(faults.Resolve, "track lookup", err)
		}
		if ok {
			query = SanitizeQuery(query)
			r.log.Debug("resolving catalog track through search", "ref", ref, "query", query)
			res, err := r.Search(ctx, query)
			if err != nil {
				return nil, err
			}
			top := res.Entries[0]
			return &top, nil
		}
	}

	out, err := r.lookup(ctx, func(ctx context.Context) ([]byte, error) {
		return r.run.DumpVideo(ctx, ref)
	})
	if err != nil {
		return nil, err
	}

	parsed, err := Parse(out)
	if err != nil {
		return nil, faults.Wrap(faults.Resolve, "parse video", err)
	}
	v, ok := parsed.(*Video)
	if !ok {
		return nil, &faults.Error{Kind: faults.Resolve, Op: "resolve", Msg: "the URL is not a video", Err: fmt.Errorf("got %s", parsed.kind())}
	}
	if v.URL == "" {
		v.URL = ref
	}
	if v.Title == "" {
		v.Title = v.URL
	}
	if r.videos != nil {
		r.videos.Set(ref, *v)
	}
	return v, nil
}

func (r *Resolver) Search(ctx context.Context, query string) (*SearchResults, error) {
	if err := ValidateQuery(query); err != nil {
		return nil, err
	}
	if r.searches != nil {
		if entries, ok := r.searches.Get(query); ok {
			return &SearchResults{Query: query, Entries: append([]Video(nil), entries...)}, nil
		}
	}

	target := fmt.Sprintf("ytsearch%d:%s", SearchFanout, query)
	out, err := r.lookup(ctx, func(ctx context.Context) ([]byte, error) {
		return r.run.DumpSearch(ctx, target)
	})
	if err != nil {
		return nil, err
	}

	parsed, err := Parse(out)
	if err != nil {
		return nil, faults.Wrap(faults.Resolve, "parse search", err)
	}

	var res *SearchResults
	switch v := parsed.(type) {
	case *SearchResults:
		res = v
	case *Playlist:
		res = &SearchResults{Query: query, Entries: v.Entries}
	default:
		return nil, &faults.Error{Kind: faults.Resolve, Op: "search", Msg: "result is not a result set", Err: fmt.Errorf("got %s", parsed.kind())}
	}
	if len(res.Entries) == 0 {
		return nil, faults.New(faults.Resolve, "search", "no results")
	}
	if len(res.Entries) > SearchFanout {
		res.Entries = res.Entries[:SearchFanout]
	}
	res.Query = query
	if r.searches != nil {
		r.searches.Set(query, append([]Video(nil), res.Entries...))
	}
	return res, nil
}

func (r *Resolver) lookup(ctx context.Context, fn func(context.Context) ([]byte, error)) ([]byte, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, faults.Wrap(faults.Resolve, "rate limit", err)
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	out, err := fn(ctx)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, faults.Wrap(faults.Resolve, "yt-dlp", fmt.Errorf("timed out after %s: %w", r.timeout, err))
		}
		return nil, faults.Wrap(faults.Resolve, "yt-dlp", err)
	}
	if len(out) == 0 {
		return nil, faults.New(faults.Resolve, "yt-dlp", "no output")
	}
	return out, nil
}

type ytdlpRunner struct {
	exe string
	log *slog.Logger
}

func (r *ytdlpRunner) command() *ytdlp.Command {
	cmd := ytdlp.New()
	if r.exe != "" {
		cmd = cmd.SetExecutable(r.exe)
	}
	return cmd
}

func (r *ytdlpRunner) DumpVideo(ctx context.Context, ref string) ([]byte, error) {
	res, err := r.command().
		DumpJSON().
		NoPlaylist().
		Run(ctx, ref)
	return r.output(res, err)
}

func (r *ytdlpRunner) DumpSearch(ctx context.Context, target string) ([]byte, error) {
	res, err := r.command().
		DumpSingleJSON().
		FlatPlaylist().
		Run(ctx, target)
	return r.output(res, err)
}

func (r *ytdlpRunner) output(res *ytdlp.Result, err error) ([]byte, error) {
	if res != nil && res.Stderr != "" {
		w := logging.NewToolWriter(r.log, "yt-dlp")
		_, _ = w.Write([]byte(res.Stderr))
		w.Flush()
	}
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, errors.New("yt-dlp returned no result")
	}
	return []byte(res.Stdout), nil
}
