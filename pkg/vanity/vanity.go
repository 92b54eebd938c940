package vanity

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// Default progress cadence: every 500 attempts or every 500ms, whichever first.
const (
	DefaultProgressEvery    = 500
	DefaultProgressInterval = 500 * time.Millisecond

	// maxAddressLen is the longest base58 encoding of a 32-byte key.
	maxAddressLen = 44
)

// Outcome tags a search result.
type Outcome int

const (
	NotFound Outcome = iota
	Exact
	BestPartial
)

func (o Outcome) String() string {
	switch o {
	case Exact:
		return "exact"
	case BestPartial:
		return "best-partial"
	default:
		return "not-found"
	}
}

// Result holds the outcome of a search. PrivateKey and PublicKey are zero when
// Outcome is NotFound.
type Result struct {
	Outcome    Outcome
	PrivateKey solana.PrivateKey
	PublicKey  solana.PublicKey
	Address    string
	// MatchedLen is how many leading suffix characters the address ends with.
	MatchedLen int
	Attempts   uint64
	Duration   time.Duration
}

// Found reports whether the result carries a usable key.
func (r *Result) Found() bool {
	return r != nil && r.Outcome != NotFound
}

// Progress is a periodic snapshot of a running search.
type Progress struct {
	Suffix      string
	Attempts    uint64
	Elapsed     time.Duration
	Rate        float64
	BestPartial string
	BestEffort  bool
}

func (p Progress) String() string {
	if !p.BestEffort {
		return fmt.Sprintf("Searching for address ending with %q... %d attempts (%.1fs)",
			p.Suffix, p.Attempts, p.Elapsed.Seconds())
	}
	best := p.BestPartial
	if best == "" {
		best = "none"
	}
	return fmt.Sprintf("Searching for address ending with %q... %d attempts (%.1fs, %.0f/s), best match: %s",
		p.Suffix, p.Attempts, p.Elapsed.Seconds(), p.Rate, best)
}

// Options configures a vanity search.
type Options struct {
	Suffix  string
	Timeout time.Duration
	Workers int // defaults to runtime.NumCPU()

	// CaseSensitive disables the default lowercase comparison.
	CaseSensitive bool
	// BestEffort returns the longest partial suffix match on timeout instead of NotFound.
	BestEffort bool

	ProgressEvery    uint64
	ProgressInterval time.Duration
	// OnProgress is called from a single goroutine and never after Search returns.
	OnProgress func(Progress)

	// KeyGen replaces solana.NewRandomPrivateKey. It must be safe for concurrent use.
	KeyGen func() (solana.PrivateKey, error)
}

// ErrCancelled is returned when the caller's context ends before the search does.
var ErrCancelled = errors.New("vanity search cancelled")

// Search generates keypairs until one's address ends with opts.Suffix or the
// timeout elapses. Running out of time is not an error: the result is tagged
// NotFound (or BestPartial with BestEffort). Cancelling ctx returns the partial
// result along with an error wrapping ErrCancelled and ctx.Err().
func Search(ctx context.Context, opts Options) (*Result, error) {
	start := time.Now()
	target := opts.Suffix
	if !opts.CaseSensitive {
		target = strings.ToLower(target)
	}
	if !ValidSuffix(opts.Suffix, opts.CaseSensitive) {
		return &Result{Outcome: NotFound}, nil
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	every := opts.ProgressEvery
	if every == 0 {
		every = DefaultProgressEvery
	}
	interval := opts.ProgressInterval
	if interval <= 0 {
		interval = DefaultProgressInterval
	}
	keygen := opts.KeyGen
	if keygen == nil {
		keygen = solana.NewRandomPrivateKey
	}

	var (
		searchCtx context.Context
		cancel    context.CancelFunc
	)
	if opts.Timeout > 0 {
		searchCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
	} else {
		searchCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	s := &search{
		target:        target,
		caseSensitive: opts.CaseSensitive,
		bestEffort:    opts.BestEffort,
		keygen:        keygen,
		every:         every,
		nudge:         make(chan struct{}, 1),
		cancel:        cancel,
	}

	var reporter sync.WaitGroup
	reportDone := make(chan struct{})
	if opts.OnProgress != nil {
		reporter.Add(1)
		go func() {
			defer reporter.Done()
			s.report(reportDone, start, interval, opts)
		}()
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.work(searchCtx)
		}()
	}
	wg.Wait()
	close(reportDone)
	reporter.Wait()

	res := s.result(time.Since(start))
	if s.keyErr != nil && !res.Found() {
		return res, fmt.Errorf("generate keypair: %w", s.keyErr)
	}
	if res.Outcome != Exact && ctx.Err() != nil {
		return res, fmt.Errorf("%w after %d attempts: %w", ErrCancelled, res.Attempts, ctx.Err())
	}
	return res, nil
}

type search struct {
	target        string
	caseSensitive bool
	bestEffort    bool
	keygen        func() (solana.PrivateKey, error)
	every         uint64
	nudge         chan struct{}
	cancel        context.CancelFunc

	attempts atomic.Uint64
	found    atomic.Bool
	bestLen  atomic.Int64

	mu      sync.Mutex
	exact   *candidate
	best    *candidate
	keyErr  error
	errOnce sync.Once
}

type candidate struct {
	key     solana.PrivateKey
	pub     solana.PublicKey
	address string
	matched int
}

func (s *search) work(ctx context.Context) {
	var local uint64
	for {
		if s.found.Load() {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}

		key, err := s.keygen()
		if err != nil {
			s.errOnce.Do(func() {
				s.mu.Lock()
				s.keyErr = err
				s.mu.Unlock()
				s.cancel()
			})
			return
		}
		s.attempts.Add(1)
		local++

		pub := key.PublicKey()
		address := pub.String()
		cmp := address
		if !s.caseSensitive {
			cmp = strings.ToLower(address)
		}

		if strings.HasSuffix(cmp, s.target) {
			if s.found.CompareAndSwap(false, true) {
				s.mu.Lock()
				s.exact = &candidate{key: key, pub: pub, address: address, matched: len(s.target)}
				s.mu.Unlock()
				s.cancel()
			}
			return
		}

		if s.bestEffort {
			if n := PartialMatch(cmp, s.target); n > 0 && int64(n) > s.bestLen.Load() {
				s.recordBest(key, pub, address, n)
			}
		}

		if local%s.every == 0 {
			select {
			case s.nudge <- struct{}{}:
			default:
			}
			runtime.Gosched()
		}
	}
}

func (s *search) recordBest(key solana.PrivateKey, pub solana.PublicKey, address string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.best != nil && s.best.matched >= n {
		return
	}
	s.best = &candidate{key: key, pub: pub, address: address, matched: n}
	s.bestLen.Store(int64(n))
}

func (s *search) snapshot(start time.Time, opts Options) Progress {
	elapsed := time.Since(start)
	attempts := s.attempts.Load()
	p := Progress{
		Suffix:     opts.Suffix,
		Attempts:   attempts,
		Elapsed:    elapsed,
		BestEffort: opts.BestEffort,
	}
	if secs := elapsed.Seconds(); secs > 0 {
		p.Rate = float64(attempts) / secs
	}
	s.mu.Lock()
	if s.best != nil {
		p.BestPartial = s.best.address[len(s.best.address)-s.best.matched:]
	}
	s.mu.Unlock()
	return p
}

// report emits a snapshot on every interval tick and whenever a worker crosses
// an attempt boundary. Snapshots without new attempts are dropped.
func (s *search) report(done <-chan struct{}, start time.Time, interval time.Duration, opts Options) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	var last uint64
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
		case <-s.nudge:
		}
		p := s.snapshot(start, opts)
		if p.Attempts == last {
			continue
		}
		last = p.Attempts
		opts.OnProgress(p)
	}
}

func (s *search) result(elapsed time.Duration) *Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := &Result{
		Outcome:  NotFound,
		Attempts: s.attempts.Load(),
		Duration: elapsed,
	}
	c := s.exact
	if c != nil {
		res.Outcome = Exact
	} else if s.bestEffort && s.best != nil {
		c = s.best
		res.Outcome = BestPartial
	}
	if c != nil {
		res.PrivateKey = c.key
		res.PublicKey = c.pub
		res.Address = c.address
		res.MatchedLen = c.matched
	}
	return res
}

// PartialMatch returns the length of the longest proper prefix of target that
// address ends with. Both strings are compared as given.
func PartialMatch(address, target string) int {
	for n := len(target) - 1; n > 0; n-- {
		if strings.HasSuffix(address, target[:n]) {
			return n
		}
	}
	return 0
}

// ValidSuffix reports whether suffix can ever match a base58 address. In
// case-insensitive mode a character is valid if either case is in the alphabet.
func ValidSuffix(suffix string, caseSensitive bool) bool {
	if suffix == "" || len(suffix) > maxAddressLen {
		return false
	}
	for _, r := range suffix {
		if r > 127 {
			return false
		}
		if caseSensitive {
			if !inAlphabet(string(r)) {
				return false
			}
			continue
		}
		if !inAlphabet(strings.ToLower(string(r))) && !inAlphabet(strings.ToUpper(string(r))) {
			return false
		}
	}
	return true
}

// inAlphabet relies on the decoder rejecting any character outside the
// Bitcoin base58 alphabet that Solana uses.
func inAlphabet(ch string) bool {
	_, err := base58.Decode(ch)
	return err == nil
}

// EstimateDifficulty returns the expected number of attempts to match a suffix
// of the given length. Case-insensitive matching roughly doubles the hit rate
// per letter, approximated as 34 distinct lowercase symbols.
func EstimateDifficulty(suffixLen int, caseSensitive bool) uint64 {
	base := 34.0
	if caseSensitive {
		base = 58.0
	}
	est := math.Pow(base, float64(suffixLen))
	if est >= math.MaxUint64 {
		return math.MaxUint64
	}
	return uint64(est)
}
