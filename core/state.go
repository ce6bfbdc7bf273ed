package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultMaxDifficulty bounds difficulty changes when StateConfig leaves
// MaxDifficulty unset.
const DefaultMaxDifficulty = 7

// StateConfig configures a State.
type StateConfig struct {
	Blocks        int
	Genesis       Payload
	Difficulty    int
	MaxDifficulty int
	Algorithm     string
}

// State owns the chain on behalf of the controller. All chain access goes
// through it; searches run on their own goroutines over a preimage
// snapshot and are applied under the lock only if still current.
type State struct {
	mu      sync.Mutex
	cfg     StateConfig
	hasher  Hasher
	chain   *Chain
	version uint64
	jobs    map[int]*Job
	journal Journal
	logger  *slog.Logger
	wg      sync.WaitGroup

	subMu  sync.RWMutex
	subs   map[int]func(Snapshot)
	nextID int

	// Delivery is serialized: one caller drains pending while the others
	// only replace it, so subscribers see versions in increasing order.
	notifyMu   sync.Mutex
	pending    *Snapshot
	delivering bool
	sent       uint64
}

// NewState builds a State with a freshly initialized chain. journal and
// logger may be nil.
func NewState(cfg StateConfig, journal Journal, logger *slog.Logger) (*State, error) {
	if cfg.MaxDifficulty == 0 {
		cfg.MaxDifficulty = DefaultMaxDifficulty
	}
	if err := checkDifficulty(cfg.MaxDifficulty); err != nil {
		return nil, fmt.Errorf("max difficulty: %w", err)
	}
	cfg.Algorithm = strings.ToLower(strings.TrimSpace(cfg.Algorithm))
	if cfg.Algorithm == "" {
		cfg.Algorithm = HashSHA256
	}
	hasher, err := NewHasher(cfg.Algorithm)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &State{
		cfg:     cfg,
		hasher:  hasher,
		jobs:    make(map[int]*Job),
		journal: journal,
		logger:  logger,
		subs:    make(map[int]func(Snapshot)),
	}
	if err := s.checkBound(cfg.Difficulty); err != nil {
		return nil, err
	}
	chain, err := NewChain(cfg.Blocks, cfg.Genesis, cfg.Difficulty, WithHasher(hasher))
	if err != nil {
		return nil, err
	}
	s.chain = chain
	return s, nil
}

// Subscribe registers fn to receive snapshots produced by mutations, in
// increasing version order. A snapshot superseded while an earlier one is
// being delivered is skipped. fn runs outside the state lock and may call
// back into State.
func (s *State) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// Snapshot returns the current state without mutating it.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Reset discards the chain, the journal and every search in flight, and
// initializes a new chain from the configuration.
func (s *State) Reset() (Snapshot, error) {
	s.mu.Lock()
	chain, err := NewChain(s.cfg.Blocks, s.cfg.Genesis, s.cfg.Difficulty, WithHasher(s.hasher))
	if err != nil {
		s.mu.Unlock()
		return Snapshot{}, err
	}
	s.cancelFromLocked(0)
	s.chain = chain
	if s.journal != nil {
		if err := s.journal.Reset(); err != nil {
			s.logger.Warn("Failed to reset mining journal", "error", err)
		}
	}
	snap := s.commitLocked()
	blocks, difficulty := s.cfg.Blocks, s.cfg.Difficulty
	s.mu.Unlock()

	s.logger.Info("Chain reset", "blocks", blocks, "difficulty", difficulty)
	s.notify(snap)
	return snap, nil
}

// Edit applies one field edit from user input to the block at i.
func (s *State) Edit(i int, field, value string) (Snapshot, error) {
	return s.mutate(i, func() error {
		_, err := s.chain.EditField(i, field, value)
		return err
	})
}

// EditPayload replaces the payload of the block at i.
func (s *State) EditPayload(i int, p Payload) (Snapshot, error) {
	return s.mutate(i, func() error {
		_, err := s.chain.EditPayload(i, p)
		return err
	})
}

func (s *State) mutate(i int, fn func() error) (Snapshot, error) {
	s.mu.Lock()
	if err := fn(); err != nil {
		s.mu.Unlock()
		return Snapshot{}, err
	}
	// Blocks i.. now have new preimages.
	s.cancelFromLocked(i)
	snap := s.commitLocked()
	s.mu.Unlock()

	s.logger.Debug("Block edited", "chainIndex", i)
	s.notify(snap)
	return snap, nil
}

// SetDifficulty changes the difficulty used to judge and mine every block.
// Searches in flight are canceled.
func (s *State) SetDifficulty(difficulty int) (Snapshot, error) {
	if err := s.checkBound(difficulty); err != nil {
		return Snapshot{}, err
	}

	s.mu.Lock()
	if err := s.chain.SetDifficulty(difficulty); err != nil {
		s.mu.Unlock()
		return Snapshot{}, err
	}
	s.cfg.Difficulty = difficulty
	s.cancelFromLocked(0)
	snap := s.commitLocked()
	s.mu.Unlock()

	s.logger.Info("Difficulty changed", "difficulty", difficulty)
	s.notify(snap)
	return snap, nil
}

// Mine mines the block at i and blocks until the search completes, is
// superseded, or ctx is done.
func (s *State) Mine(ctx context.Context, i int) (Snapshot, error) {
	job, err := s.StartMine(i)
	if err != nil {
		return Snapshot{}, err
	}
	return job.Wait(ctx)
}

// StartMine starts a background search for the block at i, replacing any
// search already running for it.
func (s *State) StartMine(i int) (*Job, error) {
	s.mu.Lock()
	b, err := s.chain.Block(i)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if old := s.jobs[i]; old != nil {
		delete(s.jobs, i)
		old.cancel()
	}

	ctx, cancel := context.WithCancel(context.Background())
	job := &Job{index: i, cancel: cancel, done: make(chan struct{})}
	s.jobs[i] = job
	pre, difficulty := b.Preimage(), b.Difficulty()
	snap := s.commitLocked()
	s.wg.Add(1)
	s.mu.Unlock()

	s.logger.Debug("Mining started", "chainIndex", i, "difficulty", difficulty)
	s.notify(snap)
	go s.run(ctx, job, pre, difficulty)
	return job, nil
}

func (s *State) run(ctx context.Context, job *Job, pre Preimage, difficulty int) {
	defer s.wg.Done()
	proof, err := Search(ctx, s.hasher, pre, difficulty)

	s.mu.Lock()
	if s.jobs[job.index] != job {
		// Superseded: whoever removed the job already published a snapshot.
		snap := s.snapshotLocked()
		s.mu.Unlock()
		if err == nil {
			err = context.Canceled
		}
		s.logger.Debug("Mining canceled", "chainIndex", job.index)
		job.finish(snap, err)
		return
	}
	delete(s.jobs, job.index)
	job.cancel()

	if err == nil {
		_, err = s.chain.ApplyProof(job.index, proof)
	}
	if err == nil {
		// Every later block was relinked, so their searches are stale.
		s.cancelFromLocked(job.index + 1)
		s.record(job.index, pre.Index, proof)
	}
	snap := s.commitLocked()
	s.mu.Unlock()

	switch {
	case errors.Is(err, context.Canceled):
		s.logger.Debug("Mining canceled", "chainIndex", job.index)
	case err != nil:
		s.logger.Warn("Mining failed", "chainIndex", job.index, "error", err)
	default:
		s.logger.Info("Block mined",
			"chainIndex", job.index,
			"nonce", proof.Nonce,
			"hash", proof.Hash,
			"attempts", proof.Attempts,
			"elapsed", proof.Elapsed,
		)
	}
	// Subscribers are offered the result before waiters are released.
	s.notify(snap)
	job.finish(snap, err)
}

// Cancel stops the search for the block at i. It reports whether one was running.
func (s *State) Cancel(i int) bool {
	s.mu.Lock()
	job := s.jobs[i]
	if job == nil {
		s.mu.Unlock()
		return false
	}
	delete(s.jobs, i)
	job.cancel()
	snap := s.commitLocked()
	s.mu.Unlock()

	s.notify(snap)
	return true
}

// Stats summarizes the journal.
func (s *State) Stats() ([]DifficultyStats, error) {
	if s.journal == nil {
		return []DifficultyStats{}, nil
	}
	records, err := s.journal.Records()
	if err != nil {
		return nil, err
	}
	return Summarize(records), nil
}

// Close cancels every search and waits for the goroutines to exit.
func (s *State) Close() {
	s.mu.Lock()
	s.cancelFromLocked(0)
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *State) checkBound(difficulty int) error {
	if difficulty < 1 || difficulty > s.cfg.MaxDifficulty {
		return fmt.Errorf("%w: %d not in [1,%d]", ErrInvalidDifficulty, difficulty, s.cfg.MaxDifficulty)
	}
	return nil
}

func (s *State) cancelFromLocked(k int) {
	for i, job := range s.jobs {
		if i >= k {
			delete(s.jobs, i)
			job.cancel()
		}
	}
}

func (s *State) record(chainIndex, blockIndex int, p Proof) {
	if s.journal == nil {
		return
	}
	rec := MiningRecord{
		ChainIndex: chainIndex,
		BlockIndex: blockIndex,
		Nonce:      p.Nonce,
		Hash:       p.Hash,
		Difficulty: p.Difficulty,
		Attempts:   p.Attempts,
		Elapsed:    p.Elapsed,
		Algorithm:  s.cfg.Algorithm,
		At:         time.Now().UTC(),
	}
	if err := s.journal.Append(rec); err != nil {
		s.logger.Warn("Failed to record mining result", "chainIndex", chainIndex, "error", err)
	}
}

func (s *State) commitLocked() Snapshot {
	s.version++
	return s.snapshotLocked()
}

func (s *State) snapshotLocked() Snapshot {
	blocks := s.chain.Blocks()
	views := make([]BlockView, len(blocks))
	for i, b := range blocks {
		views[i] = b.View()
	}
	mining := make([]int, 0, len(s.jobs))
	for i := range s.jobs {
		mining = append(mining, i)
	}
	sort.Ints(mining)

	return Snapshot{
		Version:    s.version,
		Difficulty: s.cfg.Difficulty,
		Algorithm:  s.cfg.Algorithm,
		Blocks:     views,
		Validity:   s.chain.Validate(),
		Mining:     mining,
	}
}

func (s *State) notify(snap Snapshot) {
	s.notifyMu.Lock()
	if snap.Version <= s.sent || (s.pending != nil && snap.Version <= s.pending.Version) {
		s.notifyMu.Unlock()
		return
	}
	s.pending = &snap
	if s.delivering {
		s.notifyMu.Unlock()
		return
	}
	s.delivering = true
	for s.pending != nil {
		next := *s.pending
		s.pending = nil
		s.sent = next.Version
		s.notifyMu.Unlock()
		s.deliver(next)
		s.notifyMu.Lock()
	}
	s.delivering = false
	s.notifyMu.Unlock()
}

func (s *State) deliver(snap Snapshot) {
	s.subMu.RLock()
	subs := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subMu.RUnlock()

	for _, fn := range subs {
		fn(snap)
	}
}

// Job is a background search started by StartMine.
type Job struct {
	index  int
	cancel context.CancelFunc
	done   chan struct{}
	snap   Snapshot
	err    error
}

func (j *Job) Index() int { return j.index }

// Done is closed when the search has finished, failed or been canceled.
func (j *Job) Done() <-chan struct{} { return j.done }

// Cancel stops the search. It does not wait.
func (j *Job) Cancel() { j.cancel() }

// Result returns the snapshot after the job and its error. It is only
// meaningful once Done is closed.
func (j *Job) Result() (Snapshot, error) {
	return j.snap, j.err
}

// Wait blocks until the job finishes. If ctx is done first the job is
// canceled and ctx's error returned.
func (j *Job) Wait(ctx context.Context) (Snapshot, error) {
	select {
	case <-j.done:
		return j.Result()
	case <-ctx.Done():
		j.cancel()
		<-j.done
		snap, err := j.Result()
		if err == nil {
			return snap, nil
		}
		if errors.Is(err, context.Canceled) {
			return snap, ctx.Err()
		}
		return snap, err
	}
}

func (j *Job) finish(snap Snapshot, err error) {
	j.snap = snap
	j.err = err
	close(j.done)
}
