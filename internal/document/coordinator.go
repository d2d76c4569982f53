// Package document implements the per-document consistency core: a
// single-writer coordinator that serializes edits, transforms stale client
// operations against committed history, persists every commit to the event
// log before applying it, and publishes committed updates for fan-out.
package document

import (
	"context"
	"fmt"
	"log"
	"sync"

	"collabtext/internal/notify"
	"collabtext/internal/ot"
	"collabtext/internal/storage"
)

// Options tunes a coordinator. Zero values fall back to the defaults.
type Options struct {
	// HistoryWindow is how many recent records are retained for
	// transforming stale submissions.
	HistoryWindow int
	// SnapshotEvery is how many commits pass between snapshots.
	SnapshotEvery int
}

const (
	defaultHistoryWindow = 100
	defaultSnapshotEvery = 100
)

func (o Options) withDefaults() Options {
	if o.HistoryWindow <= 0 {
		o.HistoryWindow = defaultHistoryWindow
	}
	if o.SnapshotEvery <= 0 {
		o.SnapshotEvery = defaultSnapshotEvery
	}
	return o
}

// SubmitRequest is one client edit, issued against ClientVersion.
type SubmitRequest struct {
	Op            ot.Operation
	ClientID      string
	ClientVersion int
	RequestID     string
}

// Commit is the outcome of a successful Submit.
type Commit struct {
	Op         ot.Operation
	NewContent string
	NewVersion int
}

// State is the authoritative document content and version.
type State struct {
	Content string
	Version int
}

type submitCmd struct {
	req   SubmitRequest
	reply chan submitResult
}

type submitResult struct {
	commit Commit
	err    error
}

type stateCmd struct {
	reply chan State
}

// Coordinator owns one document's state and history window. All access goes
// through its single worker goroutine, so commands execute strictly one at
// a time in arrival order and transforms are deterministic.
type Coordinator struct {
	docID string
	store storage.EventStore
	pub   notify.Publisher
	opts  Options

	cmds      chan interface{}
	done      chan struct{}
	closeOnce sync.Once

	// Owned by the worker goroutine after recovery.
	content       string
	version       int
	history       []storage.Record
	logPos        int64
	sinceSnapshot int
}

// NewCoordinator recovers the document from the store (latest snapshot plus
// replay) and starts the worker. The history window starts empty after
// recovery; only post-recovery commits populate it.
func NewCoordinator(ctx context.Context, docID string, store storage.EventStore, pub notify.Publisher, opts Options) (*Coordinator, error) {
	c := &Coordinator{
		docID: docID,
		store: store,
		pub:   pub,
		opts:  opts.withDefaults(),
		// Unbuffered: acceptance is the handoff to the worker, so a closed
		// coordinator can never swallow commands into a dead queue.
		cmds: make(chan interface{}),
		done: make(chan struct{}),
	}
	if err := c.recover(ctx); err != nil {
		return nil, fmt.Errorf("recover document %s: %w", docID, err)
	}
	go c.run()
	return c, nil
}

func (c *Coordinator) recover(ctx context.Context) error {
	snap, err := c.store.LoadLatestSnapshot(ctx, c.docID)
	if err != nil {
		return err
	}
	if snap != nil {
		c.content, c.version, c.logPos = snap.Content, snap.Version, snap.LogPos
	}
	recs, err := c.store.ReplayEventsSince(ctx, c.docID, c.logPos)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		applied, err := rec.Op.Apply(c.content)
		if err != nil {
			// A corrupt historical record must not stall recovery. Skip
			// its effect but still adopt its version so numbering stays
			// aligned with the log.
			log.Printf("document %s: skipping invalid record v%d during replay: %v", c.docID, rec.NewVersion, err)
		} else {
			c.content = applied
		}
		c.version = rec.NewVersion
		c.logPos = rec.LogPos
	}
	return nil
}

// Submit queues the edit and waits for its outcome. Once accepted the
// command runs to completion even if ctx expires first; a ctx timeout means
// "unknown outcome", not rejection.
func (c *Coordinator) Submit(ctx context.Context, req SubmitRequest) (Commit, error) {
	cmd := submitCmd{req: req, reply: make(chan submitResult, 1)}
	select {
	case c.cmds <- cmd:
	case <-c.done:
		return Commit{}, ErrClosed
	case <-ctx.Done():
		return Commit{}, ctx.Err()
	}
	select {
	case res := <-cmd.reply:
		return res.commit, res.err
	case <-ctx.Done():
		return Commit{}, ctx.Err()
	}
}

// GetState returns the current content and version from memory, in the
// worker's serial order. It never touches persistence.
func (c *Coordinator) GetState(ctx context.Context) (State, error) {
	cmd := stateCmd{reply: make(chan State, 1)}
	select {
	case c.cmds <- cmd:
	case <-c.done:
		return State{}, ErrClosed
	case <-ctx.Done():
		return State{}, ctx.Err()
	}
	select {
	case st := <-cmd.reply:
		return st, nil
	case <-ctx.Done():
		return State{}, ctx.Err()
	}
}

// Close stops the worker after the in-flight command finishes. Further
// commands fail with ErrClosed.
func (c *Coordinator) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Coordinator) run() {
	for {
		select {
		case <-c.done:
			return
		case cmd := <-c.cmds:
			switch cmd := cmd.(type) {
			case submitCmd:
				commit, err := c.handleSubmit(cmd.req)
				cmd.reply <- submitResult{commit: commit, err: err}
			case stateCmd:
				cmd.reply <- State{Content: c.content, Version: c.version}
			}
		}
	}
}

// handleSubmit runs the commit protocol: transform against unseen history,
// validate against current content, durably append, then apply in memory
// and publish.
func (c *Coordinator) handleSubmit(req SubmitRequest) (Commit, error) {
	op := req.Op
	cur := c.version

	switch {
	case req.ClientVersion == cur:
		// Parented off the current state; nothing to transform against.
	case req.ClientVersion > cur:
		return Commit{}, fmt.Errorf("%w: client at v%d, server at v%d", ErrStaleVersion, req.ClientVersion, cur)
	default:
		transformed, err := c.transformAgainstHistory(op, req.ClientVersion)
		if err != nil {
			return Commit{}, err
		}
		op = transformed
	}

	if err := op.Validate(c.content); err != nil {
		return Commit{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	rec := storage.Record{
		Op:            op,
		NewVersion:    cur + 1,
		ClientID:      req.ClientID,
		ClientVersion: req.ClientVersion,
		RequestID:     req.RequestID,
	}
	// Durable before visible: the append must succeed before any in-memory
	// mutation, so a crash can never leave memory ahead of the log.
	pos, err := c.store.AppendEvent(context.Background(), c.docID, rec)
	if err != nil {
		return Commit{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	rec.LogPos = pos

	applied, err := op.Apply(c.content)
	if err != nil {
		// Validate already passed; this cannot happen with a correct op set.
		return Commit{}, fmt.Errorf("%w: apply after validate: %v", ErrUnsupportedOperation, err)
	}
	c.content = applied
	c.version = cur + 1
	c.logPos = pos

	c.history = append(c.history, rec)
	if len(c.history) > c.opts.HistoryWindow {
		c.history = c.history[len(c.history)-c.opts.HistoryWindow:]
	}

	c.sinceSnapshot++
	if c.sinceSnapshot >= c.opts.SnapshotEvery {
		c.saveSnapshot()
	}

	c.publish(op)

	return Commit{Op: op, NewContent: c.content, NewVersion: c.version}, nil
}

// transformAgainstHistory adjusts op against every committed record newer
// than baseVersion, oldest first, stopping early once op annihilates.
func (c *Coordinator) transformAgainstHistory(op ot.Operation, baseVersion int) (ot.Operation, error) {
	if len(c.history) == 0 || c.history[0].NewVersion > baseVersion+1 {
		return ot.Operation{}, fmt.Errorf("%w: v%d predates retained history", ErrStaleVersion, baseVersion)
	}
	for _, rec := range c.history {
		if rec.NewVersion <= baseVersion {
			continue
		}
		next, err := ot.Transform(op, rec.Op)
		if err != nil {
			return ot.Operation{}, fmt.Errorf("%w: %v", ErrUnsupportedOperation, err)
		}
		op = next
		if op.IsNoop() {
			// Absorbing: no further record can change it.
			break
		}
	}
	return op, nil
}

func (c *Coordinator) saveSnapshot() {
	snap := storage.Snapshot{Content: c.content, Version: c.version, LogPos: c.logPos}
	if err := c.store.SaveSnapshot(context.Background(), c.docID, snap); err != nil {
		// Snapshots only bound recovery cost; a miss is not a commit failure.
		log.Printf("document %s: snapshot at v%d failed: %v", c.docID, c.version, err)
		return
	}
	c.sinceSnapshot = 0
}

func (c *Coordinator) publish(op ot.Operation) {
	u := notify.Update{
		DocID:      c.docID,
		Op:         &op,
		NewContent: c.content,
		NewVersion: c.version,
	}
	if err := c.pub.Publish(context.Background(), u); err != nil {
		log.Printf("document %s: publish v%d failed: %v", c.docID, c.version, err)
	}
}
