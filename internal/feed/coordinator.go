package feed

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

type Action string

const (
	ActionRequeue Action = "requeue"
	ActionRetry   Action = "retry"
	ActionCancel  Action = "cancel"
)

type ActionClient interface {
	QueueAction(ctx context.Context, action Action, docID string) error
}

type SnapshotClient interface {
	ListQueue(ctx context.Context) ([]Envelope, error)
}

type Notifier interface {
	Success(message string)
	Error(message string)
}

type ConfirmFunc func(prompt string) bool

type Logger interface {
	Printf(format string, args ...any)
}

type noopNotifier struct{}

func (noopNotifier) Success(message string) {}
func (noopNotifier) Error(message string)   {}

type CoordinatorOptions struct {
	StoreCap  int
	Actions   ActionClient
	Snapshots SnapshotClient
	Notifier  Notifier
	Confirm   ConfirmFunc
	Logger    Logger
}

type pendingKey struct {
	Action Action
	Doc    string
}

// Coordinator owns the merge store for one mounted view: it applies push
// events, runs the optimistic action protocol, and derives the read-only
// values the presentation layer renders.
type Coordinator struct {
	mu        sync.Mutex
	store     *Store
	pending   map[pendingKey]struct{}
	criteria  Criteria
	stats     Stats
	actions   ActionClient
	snapshots SnapshotClient
	notifier  Notifier
	confirm   ConfirmFunc
	logger    Logger
}

func NewCoordinator(opts CoordinatorOptions) *Coordinator {
	notifier := opts.Notifier
	if notifier == nil {
		notifier = noopNotifier{}
	}
	confirm := opts.Confirm
	if confirm == nil {
		confirm = func(string) bool { return true }
	}
	return &Coordinator{
		store:     NewStore(opts.StoreCap),
		pending:   map[pendingKey]struct{}{},
		actions:   opts.Actions,
		snapshots: opts.Snapshots,
		notifier:  notifier,
		confirm:   confirm,
		logger:    opts.Logger,
	}
}

func (c *Coordinator) LoadSnapshot(ctx context.Context) error {
	if c.snapshots == nil {
		return fmt.Errorf("%w: no snapshot client configured", ErrInvalidInput)
	}
	records, err := c.snapshots.ListQueue(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.Restore(nil)
	for i := len(records) - 1; i >= 0; i-- {
		c.store.Upsert(records[i])
	}
	c.stats = Aggregate(c.store.List())
	return nil
}

func (c *Coordinator) ApplyEvent(env Envelope) {
	if env.Ref.Doc == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.Upsert(env)
	c.stats = Aggregate(c.store.List())
}

func (c *Coordinator) Requeue(ctx context.Context, doc string) error {
	return c.run(ctx, ActionRequeue, doc)
}

func (c *Coordinator) Retry(ctx context.Context, doc string) error {
	return c.run(ctx, ActionRetry, doc)
}

func (c *Coordinator) Cancel(ctx context.Context, doc string) error {
	return c.run(ctx, ActionCancel, doc)
}

func (c *Coordinator) run(ctx context.Context, action Action, doc string) error {
	doc = strings.TrimSpace(doc)
	if doc == "" {
		return fmt.Errorf("%w: missing document id", ErrInvalidInput)
	}
	if c.actions == nil {
		return fmt.Errorf("%w: no action client configured", ErrInvalidInput)
	}
	if action == ActionCancel {
		if !c.confirm(fmt.Sprintf("Cancel processing for document %s?", doc)) {
			return ErrDeclined
		}
	}

	key := pendingKey{Action: action, Doc: doc}
	c.mu.Lock()
	if _, inflight := c.pending[key]; inflight {
		c.mu.Unlock()
		return nil
	}
	c.pending[key] = struct{}{}
	snapshot := c.store.Snapshot()
	switch action {
	case ActionRequeue:
		c.store.Upsert(provisionalEnvelope(doc, KindQueued, map[string]any{
			AttrRequeued: true,
			AttrFilename: "Requeueing " + shortDoc(doc) + "...",
		}))
	case ActionRetry:
		c.store.Upsert(provisionalEnvelope(doc, KindProcessing, map[string]any{
			AttrRetrying: true,
			AttrFilename: "Retrying " + shortDoc(doc) + "...",
		}))
	case ActionCancel:
		c.store.RemoveDoc(doc)
	}
	c.stats = Aggregate(c.store.List())
	c.mu.Unlock()

	err := c.actions.QueueAction(ctx, action, doc)

	c.mu.Lock()
	if err != nil {
		c.store.Restore(snapshot)
		c.stats = Aggregate(c.store.List())
	}
	delete(c.pending, key)
	c.mu.Unlock()

	if err != nil {
		c.logf("queue action %s %s failed: %v", action, doc, err)
		c.notifier.Error(failureMessage(action, err))
		return err
	}
	c.notifier.Success(successMessage(action))
	return nil
}

func (c *Coordinator) SetFilter(criteria Criteria) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.criteria = criteria
}

func (c *Coordinator) Criteria() Criteria {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.criteria
}

func (c *Coordinator) Records() []Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.List()
}

func (c *Coordinator) Filtered() []Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ApplyFilter(c.store.List(), c.criteria)
}

func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *Coordinator) IsPending(action Action, doc string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, inflight := c.pending[pendingKey{Action: action, Doc: doc}]
	return inflight
}

func (c *Coordinator) PendingDocs(action Action) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	docs := make([]string, 0, len(c.pending))
	for key := range c.pending {
		if key.Action == action {
			docs = append(docs, key.Doc)
		}
	}
	return docs
}

func (c *Coordinator) logf(format string, args ...any) {
	if c.logger == nil {
		return
	}
	c.logger.Printf(format, args...)
}

func provisionalEnvelope(doc string, kind Kind, attributes map[string]any) Envelope {
	return Envelope{
		Ref:        Ref{Doc: doc, Provisional: true},
		Kind:       kind,
		Timestamp:  time.Now().UTC(),
		Priority:   PriorityNormal,
		Attributes: attributes,
	}
}

func shortDoc(doc string) string {
	if len(doc) <= 6 {
		return doc
	}
	return doc[len(doc)-6:]
}

func successMessage(action Action) string {
	switch action {
	case ActionRequeue:
		return "Document requeued successfully"
	case ActionRetry:
		return "Document retry started"
	default:
		return "Document cancelled"
	}
}

func failureMessage(action Action, err error) string {
	if err != nil {
		if message := strings.TrimSpace(err.Error()); message != "" {
			return message
		}
	}
	switch action {
	case ActionRequeue:
		return "Failed to requeue document"
	case ActionRetry:
		return "Failed to retry document"
	default:
		return "Failed to cancel document"
	}
}
