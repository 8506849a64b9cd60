package circulation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultPersistTimeout = 5 * time.Second

// InventorySnapshot is the point-in-time state handed to a Persister.
// SequenceNumber increases with every mutation of the LendingService, so stores can discard
// snapshots that arrive out of order.
type InventorySnapshot struct {
	ID             uuid.UUID           `json:"id"`
	SequenceNumber uint64              `json:"sequence_number"`
	TakenAt        time.Time           `json:"taken_at"`
	Books          []Book              `json:"books"`
	Loans          map[string][]string `json:"loans"`
}

// LoansOutstanding returns the number of loans recorded in the snapshot.
func (s InventorySnapshot) LoansOutstanding() int {
	count := 0
	for _, held := range s.Loans {
		count += len(held)
	}

	return count
}

// SeedRecords converts the snapshot into seed records with all copies available.
// Loans belong to the patrons of one run and are not carried over.
func (s InventorySnapshot) SeedRecords() []SeedRecord {
	records := make([]SeedRecord, 0, len(s.Books))
	for _, book := range s.Books {
		records = append(records, SeedRecord{
			Title:           book.Title,
			Author:          book.Author,
			ISBN:            book.ISBN,
			Copies:          book.TotalCopies,
			PublicationYear: book.PublicationYear,
		})
	}

	return records
}

// SeedRecord is one catalogue entry used to populate the inventory at startup.
type SeedRecord struct {
	Title           string `json:"title"`
	Author          string `json:"author"`
	ISBN            string `json:"isbn"`
	Copies          int    `json:"copies"`
	PublicationYear int    `json:"publication_year,omitempty"`
}

// Book converts the record into a Book with all copies available.
func (r SeedRecord) Book() (Book, error) {
	return NewBook(r.ISBN, r.Title, r.Author, r.PublicationYear, r.Copies)
}

// Persister receives inventory snapshots. Implementations may block on I/O, they are never
// called while the lending lock is held.
type Persister interface {
	Persist(ctx context.Context, snapshot InventorySnapshot) error
}

// PersisterFunc adapts a function to the Persister interface.
type PersisterFunc func(ctx context.Context, snapshot InventorySnapshot) error

// Persist calls f(ctx, snapshot).
func (f PersisterFunc) Persist(ctx context.Context, snapshot InventorySnapshot) error {
	return f(ctx, snapshot)
}

// persistenceWorker runs the Persister on a single goroutine. Notifications coalesce: the worker
// takes one fresh snapshot per wake-up, so a slow Persister only ever sees the latest state.
type persistenceWorker struct {
	service  *LendingService
	dirty    chan struct{}
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	// owned by the run goroutine
	lastPersisted uint64
	hasPersisted  bool
}

func newPersistenceWorker(service *LendingService) *persistenceWorker {
	return &persistenceWorker{
		service: service,
		dirty:   make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (w *persistenceWorker) start() {
	go w.run()
}

// notify marks the inventory as changed without blocking.
func (w *persistenceWorker) notify() {
	select {
	case w.dirty <- struct{}{}:
	default:
	}
}

func (w *persistenceWorker) run() {
	defer close(w.done)

	for {
		select {
		case <-w.dirty:
			w.persistLatest()

		case <-w.stop:
			select {
			case <-w.dirty:
				w.persistLatest()
			default:
			}

			return
		}
	}
}

func (w *persistenceWorker) persistLatest() {
	ctx, cancel := context.WithTimeout(context.Background(), defaultPersistTimeout)
	defer cancel()

	snapshot := w.service.Snapshot()
	if w.hasPersisted && snapshot.SequenceNumber == w.lastPersisted {
		return
	}

	start := time.Now()
	err := w.service.persister.Persist(ctx, snapshot)
	duration := time.Since(start)

	w.service.observePersist(ctx, snapshot, duration, err)

	if err == nil {
		w.lastPersisted = snapshot.SequenceNumber
		w.hasPersisted = true
	}
}

// close stops the worker after a final flush and waits for it, bounded by ctx.
func (w *persistenceWorker) close(ctx context.Context) error {
	w.stopOnce.Do(func() {
		close(w.stop)
	})

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *LendingService) observePersist(ctx context.Context, snapshot InventorySnapshot, duration time.Duration, err error) {
	status := statusSuccess
	if err != nil {
		status = statusError
	}

	s.recordDuration(ctx, metricPersistDuration, duration, map[string]string{
		spanAttrOperation: operationPersist,
		labelStatus:       status,
	})

	if err != nil {
		s.incrementCounter(ctx, metricPersistFailures, map[string]string{spanAttrErrorType: errorTypePersistFailed})
		s.logError(ctx, logMsgSnapshotPersistFail, err, logAttrSequence, snapshot.SequenceNumber)

		return
	}

	s.logDebug(ctx, logMsgSnapshotPersisted,
		logAttrSequence, snapshot.SequenceNumber,
		logAttrBookCount, len(snapshot.Books),
		logAttrDurationMS, toMilliseconds(duration),
	)
}
