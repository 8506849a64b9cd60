package jsonfile_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/library-lending-simulation/circulation"
	"github.com/AntonStoeckl/library-lending-simulation/persistence"
	"github.com/AntonStoeckl/library-lending-simulation/persistence/jsonfile"
	. "github.com/AntonStoeckl/library-lending-simulation/testutil/helper" //nolint:revive
)

func givenStore(t *testing.T) *jsonfile.Store {
	t.Helper()

	store, err := jsonfile.NewStore(filepath.Join(t.TempDir(), "data", "inventory.json"))
	require.NoError(t, err, "error in arranging test data")

	return store
}

func givenSnapshot(t *testing.T, sequence uint64) circulation.InventorySnapshot {
	t.Helper()

	book := GivenBook(t, "Clean Code", "Robert C. Martin", 2)
	book.AvailableCopies = 1

	return circulation.InventorySnapshot{
		ID:             uuid.New(),
		SequenceNumber: sequence,
		TakenAt:        time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC),
		Books:          []circulation.Book{book},
		Loans:          map[string][]string{"P1": {book.ISBN}},
	}
}

func Test_Store_PersistThenLoad_ReturnsTheSnapshot(t *testing.T) {
	// arrange
	store := givenStore(t)
	snapshot := givenSnapshot(t, 3)

	// act
	persistErr := store.Persist(context.Background(), snapshot)
	loaded, loadErr := store.Load(context.Background())

	// assert
	require.NoError(t, persistErr)
	require.NoError(t, loadErr)
	assert.Equal(t, snapshot.ID, loaded.ID)
	assert.Equal(t, snapshot.SequenceNumber, loaded.SequenceNumber)
	assert.True(t, snapshot.TakenAt.Equal(loaded.TakenAt))
	assert.Equal(t, snapshot.Books, loaded.Books)
	assert.Equal(t, snapshot.Loans, loaded.Loans)
}

func Test_Store_Persist_ReplacesTheFileAndLeavesNoTempFiles(t *testing.T) {
	// arrange
	store := givenStore(t)
	require.NoError(t, store.Persist(context.Background(), givenSnapshot(t, 1)))
	newer := givenSnapshot(t, 2)

	// act
	err := store.Persist(context.Background(), newer)

	// assert
	require.NoError(t, err)
	loaded, loadErr := store.Load(context.Background())
	require.NoError(t, loadErr)
	assert.Equal(t, newer.ID, loaded.ID)

	entries, readErr := os.ReadDir(filepath.Dir(store.Path()))
	require.NoError(t, readErr)
	assert.Len(t, entries, 1, "only the snapshot file must remain")
}

func Test_Store_Persist_RejectsStaleSnapshots(t *testing.T) {
	// arrange
	store := givenStore(t)
	current := givenSnapshot(t, 5)
	require.NoError(t, store.Persist(context.Background(), current))

	// act
	err := store.Persist(context.Background(), givenSnapshot(t, 4))

	// assert
	assert.ErrorIs(t, err, persistence.ErrStaleSnapshot)
	loaded, loadErr := store.Load(context.Background())
	require.NoError(t, loadErr)
	assert.Equal(t, current.ID, loaded.ID)
}

func Test_Store_Persist_RejectsSnapshotsOlderThanAnEarlierStoresFile(t *testing.T) {
	// arrange
	path := filepath.Join(t.TempDir(), "inventory.json")
	earlier, err := jsonfile.NewStore(path)
	require.NoError(t, err)
	current := givenSnapshot(t, 10)
	require.NoError(t, earlier.Persist(context.Background(), current))

	later, err := jsonfile.NewStore(path)
	require.NoError(t, err)

	// act
	staleErr := later.Persist(context.Background(), givenSnapshot(t, 3))
	newer := givenSnapshot(t, 11)
	newerErr := later.Persist(context.Background(), newer)

	// assert
	assert.ErrorIs(t, staleErr, persistence.ErrStaleSnapshot)
	require.NoError(t, newerErr)
	loaded, loadErr := later.Load(context.Background())
	require.NoError(t, loadErr)
	assert.Equal(t, newer.ID, loaded.ID)
	assert.Equal(t, uint64(11), loaded.SequenceNumber)
}

func Test_Store_Persist_DoesNotOverwriteACorruptFile(t *testing.T) {
	// arrange
	store := givenStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(store.Path()), 0o755))
	require.NoError(t, os.WriteFile(store.Path(), []byte(`{"books": [`), 0o600))

	// act
	err := store.Persist(context.Background(), givenSnapshot(t, 1))

	// assert
	assert.ErrorIs(t, err, persistence.ErrSavingSnapshotFailed)
	assert.ErrorIs(t, err, persistence.ErrInvalidSnapshotJSON)
	data, readErr := os.ReadFile(store.Path())
	require.NoError(t, readErr)
	assert.Equal(t, `{"books": [`, string(data))
}

func Test_Store_Persist_WithCanceledContext(t *testing.T) {
	// arrange
	store := givenStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// act
	err := store.Persist(ctx, givenSnapshot(t, 1))

	// assert
	assert.ErrorIs(t, err, persistence.ErrSavingSnapshotFailed)
	assert.ErrorIs(t, err, context.Canceled)
}

func Test_Store_Load_WhenFileIsMissing(t *testing.T) {
	// arrange
	store := givenStore(t)

	// act
	_, err := store.Load(context.Background())
	seed, seedErr := store.LoadSeed(context.Background())

	// assert
	assert.ErrorIs(t, err, persistence.ErrSnapshotNotFound)
	require.NoError(t, seedErr)
	assert.Empty(t, seed)
}

func Test_Store_Load_WhenFileIsCorrupt(t *testing.T) {
	// arrange
	store := givenStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(store.Path()), 0o755))
	require.NoError(t, os.WriteFile(store.Path(), []byte(`{"books": [`), 0o600))

	// act
	_, err := store.Load(context.Background())

	// assert
	assert.ErrorIs(t, err, persistence.ErrLoadingSnapshotFailed)
	assert.ErrorIs(t, err, persistence.ErrInvalidSnapshotJSON)
}

func Test_Store_LoadSeed_RestoresAllCopies(t *testing.T) {
	// arrange
	store := givenStore(t)
	snapshot := givenSnapshot(t, 1)
	require.NoError(t, store.Persist(context.Background(), snapshot))

	// act
	seed, err := store.LoadSeed(context.Background())

	// assert
	require.NoError(t, err)
	require.Len(t, seed, 1)
	assert.Equal(t, snapshot.Books[0].ISBN, seed[0].ISBN)
	assert.Equal(t, 2, seed[0].Copies, "loans are not carried over, every copy is available again")
}

func Test_Store_AsPersister_ReceivesTheLatestSnapshotOnClose(t *testing.T) {
	// arrange
	store := givenStore(t)
	service := GivenLendingService(t, []circulation.Book{GivenBook(t, "Dune", "Frank Herbert", 1)},
		circulation.WithPersister(store),
	)
	GivenBorrowed(t, service, "Dune", "P1")

	// act
	require.NoError(t, service.Close(context.Background()))

	// assert
	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.LoansOutstanding())
	assert.Equal(t, service.Snapshot().SequenceNumber, loaded.SequenceNumber)
}

func Test_NewStore_RejectsEmptyPath(t *testing.T) {
	// act
	store, err := jsonfile.NewStore("")

	// assert
	assert.ErrorIs(t, err, circulation.ErrInvalidArgument)
	assert.Nil(t, store)
}
