package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/YuminosukeSato/stepwise/core/model"
	sfoerrors "github.com/YuminosukeSato/stepwise/pkg/errors"
	"github.com/YuminosukeSato/stepwise/pkg/log"
	"github.com/YuminosukeSato/stepwise/sfo"
)

const keyPrefix = "sfo/"

// ErrNotFound is returned when a run or round has no checkpoint.
var ErrNotFound = sfoerrors.New("checkpoint not found")

// Checkpoint is the state saved at the end of one round.
type Checkpoint struct {
	RunID   string
	Summary sfo.RoundSummary
	Model   *model.IncrementalModel
	SavedAt time.Time
}

// record is the stored JSON form of a Checkpoint.
type record struct {
	RunID   string              `json:"run_id"`
	Summary sfo.RoundSummary    `json:"summary"`
	Weights *model.ModelWeights `json:"weights"`
	SavedAt time.Time           `json:"saved_at"`
}

// CheckpointStore saves and loads round checkpoints. It satisfies
// sfo.Checkpointer and is safe for concurrent use.
type CheckpointStore struct {
	db     *badger.DB
	logger log.Logger
}

// Open opens a checkpoint store. The caller must Close it.
func Open(cfg Config) (*CheckpointStore, error) {
	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}
	return &CheckpointStore{
		db:     db,
		logger: log.GetLoggerWithName("sfo.store"),
	}, nil
}

// OpenInMemory opens a store that is discarded on Close.
func OpenInMemory() (*CheckpointStore, error) {
	return Open(InMemoryConfig())
}

// Close closes the underlying database.
func (s *CheckpointStore) Close() error {
	return s.db.Close()
}

func runPrefix(runID string) []byte {
	return []byte(keyPrefix + runID + "/round/")
}

func roundKey(runID string, round int) []byte {
	return []byte(fmt.Sprintf("%s%s/round/%08d", keyPrefix, runID, round))
}

func checkRunID(runID string) error {
	if runID == "" || strings.Contains(runID, "/") {
		return sfoerrors.NewValidationError("run_id", "must be non-empty and must not contain '/'", runID)
	}
	return nil
}

// SaveRound stores m and summary under runID. A second save of the same round
// overwrites the first.
func (s *CheckpointStore) SaveRound(ctx context.Context, runID string, summary sfo.RoundSummary, m *model.IncrementalModel) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkRunID(runID); err != nil {
		return err
	}
	if m == nil {
		return sfoerrors.ErrNilModel
	}
	if summary.Round < 0 {
		return sfoerrors.NewValidationError("round", "must be >= 0", summary.Round)
	}

	w := m.Weights()
	w.Metadata = map[string]string{"run_id": runID, "round": fmt.Sprint(summary.Round)}
	data, err := json.Marshal(record{
		RunID:   runID,
		Summary: summary,
		Weights: w,
		SavedAt: time.Now().UTC(),
	})
	if err != nil {
		return sfoerrors.Wrap(err, "encode checkpoint")
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(roundKey(runID, summary.Round), data)
	})
	if err != nil {
		return sfoerrors.Wrapf(err, "save checkpoint %s round %d", runID, summary.Round)
	}
	s.logger.Debug("Checkpoint saved",
		log.RunIDKey, runID,
		log.RoundKey, summary.Round,
		log.ModelSizeKey, m.Size(),
	)
	return nil
}

// LoadRound returns the checkpoint of one round, or ErrNotFound.
func (s *CheckpointStore) LoadRound(runID string, round int) (Checkpoint, error) {
	if err := checkRunID(runID); err != nil {
		return Checkpoint{}, err
	}
	var cp Checkpoint
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(roundKey(runID, round))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			cp, err = decode(v)
			return err
		})
	})
	if sfoerrors.Is(err, badger.ErrKeyNotFound) {
		return Checkpoint{}, sfoerrors.Wrapf(ErrNotFound, "run %s round %d", runID, round)
	}
	if err != nil {
		return Checkpoint{}, err
	}
	return cp, nil
}

// Latest returns the highest-numbered round of runID, or ErrNotFound.
func (s *CheckpointStore) Latest(runID string) (Checkpoint, error) {
	if err := checkRunID(runID); err != nil {
		return Checkpoint{}, err
	}
	var (
		cp    Checkpoint
		found bool
	)
	prefix := runPrefix(runID)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		// reverse iteration starts at the greatest key <= seek
		it.Seek(append(append([]byte{}, prefix...), 0xff))
		if !it.ValidForPrefix(prefix) {
			return nil
		}
		found = true
		return it.Item().Value(func(v []byte) error {
			var err error
			cp, err = decode(v)
			return err
		})
	})
	if err != nil {
		return Checkpoint{}, err
	}
	if !found {
		return Checkpoint{}, sfoerrors.Wrapf(ErrNotFound, "run %s", runID)
	}
	return cp, nil
}

// Rounds returns the summaries of every saved round of runID in round order.
func (s *CheckpointStore) Rounds(runID string) ([]sfo.RoundSummary, error) {
	if err := checkRunID(runID); err != nil {
		return nil, err
	}
	var out []sfo.RoundSummary
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = runPrefix(runID)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(v []byte) error {
				var rec record
				if err := json.Unmarshal(v, &rec); err != nil {
					return sfoerrors.NewMalformedRecordError("checkpoint", err.Error(), string(it.Item().Key()))
				}
				out = append(out, rec.Summary)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return out, err
}

// Runs lists the run ids that have at least one checkpoint, in key order.
func (s *CheckpointStore) Runs() ([]string, error) {
	var runs []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			key := bytes.TrimPrefix(it.Item().Key(), []byte(keyPrefix))
			id, _, ok := strings.Cut(string(key), "/")
			if !ok {
				continue
			}
			if n := len(runs); n == 0 || runs[n-1] != id {
				runs = append(runs, id)
			}
		}
		return nil
	})
	return runs, err
}

func decode(v []byte) (Checkpoint, error) {
	var rec record
	if err := json.Unmarshal(v, &rec); err != nil {
		return Checkpoint{}, sfoerrors.NewMalformedRecordError("checkpoint", err.Error(), len(v))
	}
	if rec.Weights == nil {
		return Checkpoint{}, sfoerrors.NewMalformedRecordError("weights", "missing", nil)
	}
	m, err := rec.Weights.Model()
	if err != nil {
		return Checkpoint{}, err
	}
	return Checkpoint{
		RunID:   rec.RunID,
		Summary: rec.Summary,
		Model:   m,
		SavedAt: rec.SavedAt,
	}, nil
}

var _ sfo.Checkpointer = (*CheckpointStore)(nil)
