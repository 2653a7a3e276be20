package storage

import (
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"pairchat/repositories"
	"pairchat/wire"
)

// HistoryRepository keeps each room's ordered message log in BadgerDB.
// The relay opens the database in in-memory mode, so the log is ephemeral by
// construction: nothing survives the process and Destroy reclaims a room's
// messages the moment its membership empties.
//
// Keys are "hist:<roomKey>:<big-endian sequence>", so a prefix scan returns
// messages in insertion order.
type HistoryRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewHistoryRepository(db *badger.DB, log *slog.Logger) *HistoryRepository {
	return &HistoryRepository{db: db, log: log}
}

func historyKey(roomKey string, sequence uint64) []byte {
	key := make([]byte, 0, len("hist:")+len(roomKey)+1+8)
	key = append(key, "hist:"...)
	key = append(key, roomKey...)
	key = append(key, ':')
	key = binary.BigEndian.AppendUint64(key, sequence)
	return key
}

func historyPrefix(roomKey string) []byte {
	return []byte("hist:" + roomKey + ":")
}

// Append stores a message under its room and sequence number.
func (r *HistoryRepository) Append(roomKey string, msg repositories.StoredMessage) error {
	data, err := wire.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(historyKey(roomKey, msg.Sequence), data)
	})
}

// Snapshot returns a copy of the room's log in insertion order.
func (r *HistoryRepository) Snapshot(roomKey string) ([]repositories.StoredMessage, error) {
	var messages []repositories.StoredMessage
	prefix := historyPrefix(roomKey)

	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(v []byte) error {
				var msg repositories.StoredMessage
				if err := wire.Unmarshal(v, &msg); err != nil {
					return fmt.Errorf("failed to decode message: %w", err)
				}
				messages = append(messages, msg)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// Destroy removes every message of the room.
func (r *HistoryRepository) Destroy(roomKey string) error {
	prefix := historyPrefix(roomKey)

	return r.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false // Keys only, we are deleting

		it := txn.NewIterator(opts)
		defer it.Close()

		var keys [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}
