// Package badger implements storage.Store on BadgerDB.
package badger

import (
	"context"
	"encoding/binary"
	"time"

	badgerdb "github.com/dgraph-io/badger/v3"
	"github.com/ethereum/go-ethereum/common"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/zkjwt/go-zkjwt-auth/storage"
	"github.com/zkjwt/go-zkjwt-auth/types"
	"go.uber.org/zap"
)

const maxConflictRetries = 16

var (
	memberPrefix  = []byte("member/")
	messagePrefix = []byte("message/")
	recordPrefix  = []byte("record/")
	nextMessageID = []byte("meta/next_message_id")
)

type messageEntry struct {
	Message   types.SignedMessage `json:"message"`
	CreatedAt int64               `json:"created_at"`
}

// Store is a BadgerDB storage.Store. Every operation is one transaction;
// write transactions are retried on conflict.
type Store struct {
	db     *badgerdb.DB
	now    func() time.Time
	logger *zap.Logger
}

var _ storage.Store = (*Store)(nil)

type options struct {
	inMemory bool
	now      func() time.Time
	logger   *zap.Logger
}

// Option configures Open.
type Option func(*options)

// WithLogger sets the logger. Badger's own log lines go to it as well.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithClock replaces time.Now for message and record timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// InMemory keeps the database in memory; the directory is ignored.
func InMemory() Option {
	return func(o *options) {
		o.inMemory = true
	}
}

// Open opens or creates the database in dir.
func Open(dir string, opts ...Option) (*Store, error) {
	o := options{now: time.Now, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	bopts := badgerdb.DefaultOptions(dir)
	if o.inMemory {
		bopts = badgerdb.DefaultOptions("").WithInMemory(true)
	}
	bopts.Logger = badgerLogger{o.logger.Named("badger").Sugar()}

	db, err := badgerdb.Open(bopts)
	if err != nil {
		return nil, errors.Wrapf(err, "open badger at %q", dir)
	}
	return &Store{db: db, now: o.now, logger: o.logger}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) AddMember(ctx context.Context, m types.Member) error {
	return s.update(ctx, func(txn *badgerdb.Txn) error {
		return setJSON(txn, memberKey(m.PubKey), m)
	})
}

func (s *Store) GetMember(ctx context.Context, pubkey string) (*types.Member, error) {
	var m types.Member
	err := s.view(ctx, func(txn *badgerdb.Txn) error {
		return getJSON(txn, memberKey(pubkey), &m)
	})
	if err != nil {
		return nil, notFound(err, "member "+pubkey)
	}
	return &m, nil
}

func (s *Store) AddMessage(ctx context.Context, msg types.SignedMessage) (types.SignedMessage, error) {
	var stored types.SignedMessage
	err := s.update(ctx, func(txn *badgerdb.Txn) error {
		id := uint32(1)
		item, err := txn.Get(nextMessageID)
		switch {
		case err == nil:
			if err := item.Value(func(v []byte) error {
				id = binary.BigEndian.Uint32(v)
				return nil
			}); err != nil {
				return err
			}
		case !errors.Is(err, badgerdb.ErrKeyNotFound):
			return err
		}

		stored = msg
		stored.ID = storage.MessageID(id)
		stored.Likes = 0
		if err := setJSON(txn, messageKey(id), messageEntry{Message: stored, CreatedAt: s.now().Unix()}); err != nil {
			return err
		}
		next := make([]byte, 4)
		binary.BigEndian.PutUint32(next, id+1)
		return txn.Set(nextMessageID, next)
	})
	if err != nil {
		return types.SignedMessage{}, err
	}
	return stored, nil
}

func (s *Store) GetMessage(ctx context.Context, id uint32) (*types.SignedMessage, error) {
	var e messageEntry
	err := s.view(ctx, func(txn *badgerdb.Txn) error {
		return getJSON(txn, messageKey(id), &e)
	})
	if err != nil {
		return nil, notFound(err, "message "+storage.MessageID(id))
	}
	return &e.Message, nil
}

func (s *Store) LatestMessages(ctx context.Context, limit int) ([]types.SignedMessage, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidLimit
	}
	out := make([]types.SignedMessage, 0, limit)
	err := s.view(ctx, func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = messagePrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(append(append([]byte{}, messagePrefix...), 0xff)); it.Valid() && len(out) < limit; it.Next() {
			var e messageEntry
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &e)
			}); err != nil {
				return errors.WithStack(err)
			}
			out = append(out, e.Message)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Likes(ctx context.Context, id uint32) (uint32, error) {
	msg, err := s.GetMessage(ctx, id)
	if err != nil {
		return 0, err
	}
	return msg.Likes, nil
}

func (s *Store) UpdateLikes(ctx context.Context, id uint32, increase bool) (uint32, error) {
	var likes uint32
	err := s.update(ctx, func(txn *badgerdb.Txn) error {
		var e messageEntry
		if err := getJSON(txn, messageKey(id), &e); err != nil {
			return err
		}
		switch {
		case increase:
			e.Message.Likes++
		case e.Message.Likes > 0:
			e.Message.Likes--
		}
		likes = e.Message.Likes
		return setJSON(txn, messageKey(id), e)
	})
	if err != nil {
		return 0, notFound(err, "message "+storage.MessageID(id))
	}
	return likes, nil
}

// RecordVerification reads and writes the record key in one transaction.
// Two writers with the same fingerprint conflict; the retry of the loser
// finds the winner's record.
func (s *Store) RecordVerification(ctx context.Context, rec types.VerificationRecord) (types.VerificationRecord, bool, error) {
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = s.now().UTC()
	}
	var (
		stored  types.VerificationRecord
		created bool
	)
	err := s.update(ctx, func(txn *badgerdb.Txn) error {
		created = false
		err := getJSON(txn, recordKey(rec.Fingerprint), &stored)
		if err == nil {
			return nil
		}
		if !errors.Is(err, badgerdb.ErrKeyNotFound) {
			return err
		}
		stored, created = rec, true
		return setJSON(txn, recordKey(rec.Fingerprint), rec)
	})
	if err != nil {
		return types.VerificationRecord{}, false, err
	}
	return stored, created, nil
}

func (s *Store) GetVerification(ctx context.Context, fingerprint common.Hash) (*types.VerificationRecord, error) {
	var rec types.VerificationRecord
	err := s.view(ctx, func(txn *badgerdb.Txn) error {
		return getJSON(txn, recordKey(fingerprint), &rec)
	})
	if err != nil {
		return nil, notFound(err, "record "+fingerprint.Hex())
	}
	return &rec, nil
}

func (s *Store) SetRecordTransaction(ctx context.Context, fingerprint, tx common.Hash) error {
	err := s.update(ctx, func(txn *badgerdb.Txn) error {
		var rec types.VerificationRecord
		if err := getJSON(txn, recordKey(fingerprint), &rec); err != nil {
			return err
		}
		rec.TxHash = &tx
		return setJSON(txn, recordKey(fingerprint), rec)
	})
	return notFound(err, "record "+fingerprint.Hex())
}

func (s *Store) view(ctx context.Context, fn func(txn *badgerdb.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(fn)
}

func (s *Store) update(ctx context.Context, fn func(txn *badgerdb.Txn) error) error {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.db.Update(fn)
		if !errors.Is(err, badgerdb.ErrConflict) || attempt == maxConflictRetries {
			return err
		}
		s.logger.Debug("badger transaction conflict, retrying", zap.Int("attempt", attempt+1))
	}
}

func notFound(err error, what string) error {
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return errors.Wrap(storage.ErrNotFound, what)
	}
	return err
}

func memberKey(pubkey string) []byte {
	return append(append([]byte{}, memberPrefix...), pubkey...)
}

func messageKey(id uint32) []byte {
	k := make([]byte, len(messagePrefix)+8)
	copy(k, messagePrefix)
	binary.BigEndian.PutUint64(k[len(messagePrefix):], uint64(id))
	return k
}

func recordKey(fp common.Hash) []byte {
	return append(append([]byte{}, recordPrefix...), fp.Bytes()...)
}

func getJSON(txn *badgerdb.Txn, key []byte, v interface{}) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(data []byte) error {
		return errors.WithStack(json.Unmarshal(data, v))
	})
}

func setJSON(txn *badgerdb.Txn, key []byte, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.WithStack(err)
	}
	return txn.Set(key, data)
}

// badgerLogger adapts zap to badger's Logger.
type badgerLogger struct {
	s *zap.SugaredLogger
}

func (l badgerLogger) Errorf(format string, args ...interface{})   { l.s.Errorf(format, args...) }
func (l badgerLogger) Warningf(format string, args ...interface{}) { l.s.Warnf(format, args...) }
func (l badgerLogger) Infof(format string, args ...interface{})    { l.s.Infof(format, args...) }
func (l badgerLogger) Debugf(format string, args ...interface{})   { l.s.Debugf(format, args...) }
