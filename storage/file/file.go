// Package file implements storage.Store on a directory of JSON files.
//
// Layout:
//
//	members.json            pubkey -> member
//	messages/index.json     id -> {filename, created_at, likes}
//	messages/<id>.txt       message
//	records/<fingerprint>.json
package file

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/zkjwt/go-zkjwt-auth/storage"
	"github.com/zkjwt/go-zkjwt-auth/types"
	"go.uber.org/zap"
)

const (
	membersFile = "members.json"
	messagesDir = "messages"
	indexFile   = "index.json"
	recordsDir  = "records"
)

type indexEntry struct {
	Filename  string `json:"filename"`
	CreatedAt string `json:"created_at"`
	Likes     uint32 `json:"likes"`
}

// Store is a flat-file storage.Store. All writes are serialized by a
// store-wide mutex and replace files through a rename.
type Store struct {
	root   string
	mu     sync.Mutex
	now    func() time.Time
	logger *zap.Logger
}

var _ storage.Store = (*Store)(nil)

// Option configures Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// WithClock replaces time.Now for message and record timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New opens the store rooted at dir, creating its directories.
func New(dir string, opts ...Option) (*Store, error) {
	s := &Store{root: dir, now: time.Now, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	for _, d := range []string{dir, filepath.Join(dir, messagesDir), filepath.Join(dir, recordsDir)} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, errors.Wrapf(err, "create %s", d)
		}
	}
	return s, nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

func (s *Store) AddMember(ctx context.Context, m types.Member) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	members, err := s.readMembers()
	if err != nil {
		return err
	}
	members[m.PubKey] = m
	return writeJSON(s.path(membersFile), members)
}

func (s *Store) GetMember(ctx context.Context, pubkey string) (*types.Member, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	members, err := s.readMembers()
	if err != nil {
		return nil, err
	}
	m, ok := members[pubkey]
	if !ok {
		return nil, errors.Wrapf(storage.ErrNotFound, "member %s", pubkey)
	}
	return &m, nil
}

func (s *Store) AddMessage(ctx context.Context, msg types.SignedMessage) (types.SignedMessage, error) {
	if err := ctx.Err(); err != nil {
		return types.SignedMessage{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.readIndex()
	if err != nil {
		return types.SignedMessage{}, err
	}
	var id uint32 = 1
	for k := range index {
		if k >= id {
			id = k + 1
		}
	}
	msg.ID = storage.MessageID(id)
	msg.Likes = 0

	filename := msg.ID + ".txt"
	if err := writeJSON(s.path(messagesDir, filename), msg); err != nil {
		return types.SignedMessage{}, err
	}
	index[id] = indexEntry{
		Filename:  filename,
		CreatedAt: strconv.FormatInt(s.now().Unix(), 10),
	}
	if err := writeJSON(s.path(messagesDir, indexFile), index); err != nil {
		return types.SignedMessage{}, err
	}
	s.logger.Debug("message stored", zap.Uint32("id", id))
	return msg, nil
}

func (s *Store) GetMessage(ctx context.Context, id uint32) (*types.SignedMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.readIndex()
	if err != nil {
		return nil, err
	}
	entry, ok := index[id]
	if !ok {
		return nil, errors.Wrapf(storage.ErrNotFound, "message %d", id)
	}
	return s.readMessage(entry)
}

func (s *Store) LatestMessages(ctx context.Context, limit int) ([]types.SignedMessage, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidLimit
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.readIndex()
	if err != nil {
		return nil, err
	}
	ids := make([]uint32, 0, len(index))
	for id := range index {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })
	if len(ids) > limit {
		ids = ids[:limit]
	}

	out := make([]types.SignedMessage, 0, len(ids))
	for _, id := range ids {
		msg, err := s.readMessage(index[id])
		if err != nil {
			return nil, err
		}
		out = append(out, *msg)
	}
	return out, nil
}

func (s *Store) Likes(ctx context.Context, id uint32) (uint32, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.readIndex()
	if err != nil {
		return 0, err
	}
	entry, ok := index[id]
	if !ok {
		return 0, errors.Wrapf(storage.ErrNotFound, "message %d", id)
	}
	return entry.Likes, nil
}

// UpdateLikes rewrites the message file first, then the index. Both carry
// the same count afterwards.
func (s *Store) UpdateLikes(ctx context.Context, id uint32, increase bool) (uint32, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.readIndex()
	if err != nil {
		return 0, err
	}
	entry, ok := index[id]
	if !ok {
		return 0, errors.Wrapf(storage.ErrNotFound, "message %d", id)
	}
	msg, err := s.readMessage(entry)
	if err != nil {
		return 0, err
	}

	likes := step(msg.Likes, increase)
	msg.Likes = likes
	if err := writeJSON(s.path(messagesDir, entry.Filename), msg); err != nil {
		return 0, err
	}
	entry.Likes = likes
	index[id] = entry
	if err := writeJSON(s.path(messagesDir, indexFile), index); err != nil {
		return 0, err
	}
	return likes, nil
}

// RecordVerification creates records/<fingerprint>.json exclusively, so a
// second writer with the same fingerprint reads the first record back. The
// record is written in full before it is linked into place.
func (s *Store) RecordVerification(ctx context.Context, rec types.VerificationRecord) (types.VerificationRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return types.VerificationRecord{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = s.now().UTC()
	}
	err := createJSON(s.recordPath(rec.Fingerprint), rec)
	if os.IsExist(errors.Cause(err)) {
		existing, err := s.readRecord(rec.Fingerprint)
		if err != nil {
			return types.VerificationRecord{}, false, err
		}
		return *existing, false, nil
	}
	if err != nil {
		return types.VerificationRecord{}, false, err
	}
	return rec, true, nil
}

func (s *Store) GetVerification(ctx context.Context, fingerprint common.Hash) (*types.VerificationRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readRecord(fingerprint)
}

func (s *Store) SetRecordTransaction(ctx context.Context, fingerprint, tx common.Hash) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.readRecord(fingerprint)
	if err != nil {
		return err
	}
	rec.TxHash = &tx
	return writeJSON(s.recordPath(fingerprint), rec)
}

func (s *Store) path(elem ...string) string {
	return filepath.Join(append([]string{s.root}, elem...)...)
}

func (s *Store) recordPath(fp common.Hash) string {
	return s.path(recordsDir, fp.Hex()+".json")
}

func (s *Store) readMembers() (map[string]types.Member, error) {
	members := map[string]types.Member{}
	if err := readJSON(s.path(membersFile), &members); err != nil && !os.IsNotExist(errors.Cause(err)) {
		return nil, err
	}
	return members, nil
}

func (s *Store) readIndex() (map[uint32]indexEntry, error) {
	index := map[uint32]indexEntry{}
	if err := readJSON(s.path(messagesDir, indexFile), &index); err != nil && !os.IsNotExist(errors.Cause(err)) {
		return nil, err
	}
	return index, nil
}

func (s *Store) readMessage(entry indexEntry) (*types.SignedMessage, error) {
	var msg types.SignedMessage
	if err := readJSON(s.path(messagesDir, entry.Filename), &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *Store) readRecord(fp common.Hash) (*types.VerificationRecord, error) {
	var rec types.VerificationRecord
	err := readJSON(s.recordPath(fp), &rec)
	if os.IsNotExist(errors.Cause(err)) {
		return nil, errors.Wrapf(storage.ErrNotFound, "record %s", fp.Hex())
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func step(likes uint32, increase bool) uint32 {
	if increase {
		return likes + 1
	}
	if likes == 0 {
		return 0
	}
	return likes - 1
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.WithStack(err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrapf(err, "decode %s", filepath.Base(path))
	}
	return nil
}

// writeJSON replaces path with the indented encoding of v.
func writeJSON(path string, v interface{}) error {
	tmp, err := writeTemp(path, v)
	if err != nil {
		return err
	}
	defer os.Remove(tmp)
	return errors.WithStack(os.Rename(tmp, path))
}

// createJSON stores v at path unless path exists, in which case the returned
// error satisfies os.IsExist after errors.Cause.
func createJSON(path string, v interface{}) error {
	tmp, err := writeTemp(path, v)
	if err != nil {
		return err
	}
	defer os.Remove(tmp)
	return errors.WithStack(os.Link(tmp, path))
}

// writeTemp writes the encoding of v to a synced temp file next to path.
func writeTemp(path string, v interface{}) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", errors.WithStack(err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return "", errors.WithStack(err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", errors.WithStack(err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", errors.WithStack(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", errors.WithStack(err)
	}
	return tmp.Name(), nil
}
