package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/redis/go-redis/v9"
)

const (
	userRecordVersionV1 = 1

	flagTOTPEnabled  = 1 << 0
	flagTOTPVerified = 1 << 1
)

var (
	ErrUserNotFound         = errors.New("user record not found")
	ErrUserRedisUnavailable = errors.New("user redis unavailable")
	ErrUserContention       = errors.New("user record update contention")
)

// UserRecord is the stored account state of one user.
type UserRecord struct {
	RealmID      string
	UserID       string
	Username     string
	Email        string
	PasswordHash string
	TOTPEnabled  bool
	TOTPVerified bool
	TOTPSecret   []byte
	TOTPCounter  int64
}

type UserStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewUserStore(redisClient redis.UniversalClient, prefix string) *UserStore {
	if prefix == "" {
		prefix = "acu"
	}
	return &UserStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *UserStore) key(realmID, userID string) string {
	return s.prefix + ":" + realmID + ":" + userID
}

// Put creates or replaces a record.
func (s *UserStore) Put(ctx context.Context, record *UserRecord) error {
	encoded, err := encodeUserRecord(record)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(record.RealmID, record.UserID), encoded, 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUserRedisUnavailable, err)
	}
	return nil
}

func (s *UserStore) Get(ctx context.Context, realmID, userID string) (*UserRecord, error) {
	data, err := s.redis.Get(ctx, s.key(realmID, userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUserRedisUnavailable, err)
	}
	return decodeUserRecord(data)
}

// Update applies mutate to the stored record atomically. An error returned
// by mutate aborts the update and is returned unchanged.
func (s *UserStore) Update(ctx context.Context, realmID, userID string, mutate func(*UserRecord) error) error {
	const maxRetries = 4
	key := s.key(realmID, userID)

	for i := 0; i < maxRetries; i++ {
		var mutateErr error
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeUserRecord(data)
			if err != nil {
				return err
			}
			if err := mutate(record); err != nil {
				mutateErr = err
				return err
			}

			updated, err := encodeUserRecord(record)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, 0)
				return nil
			})
			return err
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			if mutateErr != nil {
				return mutateErr
			}
			if errors.Is(err, redis.Nil) {
				return ErrUserNotFound
			}
			return fmt.Errorf("%w: %v", ErrUserRedisUnavailable, err)
		}
		return nil
	}

	return ErrUserContention
}

func writeString(buf *bytes.Buffer, v string) error {
	if len(v) > 65535 {
		return errors.New("user record field length exceeded")
	}
	if err := binary.Write(buf, binary.BigEndian, uint16(len(v))); err != nil {
		return err
	}
	buf.WriteString(v)
	return nil
}

func readString(reader *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(reader, binary.BigEndian, &n); err != nil {
		return "", err
	}
	out := make([]byte, n)
	if _, err := io.ReadFull(reader, out); err != nil {
		return "", err
	}
	return string(out), nil
}

func encodeUserRecord(record *UserRecord) ([]byte, error) {
	if record == nil || record.RealmID == "" || record.UserID == "" {
		return nil, errors.New("user record requires realm and user id")
	}

	var buf bytes.Buffer
	buf.WriteByte(userRecordVersionV1)

	var flags byte
	if record.TOTPEnabled {
		flags |= flagTOTPEnabled
	}
	if record.TOTPVerified {
		flags |= flagTOTPVerified
	}
	buf.WriteByte(flags)

	if err := binary.Write(&buf, binary.BigEndian, record.TOTPCounter); err != nil {
		return nil, err
	}

	for _, field := range []string{
		record.RealmID,
		record.UserID,
		record.Username,
		record.Email,
		record.PasswordHash,
		string(record.TOTPSecret),
	} {
		if err := writeString(&buf, field); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

func decodeUserRecord(data []byte) (*UserRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != userRecordVersionV1 {
		return nil, errors.New("invalid user record version")
	}

	flags, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}

	record := &UserRecord{
		TOTPEnabled:  flags&flagTOTPEnabled != 0,
		TOTPVerified: flags&flagTOTPVerified != 0,
	}
	if err := binary.Read(reader, binary.BigEndian, &record.TOTPCounter); err != nil {
		return nil, err
	}

	fields := []*string{
		&record.RealmID,
		&record.UserID,
		&record.Username,
		&record.Email,
		&record.PasswordHash,
	}
	for _, f := range fields {
		if *f, err = readString(reader); err != nil {
			return nil, err
		}
	}
	secret, err := readString(reader)
	if err != nil {
		return nil, err
	}
	if secret != "" {
		record.TOTPSecret = []byte(secret)
	}

	return record, nil
}
