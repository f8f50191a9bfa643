package repositories

import (
	"context"
	"dm-relay/domain"
	"dm-relay/errors"
	stderrors "errors"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const userSequenceKey = "seq:user"

type UserRepository struct {
	db  *badger.DB
	seq *badger.Sequence
}

func NewUserRepository(db *badger.DB) (*UserRepository, error) {
	seq, err := db.GetSequence([]byte(userSequenceKey), sequenceBandwidth)
	if err != nil {
		return nil, fmt.Errorf("user sequence: %w", err)
	}
	return &UserRepository{db: db, seq: seq}, nil
}

func (u *UserRepository) Close() error {
	return u.seq.Release()
}

type diskUser struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"password_hash"`
	CreatedAt    int64  `json:"created_at"`
}

func userKey(id domain.UserID) []byte {
	return []byte(fmt.Sprintf("user:%019d", id))
}

// Usernames are unique case-insensitively.
func usernameKey(username string) []byte {
	return []byte("username:" + strings.ToLower(username))
}

// CreateUser persists a new user and its username index in one transaction.
func (u *UserRepository) CreateUser(_ context.Context, username, passwordHash string) (domain.User, error) {
	next, err := u.seq.Next()
	if err != nil {
		return domain.User{}, fmt.Errorf("next user id: %w", err)
	}
	user := domain.User{
		ID:           domain.UserID(next + 1),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	data, err := json.Marshal(fromUser(user))
	if err != nil {
		return domain.User{}, fmt.Errorf("marshal failed: %w", err)
	}

	err = u.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(usernameKey(username)); err == nil {
			return errors.ErrUserAlreadyExists
		} else if !stderrors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(usernameKey(username), []byte(user.ID.String())); err != nil {
			return err
		}
		return txn.Set(userKey(user.ID), data)
	})
	// A concurrent registration of the same name surfaces as a transaction conflict.
	if stderrors.Is(err, badger.ErrConflict) {
		return domain.User{}, errors.ErrUserAlreadyExists
	}
	if err != nil {
		return domain.User{}, err
	}
	return user, nil
}

func (u *UserRepository) GetUser(_ context.Context, id domain.UserID) (domain.User, error) {
	var user domain.User
	err := u.db.View(func(txn *badger.Txn) error {
		var err error
		user, err = getUser(txn, id)
		return err
	})
	return user, err
}

func (u *UserRepository) GetUserByUsername(_ context.Context, username string) (domain.User, error) {
	var user domain.User
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(usernameKey(username))
		if stderrors.Is(err, badger.ErrKeyNotFound) {
			return errors.ErrUserNotFound
		}
		if err != nil {
			return err
		}
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		id, err := domain.ParseUserID(string(raw))
		if err != nil {
			return err
		}
		user, err = getUser(txn, id)
		return err
	})
	return user, err
}

// ListUsers returns every user but the excluded one, ordered by id.
func (u *UserRepository) ListUsers(_ context.Context, exclude domain.UserID) ([]domain.User, error) {
	users := make([]domain.User, 0)
	err := u.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Prefix = []byte("user:")
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var du diskUser
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &du)
			}); err != nil {
				return err
			}
			if domain.UserID(du.ID) == exclude {
				continue
			}
			users = append(users, toUser(du))
		}
		return nil
	})
	return users, err
}

func getUser(txn *badger.Txn, id domain.UserID) (domain.User, error) {
	item, err := txn.Get(userKey(id))
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return domain.User{}, fmt.Errorf("%w: %d", errors.ErrUserNotFound, id)
	}
	if err != nil {
		return domain.User{}, err
	}
	var du diskUser
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &du)
	}); err != nil {
		return domain.User{}, err
	}
	return toUser(du), nil
}

func fromUser(user domain.User) diskUser {
	return diskUser{
		ID:           int64(user.ID),
		Username:     user.Username,
		PasswordHash: user.PasswordHash,
		CreatedAt:    user.CreatedAt.Unix(),
	}
}

func toUser(du diskUser) domain.User {
	return domain.User{
		ID:           domain.UserID(du.ID),
		Username:     du.Username,
		PasswordHash: du.PasswordHash,
		CreatedAt:    time.Unix(du.CreatedAt, 0).UTC(),
	}
}
