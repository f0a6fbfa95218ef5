package storage

import (
	"fmt"
	"time"

	"ogonyok/internal/models"

	"go.etcd.io/bbolt"
)

var (
	bucketUsers    = []byte("users")
	bucketGroups   = []byte("groups")
	bucketInvites  = []byte("invites")
	bucketMessages = []byte("messages")
)

// GroupRecord is the stored form of a group. PasswordHash and the invite
// token never leave the storage layer except through the group manager.
type GroupRecord struct {
	models.Group
	PasswordHash      string
	InviteToken       string
	InviteTokenExpiry time.Time
}

type BboltStorage struct {
	db *bbolt.DB
}

func NewBboltStorage(path string) (*BboltStorage, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketUsers, bucketGroups, bucketInvites, bucketMessages} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BboltStorage{db: db}, nil
}

func (s *BboltStorage) Close() error {
	return s.db.Close()
}

// UpsertUser stores a new or updated user profile.
func (s *BboltStorage) UpsertUser(user models.User) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketUsers)
		dbUser := &DBUser{
			ID:          user.ID,
			DisplayName: user.DisplayName,
			AvatarURL:   user.AvatarURL,
		}
		data, err := dbUser.MarshalBinary()
		if err != nil {
			return err
		}
		return b.Put(dbUser.Key(), data)
	})
}

func (s *BboltStorage) GetUser(id string) (models.User, error) {
	var user models.User
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketUsers).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("user %s: %w", id, models.ErrNotFound)
		}
		var dbUser DBUser
		if err := dbUser.UnmarshalBinary(data); err != nil {
			return err
		}
		user = models.User{
			ID:          dbUser.ID,
			DisplayName: dbUser.DisplayName,
			AvatarURL:   dbUser.AvatarURL,
		}
		return nil
	})
	return user, err
}

func (s *BboltStorage) ListUsers() ([]models.User, error) {
	var users []models.User
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketUsers).ForEach(func(k, v []byte) error {
			var dbUser DBUser
			if err := dbUser.UnmarshalBinary(v); err != nil {
				return err
			}
			users = append(users, models.User{
				ID:          dbUser.ID,
				DisplayName: dbUser.DisplayName,
				AvatarURL:   dbUser.AvatarURL,
			})
			return nil
		})
	})
	return users, err
}

// CreateGroup persists a new group record and its invite index entry if any.
func (s *BboltStorage) CreateGroup(rec GroupRecord) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return putGroup(tx, rec, "")
	})
}

// UpdateGroup overwrites the group record, keeping the invite token index
// in sync when the token rotates.
func (s *BboltStorage) UpdateGroup(rec GroupRecord) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		old, err := getGroup(tx, rec.ID)
		if err != nil {
			return err
		}
		return putGroup(tx, rec, old.InviteToken)
	})
}

func putGroup(tx *bbolt.Tx, rec GroupRecord, oldInviteToken string) error {
	dbGroup := &DBGroup{
		ID:            rec.ID,
		Name:          rec.Name,
		AdminID:       rec.AdminID,
		MemberIDs:     rec.MemberIDs,
		PasswordHash:  rec.PasswordHash,
		ExpiresAt:     rec.ExpiresAt.Unix(),
		InviteToken:   rec.InviteToken,
		LastMessageID: rec.LastMessageID,
		CreatedAt:     rec.CreatedAt.Unix(),
	}
	if !rec.InviteTokenExpiry.IsZero() {
		dbGroup.InviteTokenExpiry = rec.InviteTokenExpiry.Unix()
	}

	data, err := dbGroup.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to marshal group: %w", err)
	}
	if err := tx.Bucket(bucketGroups).Put(dbGroup.Key(), data); err != nil {
		return err
	}

	invites := tx.Bucket(bucketInvites)
	if oldInviteToken != "" && oldInviteToken != rec.InviteToken {
		if err := invites.Delete([]byte(oldInviteToken)); err != nil {
			return err
		}
	}
	if rec.InviteToken != "" {
		return invites.Put([]byte(rec.InviteToken), []byte(rec.ID))
	}
	return nil
}

func getGroup(tx *bbolt.Tx, id string) (GroupRecord, error) {
	data := tx.Bucket(bucketGroups).Get([]byte(id))
	if data == nil {
		return GroupRecord{}, fmt.Errorf("group %s: %w", id, models.ErrNotFound)
	}
	var dbGroup DBGroup
	if err := dbGroup.UnmarshalBinary(data); err != nil {
		return GroupRecord{}, err
	}
	rec := GroupRecord{
		Group: models.Group{
			ID:            dbGroup.ID,
			Name:          dbGroup.Name,
			AdminID:       dbGroup.AdminID,
			MemberIDs:     dbGroup.MemberIDs,
			ExpiresAt:     time.Unix(dbGroup.ExpiresAt, 0),
			LastMessageID: dbGroup.LastMessageID,
			CreatedAt:     time.Unix(dbGroup.CreatedAt, 0),
		},
		PasswordHash: dbGroup.PasswordHash,
		InviteToken:  dbGroup.InviteToken,
	}
	if dbGroup.InviteTokenExpiry != 0 {
		rec.InviteTokenExpiry = time.Unix(dbGroup.InviteTokenExpiry, 0)
	}
	return rec, nil
}

func (s *BboltStorage) GetGroup(id string) (GroupRecord, error) {
	var rec GroupRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		rec, err = getGroup(tx, id)
		return err
	})
	return rec, err
}

// GetGroupByInvite resolves an invite token to its group via the index.
func (s *BboltStorage) GetGroupByInvite(token string) (GroupRecord, error) {
	var rec GroupRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		groupID := tx.Bucket(bucketInvites).Get([]byte(token))
		if groupID == nil {
			return fmt.Errorf("invite: %w", models.ErrNotFound)
		}
		var err error
		rec, err = getGroup(tx, string(groupID))
		return err
	})
	return rec, err
}

// ListGroupsForUser returns every group the user is a member of.
func (s *BboltStorage) ListGroupsForUser(userID string) ([]models.Group, error) {
	var groups []models.Group
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketGroups).ForEach(func(k, v []byte) error {
			var dbGroup DBGroup
			if err := dbGroup.UnmarshalBinary(v); err != nil {
				return err
			}
			for _, id := range dbGroup.MemberIDs {
				if id == userID {
					groups = append(groups, models.Group{
						ID:            dbGroup.ID,
						Name:          dbGroup.Name,
						AdminID:       dbGroup.AdminID,
						MemberIDs:     dbGroup.MemberIDs,
						ExpiresAt:     time.Unix(dbGroup.ExpiresAt, 0),
						LastMessageID: dbGroup.LastMessageID,
						CreatedAt:     time.Unix(dbGroup.CreatedAt, 0),
					})
					break
				}
			}
			return nil
		})
	})
	return groups, err
}

// DeleteGroup removes the group, its invite index entry and every message
// in its chat bucket in one transaction. This is the cascade both the admin
// end path and the expiry hook go through.
func (s *BboltStorage) DeleteGroup(id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		rec, err := getGroup(tx, id)
		if err != nil {
			return err
		}

		if rec.InviteToken != "" {
			if err := tx.Bucket(bucketInvites).Delete([]byte(rec.InviteToken)); err != nil {
				return err
			}
		}

		chatKey := []byte(models.GroupChat(id).Key())
		msgBucket := tx.Bucket(bucketMessages)
		if msgBucket.Bucket(chatKey) != nil {
			if err := msgBucket.DeleteBucket(chatKey); err != nil {
				return err
			}
		}

		return tx.Bucket(bucketGroups).Delete([]byte(id))
	})
}

// AppendMessage persists the message, assigning its per-chat sequence
// number, and advances the owning group's last-message pointer in the same
// transaction.
func (s *BboltStorage) AppendMessage(message models.Message) (models.Message, error) {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		chatKey := []byte(message.Selector().Key())
		chatBucket, err := tx.Bucket(bucketMessages).CreateBucketIfNotExists(chatKey)
		if err != nil {
			return fmt.Errorf("failed to create chat bucket: %w", err)
		}

		seq, err := chatBucket.NextSequence()
		if err != nil {
			return err
		}
		message.Seq = seq

		dbMessage := DBMessage{
			ID:         message.ID,
			Seq:        message.Seq,
			SenderID:   message.SenderID,
			ReceiverID: message.ReceiverID,
			GroupID:    message.GroupID,
			Kind:       string(message.Kind),
			Text:       message.Text,
			Image:      message.Image,
			CreatedAt:  message.CreatedAt.Unix(),
		}

		data, err := dbMessage.MarshalBinary()
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}
		if err := chatBucket.Put(dbMessage.Key(), data); err != nil {
			return fmt.Errorf("failed to put message: %w", err)
		}

		if message.Kind == models.MessageKindGroup {
			rec, err := getGroup(tx, message.GroupID)
			if err != nil {
				return err
			}
			rec.LastMessageID = message.ID
			return putGroup(tx, rec, rec.InviteToken)
		}
		return nil
	})
	if err != nil {
		return models.Message{}, err
	}
	return message, nil
}

// ListMessages returns all messages of a chat ordered by creation, oldest
// first. The order matches live append order, so clients can merge history
// with the live stream without reordering at the seam.
func (s *BboltStorage) ListMessages(selector models.ChatSelector) ([]models.Message, error) {
	var messages []models.Message
	err := s.db.View(func(tx *bbolt.Tx) error {
		chatBucket := tx.Bucket(bucketMessages).Bucket([]byte(selector.Key()))
		if chatBucket == nil {
			return nil // No messages for this chat
		}

		return chatBucket.ForEach(func(k, v []byte) error {
			var dbMsg DBMessage
			if err := dbMsg.UnmarshalBinary(v); err != nil {
				return err
			}
			messages = append(messages, models.Message{
				ID:         dbMsg.ID,
				Seq:        dbMsg.Seq,
				SenderID:   dbMsg.SenderID,
				ReceiverID: dbMsg.ReceiverID,
				GroupID:    dbMsg.GroupID,
				Kind:       models.MessageKind(dbMsg.Kind),
				Text:       dbMsg.Text,
				Image:      dbMsg.Image,
				CreatedAt:  time.Unix(dbMsg.CreatedAt, 0),
			})
			return nil
		})
	})
	return messages, err
}

// ListActiveGroups returns every stored group; used at boot to rebuild
// expiry timers.
func (s *BboltStorage) ListActiveGroups() ([]GroupRecord, error) {
	var recs []GroupRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketGroups).ForEach(func(k, v []byte) error {
			rec, err := getGroup(tx, string(k))
			if err != nil {
				return err
			}
			recs = append(recs, rec)
			return nil
		})
	})
	return recs, err
}
