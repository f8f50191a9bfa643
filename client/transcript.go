package client

import (
	"cmp"
	"dm-relay/domain"
	"slices"
	"time"
)

// TempID identifies a locally composed message until the server confirms it.
type TempID int64

type EntryState int

const (
	Pending EntryState = iota
	Confirmed
	Failed
)

func (s EntryState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Confirmed:
		return "confirmed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

type FailureReason string

const (
	FailureTimeout  FailureReason = "timeout"
	FailureRejected FailureReason = "rejected"
)

// Entry is one visible line of a conversation.
// Pending and failed entries carry a TempID and a zero Message.ID; confirmed entries the reverse.
type Entry struct {
	TempID  TempID
	Message domain.Message
	State   EntryState
	Failure FailureReason
	Error   string
}

// Transcript is an ordered sequence of entries upserted by server id or temp id.
// It is not safe for concurrent use; Conversation guards it.
type Transcript struct {
	entries []Entry
}

func (t *Transcript) Entries() []Entry {
	return slices.Clone(t.entries)
}

func (t *Transcript) Len() int {
	return len(t.entries)
}

func (t *Transcript) appendPending(tempID TempID, msg domain.Message) {
	t.entries = append(t.entries, Entry{TempID: tempID, Message: msg, State: Pending})
}

func (t *Transcript) indexOfTemp(tempID TempID) int {
	return slices.IndexFunc(t.entries, func(e Entry) bool {
		return e.State != Confirmed && e.TempID == tempID
	})
}

func (t *Transcript) indexOfID(id domain.MessageID) int {
	return slices.IndexFunc(t.entries, func(e Entry) bool {
		return e.State == Confirmed && e.Message.ID == id
	})
}

// Confirm replaces the pending entry with the server message in place.
// When the server id is already visible, the pending entry is dropped instead.
func (t *Transcript) Confirm(tempID TempID, msg domain.Message) bool {
	i := t.indexOfTemp(tempID)
	if i < 0 {
		return false
	}
	if t.indexOfID(msg.ID) >= 0 {
		t.entries = slices.Delete(t.entries, i, i+1)
		return true
	}
	t.entries[i] = Entry{Message: msg, State: Confirmed}
	return true
}

func (t *Transcript) Fail(tempID TempID, reason FailureReason, errText string) bool {
	i := t.indexOfTemp(tempID)
	if i < 0 || t.entries[i].State != Pending {
		return false
	}
	t.entries[i].State = Failed
	t.entries[i].Failure = reason
	t.entries[i].Error = errText
	return true
}

func (t *Transcript) Remove(tempID TempID) (Entry, bool) {
	i := t.indexOfTemp(tempID)
	if i < 0 {
		return Entry{}, false
	}
	entry := t.entries[i]
	t.entries = slices.Delete(t.entries, i, i+1)
	return entry, true
}

// AddIfAbsent appends a confirmed message unless its id is already visible.
func (t *Transcript) AddIfAbsent(msg domain.Message) bool {
	if t.indexOfID(msg.ID) >= 0 {
		return false
	}
	t.entries = append(t.entries, Entry{Message: msg, State: Confirmed})
	return true
}

// Merge adds the history messages that are not visible yet.
// Confirmed entries end up ordered by timestamp then id, followed by the local pending and failed ones.
func (t *Transcript) Merge(history []domain.Message) int {
	added := 0
	for _, msg := range history {
		if t.indexOfID(msg.ID) >= 0 {
			continue
		}
		t.entries = append(t.entries, Entry{Message: msg, State: Confirmed})
		added++
	}
	if added == 0 {
		return 0
	}
	slices.SortStableFunc(t.entries, func(a, b Entry) int {
		aLocal, bLocal := a.State != Confirmed, b.State != Confirmed
		switch {
		case aLocal && bLocal:
			return 0
		case aLocal:
			return 1
		case bLocal:
			return -1
		}
		if c := a.Message.Timestamp.Compare(b.Message.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(a.Message.ID, b.Message.ID)
	})
	return added
}

func provisional(self domain.UserID, selfName string, peer domain.UserID, content string, at time.Time) domain.Message {
	return domain.Message{SenderID: self, ReceiverID: peer, Content: content, Timestamp: at, SenderName: selfName}
}
