//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"dm-relay/domain"
	"dm-relay/domain/event"
	"reflect"
	"time"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// Connection is one live transport connection able to receive routed events.
type Connection interface {
	EventSink
	ID() string
}

type IRegistry interface {
	Join(userID domain.UserID, conn Connection) error
	Leave(connectionID string)
	Route(ctx context.Context, userID domain.UserID, e event.DomainEvent) int
	RouteExcept(ctx context.Context, userID domain.UserID, e event.DomainEvent, connectionID string) int
	Reachable(userID domain.UserID) bool
	Stats() (users int, connections int)
}

// IHistoryStore is the append-only message log.
// Append assigns the message id and the server timestamp.
type IHistoryStore interface {
	Append(ctx context.Context, msg domain.NewMessage) (domain.Message, error)
	Conversation(ctx context.Context, a, b domain.UserID) ([]domain.Message, error)
}

type IIdentityStore interface {
	CreateUser(ctx context.Context, username, passwordHash string) (domain.User, error)
	GetUser(ctx context.Context, id domain.UserID) (domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)
	ListUsers(ctx context.Context, exclude domain.UserID) ([]domain.User, error)
}

// IDedupWindow remembers recently persisted sends.
// Lookup only reports entries whose first sighting is younger than the window.
type IDedupWindow interface {
	Lookup(ctx context.Context, key domain.DedupKey, now time.Time) (domain.Message, bool, error)
	Record(ctx context.Context, key domain.DedupKey, msg domain.Message, now time.Time) error
}

// IDedupClaimer is implemented by windows shared between server instances.
// Claim reserves key before the write. When another instance holds a fresh reservation,
// Claim waits for its message and returns it with claimed false.
// Release drops a reservation whose write failed.
type IDedupClaimer interface {
	Claim(ctx context.Context, key domain.DedupKey, now time.Time) (msg domain.Message, claimed bool, err error)
	Release(ctx context.Context, key domain.DedupKey) error
}

type ISharedDedupWindow interface {
	IDedupWindow
	IDedupClaimer
}
