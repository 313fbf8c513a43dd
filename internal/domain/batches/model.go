package batches

import (
	"time"

	"github.com/Spok95/cargoflow/internal/domain/users"
)

type Status string

const (
	StatusDraft         Status = "draft"
	StatusSenderSealed  Status = "sender_sealed"
	StatusInTransit     Status = "in_transit"
	StatusTransitSealed Status = "transit_sealed"
	StatusReceived      Status = "received"
	StatusCompleted     Status = "completed"
	StatusCancelled     Status = "cancelled"
)

type Batch struct {
	ID          int64
	BatchNo     string
	Status      Status
	ItemCount   int
	TotalWeight float64
	CreatedAt   time.Time
}

// Прямой порядок конвейера; cancelled достижим из любого нетерминального
// статуса и обрабатывается отдельно в CanTransition.
var next = map[Status]Status{
	StatusDraft:         StatusSenderSealed,
	StatusSenderSealed:  StatusInTransit,
	StatusInTransit:     StatusTransitSealed,
	StatusTransitSealed: StatusReceived,
	StatusReceived:      StatusCompleted,
}

// Роль, которой разрешено ребро в целевой статус: отправитель пломбирует
// черновик, хаб ведёт транзит, получатель принимает и закрывает.
var edgeRole = map[Status]users.Role{
	StatusSenderSealed:  users.RoleSender,
	StatusInTransit:     users.RoleTransit,
	StatusTransitSealed: users.RoleTransit,
	StatusReceived:      users.RoleReceiver,
	StatusCompleted:     users.RoleReceiver,
	StatusCancelled:     users.RoleAdmin,
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func Known(s Status) bool {
	if s == StatusCancelled {
		return true
	}
	_, ok := next[s]
	return ok || s == StatusCompleted
}

// CanTransition — только прямой преемник либо отмена из нетерминального.
func CanTransition(from, to Status) bool {
	if to == StatusCancelled {
		return !from.Terminal()
	}
	return next[from] == to
}

// RoleFor возвращает роль, которой разрешён переход в target.
func RoleFor(target Status) (users.Role, bool) {
	r, ok := edgeRole[target]
	return r, ok
}
