package users

import "time"

type Role string

const (
	RoleSender   Role = "sender"   // пункт отправления
	RoleTransit  Role = "transit"  // транзитный хаб
	RoleReceiver Role = "receiver" // пункт назначения
	RoleAdmin    Role = "admin"
)

// Allows — admin проходит любой гейт, остальные только свой.
func (r Role) Allows(required Role) bool {
	return r == RoleAdmin || r == required
}

type Operator struct {
	ID        int64
	Login     string
	Name      string
	Role      Role
	OrgID     int64
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
