package users

import "time"

type Role string

const (
	RoleCustomer Role = "customer"
	RoleOperator Role = "operator"
)

// User покупатель или оператор. ID совпадает с telegram id и chat id личного чата.
type User struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
	Role      Role
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (u User) Display() string {
	if u.Username != "" {
		return "@" + u.Username
	}
	return "Отсутствует"
}

type Telegram struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
}
