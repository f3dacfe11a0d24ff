package auth

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/tobsdb/rtable/pkg"
	"golang.org/x/crypto/bcrypt"
)

type Role int

const (
	RoleAdmin Role = iota
	RoleReadWrite
	RoleReadOnly
)

var (
	ErrInsufficientPermissions = errors.New("insufficient permissions")
	ErrUnknownRole             = errors.New("unknown role")
	ErrUserExists              = errors.New("user already exists")
)

func ParseRole(s string) (Role, error) {
	switch s {
	case "admin":
		return RoleAdmin, nil
	case "readwrite", "rw":
		return RoleReadWrite, nil
	case "readonly", "ro":
		return RoleReadOnly, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrUnknownRole, s)
}

func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "admin"
	case RoleReadWrite:
		return "readwrite"
	case RoleReadOnly:
		return "readonly"
	}
	return fmt.Sprintf("role(%d)", int(r))
}

type User struct {
	Id       string
	Name     string
	Password []byte
	Role     Role
}

func NewUser(name, password string, role Role) (*User, error) {
	// password max size is 72 bytes because of bcrypt limit
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return &User{uuid.New().String(), name, hashedPassword, role}, nil
}

func (u *User) ValidateUser(password string) bool {
	return bcrypt.CompareHashAndPassword(u.Password, []byte(password)) == nil
}

func (u *User) HasClearance(r Role) bool { return u.Role <= r }

// Users is the set of accounts allowed to connect. An empty set lets anyone
// in as admin.
type Users struct {
	locker sync.RWMutex
	users  pkg.Map[string, *User]
}

func NewUsers() *Users { return &Users{users: pkg.Map[string, *User]{}} }

func (us *Users) GetLocker() *sync.RWMutex { return &us.locker }

func (us *Users) Add(u *User) (err error) {
	pkg.LockWrap(us, func() {
		if us.users.Has(u.Name) {
			err = fmt.Errorf("%w: %s", ErrUserExists, u.Name)
			return
		}
		us.users.Set(u.Name, u)
	})
	return err
}

func (us *Users) Len() int {
	return pkg.RLockGet(us, func() int { return len(us.users) })
}

// Authenticate returns the user matching name and password, or nil.
func (us *Users) Authenticate(name, password string) *User {
	us.locker.RLock()
	defer us.locker.RUnlock()
	if len(us.users) == 0 {
		return &User{Id: uuid.New().String(), Name: name, Role: RoleAdmin}
	}
	u := us.users.Get(name)
	if u == nil || !u.ValidateUser(password) {
		return nil
	}
	return u
}
