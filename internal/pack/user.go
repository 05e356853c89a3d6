package pack

import (
	"fmt"
	"strconv"

	"packsync-go/internal/dag"
)

// UserRef identifies an account on a source site, either by numeric id or by
// name. It keeps the form it was decoded from so re-encoding is byte-exact.
type UserRef struct {
	ID      int64
	Name    string
	Numeric bool
}

// UserID returns a numeric user reference.
func UserID(id int64) *UserRef { return &UserRef{ID: id, Numeric: true} }

// UserName returns a user reference by name.
func UserName(name string) *UserRef { return &UserRef{Name: name} }

func (u UserRef) String() string {
	if u.Numeric {
		return strconv.FormatInt(u.ID, 10)
	}
	return u.Name
}

func (u UserRef) MarshalCBOR() ([]byte, error) {
	if u.Numeric {
		return dag.Marshal(u.ID)
	}
	return dag.Marshal(u.Name)
}

func (u *UserRef) UnmarshalCBOR(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty source user", ErrInvalidFormat)
	}
	switch major := data[0] >> 5; major {
	case 0, 1:
		var id int64
		if err := dag.Unmarshal(data, &id); err != nil {
			return fmt.Errorf("%w: source user: %v", ErrInvalidFormat, err)
		}
		*u = UserRef{ID: id, Numeric: true}
	case 3:
		var name string
		if err := dag.Unmarshal(data, &name); err != nil {
			return fmt.Errorf("%w: source user: %v", ErrInvalidFormat, err)
		}
		*u = UserRef{Name: name}
	default:
		return fmt.Errorf("%w: source user must be a number or a string, got major type %d", ErrInvalidFormat, major)
	}
	return nil
}
