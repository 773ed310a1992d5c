package scheduler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Nixie-Tech-LLC/playout/internal/model"
)

const poolPrefix = "pool:"

// Slot is one position of a rotation pattern: a category, or a rotation pool
// when PoolID is set.
type Slot struct {
	Category model.Category
	PoolID   int
}

func CategorySlot(c model.Category) Slot { return Slot{Category: c} }

func PoolSlot(id int) Slot { return Slot{PoolID: id} }

func (s Slot) IsPool() bool { return s.PoolID > 0 }

// String is the slot's pattern token, "short" or "pool:3".
func (s Slot) String() string {
	if s.IsPool() {
		return poolPrefix + strconv.Itoa(s.PoolID)
	}
	return string(s.Category)
}

func (s Slot) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Slot) UnmarshalText(b []byte) error {
	v, err := ParseSlot(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func ParseSlot(token string) (Slot, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Slot{}, fmt.Errorf("%w: empty slot", ErrInvalidRequest)
	}
	if rest, ok := strings.CutPrefix(token, poolPrefix); ok {
		id, err := strconv.Atoi(rest)
		if err != nil || id <= 0 {
			return Slot{}, fmt.Errorf("%w: bad pool slot %q", ErrInvalidRequest, token)
		}
		return PoolSlot(id), nil
	}
	return CategorySlot(model.Category(token)), nil
}

// ParsePattern parses a comma separated pattern such as "short,medium,pool:2,long".
func ParsePattern(s string) ([]Slot, error) {
	var out []Slot
	for _, tok := range strings.Split(s, ",") {
		slot, err := ParseSlot(tok)
		if err != nil {
			return nil, err
		}
		out = append(out, slot)
	}
	return out, nil
}
