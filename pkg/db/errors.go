package db

import (
	"errors"

	"gorm.io/gorm"
)

// IsNotFound reports whether the error means the queried row does not exist,
// as opposed to the database being unreachable.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
