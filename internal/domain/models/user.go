package models

import "time"

// User представляет пользователя
type User struct {
	ID        int64
	Name      string
	Email     string
	PassHash  []byte
	CreatedAt time.Time
}
