package models

import "time"

type User struct {
	ID           string
	Name         string
	Email        string
	Phone        string
	PasswordHash string
	Address      string
	City         string
	ZipCode      string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
