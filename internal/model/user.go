package model

import (
	"time"
)

type UserType string

const (
	Developer UserType = "developer"
	Company   UserType = "company"
)

// swagger:model User
type User struct {
	IDModel
	Name      string     `gorm:"size:100;not null" json:"displayName"`
	Email     string     `gorm:"size:100;unique;not null" json:"email"`
	Password  string     `gorm:"size:100;not null" json:"-"`
	UserType  UserType   `gorm:"size:20;default:'developer'" json:"userType"`
	Avatar    string     `gorm:"size:255" json:"avatar"`
	Bio       string     `gorm:"type:text" json:"bio"`
	LastLogin *time.Time `json:"lastLogin"`
}

func (User) TableName() string {
	return "users"
}

func (t UserType) Valid() bool {
	return t == Developer || t == Company
}
