package dto

import "Cabinet/model"

type LoginResponse struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

// ShareResponse carries the public link next to the share itself.
type ShareResponse struct {
	Share *model.FileShare `json:"share"`
	Link  string           `json:"link"`
}
