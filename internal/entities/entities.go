// Package entities contains main entities of service.
package entities

import (
	"time"
)

// Account is a registered user of the network. Accounts are never
// physically deleted.
type Account struct {
	ID           int64
	Handle       string
	DisplayName  string
	Bio          string
	Avatar       string
	APIToken     string
	PasswordHash string
	CreatedAt    time.Time
}

// Post is a single content unit. Text is immutable after creation.
// ReplyTo and RepostOf are independent optional references to other posts;
// the referenced rows may vanish, so readers must tolerate dangling ids.
type Post struct {
	ID          int64
	Author      int64
	Text        string
	Attachments []string
	CreatedAt   time.Time
	ReplyTo     *int64
	RepostOf    *int64
}
