// Package notify delivers one-time codes to users out of band.
package notify

import "context"

// Sender delivers a one-time code to the given address. Implementations
// must treat the code as secret and never log it.
type Sender interface {
	SendCode(ctx context.Context, email, code string) error
}
