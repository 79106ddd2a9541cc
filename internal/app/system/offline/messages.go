// internal/app/system/offline/messages.go
package offline

import "errors"

// Control message types sent by pages.
const (
	MessageSkipWaiting = "SKIP_WAITING"
	MessageGetVersion  = "GET_VERSION"
)

// SyncTagBackground is the only background sync tag the site registers.
const SyncTagBackground = "background-sync"

var (
	ErrStopped             = errors.New("offline: manager stopped")
	ErrUnknownMessage      = errors.New("offline: unknown message type")
	ErrNoReplyPort         = errors.New("offline: message needs a reply port")
	ErrNoActiveGeneration  = errors.New("offline: no active cache generation")
	ErrInstallInProgress   = errors.New("offline: another install is in progress")
	ErrUnknownSyncTag      = errors.New("offline: unknown sync tag")
	ErrUnknownNotification = errors.New("offline: unknown notification")
	ErrForeignURL          = errors.New("offline: url is outside the site")
)

// Message is a control message from a page.
//
// Port receives the reply for messages that have one (GET_VERSION). It
// should be buffered; the manager never blocks on it.
type Message struct {
	Type string      `json:"type"`
	Port chan<- Reply `json:"-"`
}

// Reply answers a GET_VERSION message.
type Reply struct {
	Version string `json:"version"`
}
