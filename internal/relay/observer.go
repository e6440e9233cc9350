package relay

// Reasons reported to Observer.MessageDropped.
const (
	DropPeerOffline      = "peer_offline"
	DropPeerClosed       = "peer_closed"
	DropOutboxFull       = "outbox_full"
	DropRateLimited      = "rate_limited"
	DropUnsupportedFrame = "unsupported_frame"
)

// Observer receives session lifecycle and routing events.
type Observer interface {
	SessionOpened()
	SessionClosed()
	MessageReceived()
	MessageDelivered()
	MessageDropped(reason string)
}

type nopObserver struct{}

func (nopObserver) SessionOpened()        {}
func (nopObserver) SessionClosed()        {}
func (nopObserver) MessageReceived()      {}
func (nopObserver) MessageDelivered()     {}
func (nopObserver) MessageDropped(string) {}
