package pubsub

import (
	"github.com/zulip/typingsync/state"
)

// The channel which has StateChanged payloads
const ChanState = "statech"

type StateListener interface {
	OnStateChanged(p *StateChanged)
}

// StateChanged is sent after an action produced a new state.
type StateChanged struct {
	Action   string
	Previous *state.State
	Current  *state.State
}

func (s StateChanged) Type() string { return "s" }

type StateSub struct {
	listener Listener
	receiver StateListener
}

func NewStateSub(l Listener, recv StateListener) *StateSub {
	return &StateSub{
		listener: l,
		receiver: recv,
	}
}

func (v *StateSub) Teardown() {
	v.listener.Close()
}

func (v *StateSub) onMessage(p Payload) {
	switch p.Type() {
	case StateChanged{}.Type():
		v.receiver.OnStateChanged(p.(*StateChanged))
	default:
		logger.Warn().Str("type", p.Type()).Msg("StateSub: unknown payload type")
	}
}

// Listen blocks until Teardown is called.
func (v *StateSub) Listen() error {
	return v.listener.Listen(ChanState, v.onMessage)
}
