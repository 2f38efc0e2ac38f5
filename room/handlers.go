package room

// EventHandlerFuncs adapts plain functions to EventHandler. Nil fields are
// ignored.
type EventHandlerFuncs struct {
	Joined func(Participant)
	Left   func(Participant)
}

func (h EventHandlerFuncs) OnParticipantJoined(p Participant) {
	if h.Joined != nil {
		h.Joined(p)
	}
}

func (h EventHandlerFuncs) OnParticipantLeft(p Participant) {
	if h.Left != nil {
		h.Left(p)
	}
}

// ParticipantHandlerFuncs adapts plain functions to ParticipantHandler.
type ParticipantHandlerFuncs struct {
	Enabled  func(Stream)
	Disabled func(Stream)
}

func (h ParticipantHandlerFuncs) OnStreamEnabled(s Stream) {
	if h.Enabled != nil {
		h.Enabled(s)
	}
}

func (h ParticipantHandlerFuncs) OnStreamDisabled(s Stream) {
	if h.Disabled != nil {
		h.Disabled(s)
	}
}
