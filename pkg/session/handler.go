package session

// Handler receives assistant content. All methods run on the event loop.
type Handler interface {
	// OnStatus reports a connection_status message.
	OnStatus(status string)

	// OnServerError reports an error message sent by the assistant.
	OnServerError(message string)

	// OnTextDelta reports incremental response text.
	OnTextDelta(delta string)

	// OnTextDone reports that the response text is complete.
	OnTextDone(text string)

	// OnAudio hands over one complete response's audio as a single base64
	// PCM16 payload.
	OnAudio(responseID, audioBase64 string)

	// OnResponseDone reports the end of one request/response cycle.
	OnResponseDone()
}

// ConnHandler receives connection lifecycle events. All methods run on the
// event loop.
type ConnHandler interface {
	// OnOpen reports a completed handshake.
	OnOpen()

	// OnDialFailed reports a failed connection attempt.
	OnDialFailed(err error)

	// OnClose reports the end of an open connection. It is not called for
	// connections torn down with ForceClose or GiveUp.
	OnClose(err *CloseError)

	// OnPong reports a liveness reply, either a pong message or a
	// websocket pong frame.
	OnPong()
}

// NopHandler ignores all content.
type NopHandler struct{}

func (NopHandler) OnStatus(string)        {}
func (NopHandler) OnServerError(string)   {}
func (NopHandler) OnTextDelta(string)     {}
func (NopHandler) OnTextDone(string)      {}
func (NopHandler) OnAudio(string, string) {}
func (NopHandler) OnResponseDone()        {}

type nopConnHandler struct{}

func (nopConnHandler) OnOpen()             {}
func (nopConnHandler) OnDialFailed(error)  {}
func (nopConnHandler) OnClose(*CloseError) {}
func (nopConnHandler) OnPong()             {}
