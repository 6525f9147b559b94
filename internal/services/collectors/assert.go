package collectors

import domsvc "sentioracle/internal/domain/service"

var (
	_ domsvc.Collector = (*HTTPPoll)(nil)
	_ domsvc.Collector = (*WebSocketStream)(nil)
)
