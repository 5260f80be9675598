package api

// logEvent records one business event. Failures are logged at warn so they
// stand out from the request log.
func (s *Server) logEvent(event string, failed bool, fields map[string]any) {
	e := s.log.Info()
	if failed {
		e = s.log.Warn()
	}
	e.Str("event", event).Fields(fields).Msg(event)
}
