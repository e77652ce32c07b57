package telemetry

type multiSink []Sink

func (m multiSink) WriteReadings(publicID string, readings []Reading) {
	for _, s := range m {
		s.WriteReadings(publicID, readings)
	}
}

// MultiSink fans readings out to every given sink. Nil sinks are
// skipped so callers can pass optional backends unconditionally.
func MultiSink(sinks ...Sink) Sink {
	var out multiSink
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}
