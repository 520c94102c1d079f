package logger

import (
	"time"
)

// PhaseTracker logs the start and end of one pipeline phase with timing
// and whatever counters the phase reports.
type PhaseTracker struct {
	logger    Logger
	phase     string
	fields    Fields
	startTime time.Time
	now       func() time.Time
}

// StartPhase logs the beginning of a phase and returns its tracker.
func StartPhase(log Logger, phase string) *PhaseTracker {
	if log == nil {
		log = GetGlobalLogger()
	}

	p := &PhaseTracker{
		logger: log.WithField("phase", phase),
		phase:  phase,
		fields: make(Fields),
		now:    time.Now,
	}
	p.startTime = p.now()
	p.logger.Debug("Phase started")
	return p
}

// Set records a counter reported when the phase completes.
func (p *PhaseTracker) Set(key string, value interface{}) *PhaseTracker {
	p.fields[key] = value
	return p
}

// Complete logs the phase completion and returns its duration.
func (p *PhaseTracker) Complete() time.Duration {
	elapsed := p.now().Sub(p.startTime)
	fields := Fields{"duration": elapsed.String()}
	for k, v := range p.fields {
		fields[k] = v
	}
	p.logger.WithFields(fields).Info("Phase completed")
	return elapsed
}

// Fail logs the phase failure and returns its duration.
func (p *PhaseTracker) Fail(err error) time.Duration {
	elapsed := p.now().Sub(p.startTime)
	p.logger.WithError(err).WithField("duration", elapsed.String()).Error("Phase failed")
	return elapsed
}

// Phase returns the tracked phase name.
func (p *PhaseTracker) Phase() string {
	return p.phase
}
