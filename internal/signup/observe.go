package signup

import "signup-backend/internal/shared/metrics"

// RecordChange is an Observer that feeds form activity into metrics.
func RecordChange(c Change) {
	switch c.Type {
	case ChangeNotice:
		if c.Notice != nil {
			metrics.IncNoticesShown()
		}
	case ChangeStep:
		if c.Step == StepAdmin {
			metrics.IncStepAdvances()
		}
	}
}
