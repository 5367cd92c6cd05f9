package task

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	msgStarted = "msg.task_started"
	msgPassed  = "msg.task_passed"
	msgFailed  = "msg.task_failed"
	msgAborted = "msg.task_aborted"
	msgElapsed = "msg.task_elapsed"
)

func init() {
	message.SetString(language.AmericanEnglish, msgStarted, "Task %s started")
	message.SetString(language.AmericanEnglish, msgPassed, "Task %s PASSED")
	message.SetString(language.AmericanEnglish, msgFailed, "Task %s FAILED")
	message.SetString(language.AmericanEnglish, msgAborted, "Task %s ABORTED")
	message.SetString(language.AmericanEnglish, msgElapsed, "%s (%.1f s)")

	message.SetString(language.German, msgStarted, "Aufgabe %s gestartet")
	message.SetString(language.German, msgPassed, "Aufgabe %s BESTANDEN")
	message.SetString(language.German, msgFailed, "Aufgabe %s FEHLGESCHLAGEN")
	message.SetString(language.German, msgAborted, "Aufgabe %s ABGEBROCHEN")
	message.SetString(language.German, msgElapsed, "%s (%.1f s)")

	message.SetString(language.Finnish, msgStarted, "Tehtävä %s aloitettu")
	message.SetString(language.Finnish, msgPassed, "Tehtävä %s HYVÄKSYTTY")
	message.SetString(language.Finnish, msgFailed, "Tehtävä %s EPÄONNISTUI")
	message.SetString(language.Finnish, msgAborted, "Tehtävä %s KESKEYTETTY")
	message.SetString(language.Finnish, msgElapsed, "%s (%.1f s)")
}

// statusLine returns the localized line announcing the terminal state of a task.
func statusLine(p *message.Printer, name string, state State, seconds float64) string {
	key := msgFailed
	switch state {
	case Passed:
		key = msgPassed
	case Aborted:
		key = msgAborted
	}

	return p.Sprintf(msgElapsed, p.Sprintf(key, name), seconds)
}
