package serve

import (
	"net/http"

	"github.com/gorilla/handlers"
	log "github.com/sirupsen/logrus"
)

// Wrap adds access logging and panic recovery to h.
func Wrap(h http.Handler) http.Handler {
	logged := handlers.CombinedLoggingHandler(log.StandardLogger().WriterLevel(log.DebugLevel), h)
	return handlers.RecoveryHandler(
		handlers.RecoveryLogger(log.StandardLogger()),
		handlers.PrintRecoveryStack(true),
	)(logged)
}
