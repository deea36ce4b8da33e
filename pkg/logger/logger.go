package logger

import (
	"time"

	log "github.com/sirupsen/logrus"
)

func SetupLogrus(debug bool) {
	formatter := &log.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
	}
	log.SetFormatter(formatter)
	log.SetLevel(log.InfoLevel)
	if debug {
		log.SetLevel(log.DebugLevel)
	}
}
