package platform

import "github.com/sirupsen/logrus"

// NewLogger builds the package-level *logrus.Logger every binary in this
// repository shares, one structured line per event, with the level
// gated by verbose rather than a separate debug flag (debug level when
// verbose, info otherwise). Lines use logrus's text format
// (time=... level=info msg=...), not an [INFO]/[ERROR] prefix; the
// "[ERROR] <message>" line for a failed command is printed by each
// binary's main, not by this logger.
func NewLogger(verbose bool) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		DisableColors:   true,
		FullTimestamp:   true,
	})
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.InfoLevel)
	}
	return log
}
