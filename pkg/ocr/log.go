package ocr

import "github.com/sirupsen/logrus"

var log logrus.FieldLogger = logrus.StandardLogger()

// SetLogger replaces the package logger. Call it before building pipelines.
func SetLogger(l logrus.FieldLogger) {
	if l != nil {
		log = l
	}
}
