package intake

import (
	"github.com/sirupsen/logrus"
)

var logger = logrus.WithFields(logrus.Fields{"prefix": "intake"})

func SetLogger(l *logrus.Entry) {
	logger = l
}
