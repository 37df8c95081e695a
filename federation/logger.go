package federation

import (
	"github.com/sirupsen/logrus"
)

var logger = logrus.WithFields(logrus.Fields{"prefix": "federation"})

func SetLogger(l *logrus.Entry) {
	logger = l
}
