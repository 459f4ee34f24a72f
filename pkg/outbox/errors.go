package outbox

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/autopeca/marketplace/pkg/serrors"
)

var ErrInvalidConfig = serrors.NewError("OUTBOX_INVALID_CONFIG", "invalid outbox configuration", "")

func invalidConfig(msg string, args ...any) error {
	return fmt.Errorf("%w: "+msg, append([]any{ErrInvalidConfig}, args...)...)
}

func discardLogger() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}
