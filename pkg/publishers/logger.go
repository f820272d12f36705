package publishers

import "github.com/samvad-hq/samvad-contact-enricher/pkg/httpclient"

// Logger defines the logging surface publishers rely on.
type Logger = httpclient.Logger

func ensureLogger(log Logger) Logger { return httpclient.EnsureLogger(log) }
