package version

// Populated via -ldflags at build time.
var (
	AppName        = "scrims-bot"
	AppDescription = "Paid-scrims registration and slot reservation bot"
	BuildDate      = ""
	GoVersion      = ""
)
