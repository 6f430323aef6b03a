package internal

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config  *Config
	version string
	reset   bool
	force   bool
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithVersion sets the version reported by the health endpoint.
func WithVersion(v string) Option {
	return func(a *application) {
		a.version = v
	}
}

// WithReset drops the index before the startup reconcile.
func WithReset(reset bool) Option {
	return func(a *application) {
		a.reset = reset
	}
}

// WithForce parses every file during the startup reconcile.
func WithForce(force bool) Option {
	return func(a *application) {
		a.force = force
	}
}
