package build

// Release identifies which build is running: "standard", "dev", or
// "testing". It governs whether Critical/Severe panic and whether
// stack traces get printed to stderr.
var Release = "standard"

// DEBUG toggles panic-on-Critical/Severe behavior. It is left false in
// standard builds and flipped to true by test binaries that want failed
// invariants to abort immediately instead of merely logging.
var DEBUG = false

// A Var holds one value per release variant. Background-loop timings
// are the main customers: the lease reaper polls far more often in dev
// and testing builds than in production, so a reaped lease shows up in
// a test within milliseconds instead of seconds.
type Var struct {
	Standard interface{}
	Dev      interface{}
	Testing  interface{}
}

// Select returns the Var value matching the running Release. A Var
// missing a value for any variant, or an unrecognized Release, is a
// programming error and panics rather than silently picking a default.
func Select(v Var) interface{} {
	if v.Standard == nil || v.Dev == nil || v.Testing == nil {
		panic("build: Var is missing a value for at least one release variant")
	}
	switch Release {
	case "standard":
		return v.Standard
	case "dev":
		return v.Dev
	case "testing":
		return v.Testing
	default:
		panic("build: unrecognized Release: " + Release)
	}
}
