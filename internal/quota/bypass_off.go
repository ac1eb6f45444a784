//go:build !devquota

package quota

// bypassAvailable is false in every build not tagged devquota, so the
// bypass branch in Check is dead code there.
const bypassAvailable = false
