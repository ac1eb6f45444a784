//go:build devquota

package quota

// bypassAvailable is only true in builds tagged devquota.
const bypassAvailable = true
