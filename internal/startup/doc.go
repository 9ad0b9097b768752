// Package startup handles application initialization, configuration
// loading, and startup logging.
//
// Configuration comes from environment variables (a .env file is loaded
// first if present). Required credentials fail startup with a clear
// error; everything else has sensible defaults. The package also owns
// the formatted startup banner, section-divider logging used throughout
// boot, route logging, and the shutdown log helpers.
package startup
