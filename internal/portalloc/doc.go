// Package portalloc hands out free TCP ports.
//
// A port is free when the operating system lets it be bound and this
// process has not issued it within the lock window. Issued ports live in
// a young generation that ages into an old one every window; a port
// leaves the lock set when its generation is discarded, so it stays
// locked between one and two windows.
//
// Candidates are tried in order: each requested port, then an
// OS-assigned one. Address-in-use and permission-denied failures move
// on to the next candidate. A requested port that is still locked is
// reported as *LockedError rather than silently replaced.
package portalloc
